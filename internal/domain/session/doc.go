// Package session tracks the single active game session.
//
// A session is identified by the detected game id. Only ids present in the
// configuration table produce a Descriptor; everything else is filtered out
// before any side effect happens.
//
// Example Usage:
//
//	tracker := session.NewTracker(catalog.Default())
//	if desc, ok := tracker.Resolve(21216, "Fortnite"); ok {
//		tracker.Begin(desc)
//	}
//	key := session.ArchiveKey("Fortnite", time.Now())
package session
