package session

import (
	"time"

	"github.com/google/uuid"
)

// Tracker resolves ids against the configuration table and remembers the
// active session. Not safe for concurrent use.
type Tracker struct {
	configs ConfigSource
	now     func() time.Time
	active  *Descriptor
}

// NewTracker creates a tracker backed by configs.
func NewTracker(configs ConfigSource) *Tracker {
	return &Tracker{
		configs: configs,
		now:     time.Now,
	}
}

// WithClock overrides the time source used for LaunchedAt.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Resolve builds a descriptor for a launched game, or reports false when the
// id is not configured.
func (t *Tracker) Resolve(id int, name string) (Descriptor, bool) {
	entry, ok := t.configs.ConfigFor(id)
	if !ok {
		return Descriptor{}, false
	}
	return Descriptor{
		ID:          id,
		Name:        name,
		DisplayName: entry.Name,
		Features:    entry.Features,
		RunID:       uuid.NewString(),
		LaunchedAt:  t.now(),
	}, true
}

// IsConfigured reports whether id has a configuration entry.
func (t *Tracker) IsConfigured(id int) bool {
	_, ok := t.configs.ConfigFor(id)
	return ok
}

// Begin marks desc as the active session, replacing any previous one.
func (t *Tracker) Begin(desc Descriptor) {
	t.active = &desc
}

// Active returns the active session.
func (t *Tracker) Active() (Descriptor, bool) {
	if t.active == nil {
		return Descriptor{}, false
	}
	return *t.active, true
}

// End terminates the active session if it has the given id.
func (t *Tracker) End(id int) (Descriptor, bool) {
	if t.active == nil || t.active.ID != id {
		return Descriptor{}, false
	}
	desc := *t.active
	t.active = nil
	return desc, true
}
