// Package http exposes the host's REST surface: detection ingestion,
// session state, the game catalog, archived logs and window log forwarding.
package http
