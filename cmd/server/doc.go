// Package main is the entry point for the session host.
//
// The host coordinates a detected game session with its in-game window:
//
//	Detection (HTTP / spool dir) → event loop → orchestrator
//	                                              → window transport (WebSocket)
//	                                              → telemetry (HTTP)
//	                                              → log archive (tar.zst)
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Serve with the embedded game catalog
//	sessionhost --port 8765
//
//	# Serve a custom catalog
//	sessionhost --catalog games.toml
//
//	# Inspect
//	sessionhost catalog
//	sessionhost archive-key "League of Legends"
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
