// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// When Config.Dir is set the logger also writes Dir/host.log. That file is
// what gets archived under the session's archive key when a session ends.
//
// Example Usage:
//
//	logger, err := logging.New(logging.Config{Level: "info", Dir: "/var/log/sessionhost"})
//	logger.Info("Session launched", zap.Int("game_id", 21216))
package logging
