package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxLogEntries = 500

// WindowLogEntry is one log line forwarded by the in-game window
type WindowLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context"`
	Timestamp string                 `json:"timestamp"`
}

// WindowLogRequest is a batch of window log lines
type WindowLogRequest struct {
	Window  string           `json:"window"`
	Entries []WindowLogEntry `json:"entries"`
}

// StreamLogs writes the window's log lines into the host log so they are
// archived with the session.
func (h *Handlers) StreamLogs(c *gin.Context) {
	var req WindowLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid log request format"})
		return
	}
	if len(req.Entries) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no log entries provided"})
		return
	}
	if len(req.Entries) > maxLogEntries {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too many log entries"})
		return
	}

	logger := h.logger.Named("window")
	if req.Window != "" {
		logger = logger.With(zap.String("window", req.Window))
	}
	for _, entry := range req.Entries {
		logWindowEntry(logger, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"entries_received": len(req.Entries),
		"timestamp":        time.Now().Unix(),
	})
}

func logWindowEntry(logger *zap.Logger, entry WindowLogEntry) {
	fields := make([]zap.Field, 0, len(entry.Context)+2)
	fields = append(fields, zap.String("source", "window"))
	if entry.Timestamp != "" {
		fields = append(fields, zap.String("window_timestamp", entry.Timestamp))
	}

	for key, value := range entry.Context {
		switch v := value.(type) {
		case string:
			fields = append(fields, zap.String(key, v))
		case float64:
			fields = append(fields, zap.Float64(key, v))
		case bool:
			fields = append(fields, zap.Bool(key, v))
		default:
			fields = append(fields, zap.Any(key, v))
		}
	}

	switch entry.Level {
	case "error":
		logger.Error(entry.Message, fields...)
	case "warn":
		logger.Warn(entry.Message, fields...)
	case "debug", "verbose":
		logger.Debug(entry.Message, fields...)
	default:
		logger.Info(entry.Message, fields...)
	}
}
