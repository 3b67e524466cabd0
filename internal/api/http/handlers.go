package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/SessionHost/internal/domain/catalog"
	"github.com/GriffinCanCode/SessionHost/internal/domain/events"
	"github.com/GriffinCanCode/SessionHost/internal/domain/orchestrator"
	"github.com/GriffinCanCode/SessionHost/internal/infrastructure/detection"
	"github.com/GriffinCanCode/SessionHost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/SessionHost/internal/shared/id"
)

const statusTimeout = 2 * time.Second

// StatusFunc reads the orchestrator state from its event loop.
type StatusFunc func(ctx context.Context) (orchestrator.Status, error)

// Publisher accepts detection events.
type Publisher interface {
	Publish(kind events.Kind, gameID int, name string) error
	Started() bool
}

// Catalog lists configured games.
type Catalog interface {
	Entries() []catalog.Entry
}

// ArchiveLister lists archived session logs.
type ArchiveLister interface {
	List() ([]string, error)
}

// Windows lists connected window peers.
type Windows interface {
	Windows() []string
}

// Deps holds the collaborators behind the HTTP surface. Archives and
// Metrics may be nil.
type Deps struct {
	Status    StatusFunc
	Publisher Publisher
	Catalog   Catalog
	Archives  ArchiveLister
	Windows   Windows
	Metrics   *monitoring.Metrics
	Logger    *zap.Logger
	Version   string
}

// Handlers contains all HTTP handlers
type Handlers struct {
	status    StatusFunc
	publisher Publisher
	catalog   Catalog
	archives  ArchiveLister
	windows   Windows
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	version   string
}

// NewHandlers creates a new handler set
func NewHandlers(deps Deps) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		status:    deps.Status,
		publisher: deps.Publisher,
		catalog:   deps.Catalog,
		archives:  deps.Archives,
		windows:   deps.Windows,
		metrics:   deps.Metrics,
		logger:    logger.Named("http"),
		version:   deps.Version,
	}
}

// Register mounts every handler on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/session", h.Session)
	r.POST("/events/:kind", h.PublishEvent)
	r.GET("/catalog", h.ListCatalog)
	r.GET("/archives", h.ListArchives)
	r.POST("/logs", h.StreamLogs)
}

// Root handles the liveness check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "session-host",
		"version": h.version,
	})
}

// Health handles the detailed health check
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":    "healthy",
		"detection": gin.H{"started": h.publisher.Started()},
		"windows":   h.windows.Windows(),
	}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}

// Session reports the active session and window state
func (h *Handlers) Session(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), statusTimeout)
	defer cancel()

	status, err := h.status(ctx)
	if err != nil {
		h.logger.Warn("Session status unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session state unavailable"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// EventRequest is the body of POST /events/:kind.
type EventRequest struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// PublishEvent ingests one detection event
func (h *Handlers) PublishEvent(c *gin.Context) {
	kind := events.Kind(c.Param("kind"))

	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event body"})
		return
	}
	if (kind == events.KindLaunched || kind == events.KindClosed) && req.ID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return
	}

	eventID := id.NewEventID()
	err := h.publisher.Publish(kind, req.ID, req.Name)
	switch {
	case errors.Is(err, detection.ErrUnknownKind):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, detection.ErrNotStarted):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error("Failed to publish event", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "publish failed"})
		return
	}

	h.logger.Debug("Event accepted",
		zap.String("event_id", eventID.String()),
		zap.String("event", string(kind)),
		zap.Int("game_id", req.ID),
	)
	c.JSON(http.StatusAccepted, gin.H{
		"accepted": true,
		"event_id": eventID,
		"event":    kind,
	})
}

// ListCatalog lists configured games
func (h *Handlers) ListCatalog(c *gin.Context) {
	entries := h.catalog.Entries()
	c.JSON(http.StatusOK, gin.H{
		"games": entries,
		"count": len(entries),
	})
}

// ListArchives lists archived session logs
func (h *Handlers) ListArchives(c *gin.Context) {
	if h.archives == nil {
		c.JSON(http.StatusOK, gin.H{"archives": []string{}, "count": 0, "enabled": false})
		return
	}

	keys, err := h.archives.List()
	if err != nil {
		h.logger.Error("Failed to list archives", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list archives"})
		return
	}
	if keys == nil {
		keys = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"archives": keys, "count": len(keys), "enabled": true})
}
