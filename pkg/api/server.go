// Package api exposes the scan lifecycle over HTTP: create/run/read scans,
// the persisted event timeline, a polling SSE stream, and evidence-grounded
// chat. Handlers are thin; domain rules live in pkg/services and the runner.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/tokenscope/tokenscope/pkg/config"
	"github.com/tokenscope/tokenscope/pkg/database"
	"github.com/tokenscope/tokenscope/pkg/models"
	"github.com/tokenscope/tokenscope/pkg/providers"
)

// ScanStore is the scan persistence surface the handlers need.
type ScanStore interface {
	CreateScan(ctx context.Context, chain, tokenAddress string) (*models.Scan, error)
	GetScan(ctx context.Context, id string) (*models.Scan, error)
	FindRecentComplete(ctx context.Context, chain, tokenAddress string) (*models.Scan, error)
}

// EventStore reads the persisted event timeline.
type EventStore interface {
	ListEventsAfter(ctx context.Context, scanID string, afterID int64) ([]models.ScanEvent, error)
}

// JobEnqueuer enqueues scan jobs idempotently.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, scanID string) (*models.EnqueueResult, error)
}

// WorkerTrigger kicks the queue worker after an enqueue.
type WorkerTrigger interface {
	Trigger()
}

// ChatProvider answers questions about a scan from its evidence.
type ChatProvider interface {
	ChatAboutScan(ctx context.Context, scanID string, messages []models.ChatMessage) (*models.ChatMessage, error)
}

// ChainReader is the preflight eth_getCode surface.
type ChainReader interface {
	GetCode(ctx context.Context, address string) providers.RPCResult
}

// HealthChecker reports database liveness and pool statistics for the
// health endpoint.
type HealthChecker interface {
	Health(ctx context.Context) (*database.HealthStatus, error)
}

// Server wires the HTTP handlers to their services. Chat is nil when no LLM
// is configured.
type Server struct {
	scans  ScanStore
	events EventStore
	jobs   JobEnqueuer
	worker WorkerTrigger
	chat   ChatProvider
	chain  ChainReader
	db     HealthChecker

	cacheTTL time.Duration

	// Stream tuning, shortened in tests.
	streamPollInterval time.Duration
	streamHeartbeat    time.Duration
}

// NewServer creates the API server.
func NewServer(scans ScanStore, events EventStore, jobs JobEnqueuer,
	worker WorkerTrigger, chat ChatProvider, chain ChainReader, db HealthChecker,
	cacheTTLSeconds int) *Server {

	return &Server{
		scans:              scans,
		events:             events,
		jobs:               jobs,
		worker:             worker,
		chat:               chat,
		chain:              chain,
		db:                 db,
		cacheTTL:           time.Duration(cacheTTLSeconds) * time.Second,
		streamPollInterval: 1200 * time.Millisecond,
		streamHeartbeat:    15 * time.Second,
	}
}

// RegisterRoutes mounts all handlers under /api.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.Use(securityHeaders, requestLogger)

	g := e.Group("/api")
	g.GET("/healthz", s.healthHandler)
	g.GET("/preflight/contract-code", s.preflightHandler)
	g.POST("/scans", s.createScanHandler)
	g.GET("/scans/:id", s.getScanHandler)
	g.POST("/scans/:id/run", s.runScanHandler)
	g.GET("/scans/:id/events", s.listEventsHandler)
	g.GET("/scans/:id/stream", s.streamHandler)
	g.POST("/scans/:id/chat", s.chatHandler)
}

// healthHandler handles GET /api/healthz: DB ping plus pool statistics.
func (s *Server) healthHandler(c *echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	health, err := s.db.Health(ctx)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status":   "unhealthy",
			"database": health,
			"error":    err.Error(),
			"chain":    config.Network,
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":   "healthy",
		"database": health,
		"chain":    config.Network,
	})
}
