package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"hopper/internal/history"
	"hopper/internal/ingest"
	"hopper/internal/logging"
)

// MaxHistoryLimit caps /api/history page size.
const MaxHistoryLimit = 500

// Pipeline exposes controller progress.
type Pipeline interface {
	Status() ingest.Status
}

// Journal exposes recorded outcomes.
type Journal interface {
	List(ctx context.Context, limit int) ([]history.Entry, error)
	Counts(ctx context.Context) (history.Counts, error)
}

// RuntimeInfo is static daemon information reported by /api/status.
type RuntimeInfo struct {
	PID          int
	StartedAt    time.Time
	WatchDir     string
	UploadedDir  string
	HistoryPath  string
	LockFilePath string
}

// Options configures the router.
type Options struct {
	Pipeline Pipeline
	Journal  Journal
	Runtime  RuntimeInfo
	Logger   *slog.Logger
}

type handler struct {
	opts   Options
	logger *slog.Logger
}

// NewRouter builds the gin engine serving the status API.
func NewRouter(opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	h := &handler{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "api")}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(h.logger))
	router.HandleMethodNotAllowed = true
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	})
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
	})

	group := router.Group("/api")
	{
		group.GET("/status", h.status)
		group.GET("/history", h.history)
	}
	return router
}

func (h *handler) status(c *gin.Context) {
	info := h.opts.Runtime
	payload := DaemonStatus{
		Running:      true,
		PID:          info.PID,
		StartedAt:    formatTime(info.StartedAt),
		WatchDir:     info.WatchDir,
		UploadedDir:  info.UploadedDir,
		HistoryPath:  info.HistoryPath,
		LockFilePath: info.LockFilePath,
		Pipeline:     PipelineStatus{Pending: []QueueEntry{}},
	}
	if h.opts.Pipeline != nil {
		payload.Pipeline = FromIngestStatus(h.opts.Pipeline.Status())
	}
	if h.opts.Journal != nil {
		counts, err := h.opts.Journal.Counts(c.Request.Context())
		if err != nil {
			logging.WarnWithContext(h.logger, "failed to read history counts", "history_read_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "status totals omitted"),
			)
		} else {
			payload.Totals = HistoryTotals{Success: counts.Success, Failure: counts.Failure}
		}
	}
	c.JSON(http.StatusOK, payload)
}

func (h *handler) history(c *gin.Context) {
	limit := history.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, MaxHistoryLimit)
	}
	if h.opts.Journal == nil {
		c.JSON(http.StatusOK, HistoryResponse{Entries: []HistoryEntry{}})
		return
	}
	entries, err := h.opts.Journal.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{Entries: FromHistoryEntries(entries)})
}
