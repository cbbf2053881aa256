// Package server provides the HTTP API for kotae.
package server

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// Documents is the uploaded PDF store.
type Documents interface {
	Save(ctx context.Context, name string, content []byte) (*models.Document, error)
	List(ctx context.Context) ([]*models.Document, error)
	Open(ctx context.Context, name string) (*os.File, *models.Document, error)
	Count(ctx context.Context) (int64, error)
	DiskUsage() (int64, error)
}

// Trainer starts training runs and cascades deletes into the live index.
type Trainer interface {
	Start() (string, error)
	RemoveDocument(ctx context.Context, filename string) error
}

// Progress exposes training state for polling and streaming.
type Progress interface {
	Snapshot() models.TrainingState
	Subscribe() (<-chan models.TrainingState, func())
}

// IndexInfo describes the live index.
type IndexInfo interface {
	Info() models.IndexInfo
}

// Chat answers questions and owns per-client history.
type Chat interface {
	Handle(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error)
	HandleStream(ctx context.Context, req models.ChatRequest, onToken llm.TokenFunc) (*models.ChatResponse, error)
	Reset(clientID string)
}

// Searcher runs passage search over the live index.
type Searcher interface {
	Search(ctx context.Context, query string, k int, mode models.SearchMode, opts *keyword.SearchOptions) (*models.SearchResponse, error)
}

// Dependencies are the components the API is served from.
type Dependencies struct {
	Documents Documents
	Trainer   Trainer
	Progress  Progress
	Index     IndexInfo
	Chat      Chat
	Search    Searcher
}

// Server is the HTTP server for the kotae API.
type Server struct {
	deps   Dependencies
	config *config.ServerConfig
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Dependencies, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{deps: deps, config: cfg, logger: logger}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Streaming endpoints live outside the timeout and compression group.
	r.Post("/api/chat/stream", s.handleChatStream)
	r.Get("/train/events", s.handleTrainEvents)

	r.Group(func(r chi.Router) {
		timeout := s.config.RequestTimeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		r.Use(middleware.Timeout(timeout))
		r.Use(middleware.Compress(5, "application/json"))

		r.Get("/health", s.handleHealth)
		r.Get("/info", s.handleInfo)

		r.Get("/api/status", s.handleStatus)
		r.Post("/api/chat", s.handleChat)
		r.Post("/api/reset", s.handleReset)
		r.Get("/api/search", s.handleSearch)

		r.Post("/upload", s.handleUpload)
		r.Get("/files", s.handleListFiles)
		r.Delete("/files/{filename}", s.handleDeleteFile)
		r.Get("/files/view/{filename}", s.handleViewFile)

		r.Post("/train", s.handleTrain)
		r.Get("/train/status", s.handleTrainStatus)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
