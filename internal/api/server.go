package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/proshano/kcru-mailer/internal/config"
	"github.com/proshano/kcru-mailer/internal/domain"
	"github.com/proshano/kcru-mailer/internal/service/dispatch"
)

// Server is the HTTP front of the dispatch engine.
type Server struct {
	cfg      *config.Config
	handlers *Handlers
	router   *chi.Mux
	server   *http.Server
}

// NewServer wires the router and handlers.
func NewServer(cfg *config.Config, engine *dispatch.Engine, deps Deps) *Server {
	handlers := NewHandlers(cfg, engine, deps)
	return &Server{
		cfg:      cfg,
		handlers: handlers,
		router:   SetupRoutes(cfg, handlers),
	}
}

// SettingsStore is the settings access the admin endpoints need: the
// engine's read side plus campaign-settings writes.
type SettingsStore interface {
	dispatch.SettingsRepository
	SaveCampaignSettings(ctx context.Context, s *domain.CampaignSettings) error
}

// Deps carries the handler collaborators that are not the engine itself.
type Deps struct {
	Subscribers dispatch.SubscriberRepository
	Settings    SettingsStore
	Runs        dispatch.RunRecorder
	DB          *sql.DB
	Redis       *redis.Client
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// A dispatch run sends sequentially inside the request; the write
		// timeout has to cover the whole audience.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}
