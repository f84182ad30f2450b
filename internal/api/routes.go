package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/proshano/kcru-mailer/internal/config"
	"github.com/proshano/kcru-mailer/internal/pkg/httputil"
)

// SetupRoutes configures the full route tree. The dispatch and settings
// endpoints sit behind their secrets; the preference center and health
// probes are public.
func SetupRoutes(cfg *config.Config, h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{cfg.Site.BaseURL, "http://localhost:5173"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Cron-Secret"},
		MaxAge:         300,
	}))

	// Health probes (no auth)
	r.Get("/health", h.HandleHealth)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)

	// Preference center (token in path is the credential)
	r.Get("/preferences/{token}", h.HandleGetPreferences)
	r.Post("/preferences/{token}", h.HandleUpdatePreferences)

	r.Route("/api", func(r chi.Router) {
		// The platform scheduler holds only the cron secret.
		r.With(requireCronSecret(cfg.Dispatch.CronSecret)).
			Post("/dispatch/cron", h.HandleCronTick)

		r.Group(func(r chi.Router) {
			r.Use(requireAdminToken(cfg.Dispatch.AdminToken))

			r.Post("/dispatch/{campaign}/run", h.HandleManualRun)
			r.Get("/dispatch/runs", h.HandleListRuns)
			r.Post("/broadcast/send", h.HandleBroadcast)
			r.Get("/settings/test-mode", h.HandleGetTestMode)
			r.Put("/settings/test-mode", h.HandleSaveTestMode)
			r.Get("/settings/campaigns/{campaign}", h.HandleGetCampaignSettings)
			r.Put("/settings/campaigns/{campaign}", h.HandleSaveCampaignSettings)
		})
	})

	return r
}

func requireCronSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			got := req.Header.Get("X-Cron-Secret")
			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				httputil.Unauthorized(w, "invalid cron secret")
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func requireAdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			got := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				httputil.Unauthorized(w, "invalid admin token")
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
