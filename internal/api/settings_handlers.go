package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/proshano/kcru-mailer/internal/domain"
	"github.com/proshano/kcru-mailer/internal/pkg/httputil"
	"github.com/proshano/kcru-mailer/internal/pkg/logger"
	"github.com/proshano/kcru-mailer/internal/service/dispatch"
)

// HandleGetCampaignSettings returns one campaign's settings record.
func (h *Handlers) HandleGetCampaignSettings(w http.ResponseWriter, r *http.Request) {
	campaign, err := domain.ParseCampaignType(chi.URLParam(r, "campaign"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	settings, err := h.deps.Settings.CampaignSettings(r.Context(), campaign)
	if err != nil {
		if errors.Is(err, dispatch.ErrSettingsNotFound) {
			httputil.NotFound(w, "campaign settings not found")
			return
		}
		httputil.Internal(w, "failed to load campaign settings")
		return
	}
	httputil.OK(w, settings)
}

// HandleSaveCampaignSettings replaces one campaign's settings record.
// Validation happens here so a bad edit fails the request, not the next
// scheduled run.
func (h *Handlers) HandleSaveCampaignSettings(w http.ResponseWriter, r *http.Request) {
	campaign, err := domain.ParseCampaignType(chi.URLParam(r, "campaign"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	var settings domain.CampaignSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}
	settings.Campaign = campaign
	if err := settings.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	if err := h.deps.Settings.SaveCampaignSettings(r.Context(), &settings); err != nil {
		logger.Error("campaign settings save failed", "campaign", string(campaign), "error", err.Error())
		httputil.Internal(w, "failed to save campaign settings")
		return
	}
	httputil.OK(w, settings)
}

// HandleGetTestMode returns the safety-interlock state.
func (h *Handlers) HandleGetTestMode(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.deps.Settings.TestMode(r.Context())
	if err != nil {
		httputil.Internal(w, "failed to load test mode")
		return
	}
	httputil.OK(w, cfg)
}

// HandleSaveTestMode replaces the safety-interlock state. Normalizing the
// allowlist here keeps the intersection inside the engine a plain
// case-insensitive match.
func (h *Handlers) HandleSaveTestMode(w http.ResponseWriter, r *http.Request) {
	var cfg domain.TestModeConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}

	recipients := make([]string, 0, len(cfg.Recipients))
	for _, raw := range cfg.Recipients {
		email := domain.NormalizeEmail(raw)
		if email == "" {
			continue
		}
		recipients = append(recipients, email)
	}
	cfg.Recipients = recipients

	if cfg.Enabled && len(cfg.Recipients) == 0 {
		httputil.BadRequest(w, "enabling test mode requires at least one recipient")
		return
	}

	if err := h.deps.Settings.SaveTestMode(r.Context(), &cfg); err != nil {
		logger.Error("test mode save failed", "error", err.Error())
		httputil.Internal(w, "failed to save test mode")
		return
	}

	logger.Info("test mode updated", "enabled", cfg.Enabled, "allowlist_size", len(cfg.Recipients))
	httputil.OK(w, cfg)
}
