package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/proshano/kcru-mailer/internal/domain"
	"github.com/proshano/kcru-mailer/internal/pkg/httputil"
	"github.com/proshano/kcru-mailer/internal/pkg/logger"
	"github.com/proshano/kcru-mailer/internal/service/dispatch"
)

// preferencesView is what the preference center shows. The manage token
// never round-trips in the body; it lives in the URL only.
type preferencesView struct {
	Email              string   `json:"email"`
	DisplayName        string   `json:"display_name"`
	Topics             []string `json:"topics"`
	InterestAreas      []string `json:"interest_areas"`
	AllAreas           bool     `json:"all_areas"`
	SubscriptionStatus string   `json:"subscription_status"`
}

// HandleGetPreferences resolves a manage token to the subscriber's
// current preferences.
func (h *Handlers) HandleGetPreferences(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.subscriberFromToken(w, r)
	if !ok {
		return
	}
	httputil.OK(w, preferencesView{
		Email:              sub.Email,
		DisplayName:        sub.DisplayName,
		Topics:             sub.Topics,
		InterestAreas:      sub.InterestAreas,
		AllAreas:           sub.AllAreas,
		SubscriptionStatus: string(sub.SubscriptionStatus),
	})
}

type updatePreferencesRequest struct {
	Topics        []string `json:"topics"`
	InterestAreas []string `json:"interest_areas"`
	AllAreas      bool     `json:"all_areas"`
	Unsubscribe   bool     `json:"unsubscribe"`
}

// HandleUpdatePreferences applies a preference change, including a full
// unsubscribe. Resubscribing through the same link is allowed; delivery
// suppression is not touched from here.
func (h *Handlers) HandleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.subscriberFromToken(w, r)
	if !ok {
		return
	}

	var req updatePreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}

	for _, topic := range req.Topics {
		if !strings.EqualFold(topic, domain.TopicStudyUpdates) && !strings.EqualFold(topic, domain.TopicNewsletter) {
			httputil.BadRequest(w, "unknown topic: "+topic)
			return
		}
	}

	status := domain.StatusSubscribed
	if req.Unsubscribe {
		status = domain.StatusUnsubscribed
	}

	err := h.deps.Subscribers.UpdatePreferences(r.Context(), sub.ID,
		req.Topics, req.InterestAreas, req.AllAreas, status)
	if err != nil {
		logger.Error("preference update failed", "subscriber", sub.Email, "error", err.Error())
		httputil.Internal(w, "failed to update preferences")
		return
	}

	httputil.OK(w, map[string]interface{}{"ok": true})
}

func (h *Handlers) subscriberFromToken(w http.ResponseWriter, r *http.Request) (*domain.Subscriber, bool) {
	token := chi.URLParam(r, "token")
	sub, err := h.deps.Subscribers.GetByManageToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, dispatch.ErrSubscriberNotFound) {
			httputil.NotFound(w, "unknown preferences link")
			return nil, false
		}
		httputil.Internal(w, "failed to load preferences")
		return nil, false
	}
	return sub, true
}
