package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/proshano/kcru-mailer/internal/config"
	"github.com/proshano/kcru-mailer/internal/domain"
	"github.com/proshano/kcru-mailer/internal/pkg/httputil"
	"github.com/proshano/kcru-mailer/internal/schedule"
	"github.com/proshano/kcru-mailer/internal/service/dispatch"
)

// Handlers holds the HTTP handlers and their collaborators.
type Handlers struct {
	cfg    *config.Config
	engine *dispatch.Engine
	deps   Deps
}

// NewHandlers creates the handler set.
func NewHandlers(cfg *config.Config, engine *dispatch.Engine, deps Deps) *Handlers {
	return &Handlers{cfg: cfg, engine: engine, deps: deps}
}

func (h *Handlers) scheduleSet() dispatch.ScheduleSet {
	sc := h.cfg.Schedule
	mkWindow := func(cs config.CampaignSchedule) schedule.Window {
		w := schedule.Window{
			Timezone:      sc.Timezone,
			TargetHour:    cs.TargetHour,
			WindowMinutes: sc.WindowMinutes,
		}
		if cs.TargetDay > 0 {
			day := cs.TargetDay
			w.TargetDay = &day
		}
		return w
	}
	return dispatch.ScheduleSet{
		StudyUpdate: mkWindow(sc.StudyUpdate),
		Newsletter:  mkWindow(sc.Newsletter),
	}
}

// HandleCronTick is the platform scheduler's entry point. It always
// returns 200 with per-campaign outcomes; "nothing was due" is a normal
// response, not an error.
func (h *Handlers) HandleCronTick(w http.ResponseWriter, r *http.Request) {
	outcomes := h.engine.RunScheduled(r.Context(), h.scheduleSet())
	httputil.OK(w, map[string]interface{}{
		"ok":      true,
		"results": outcomes,
	})
}

type manualRunRequest struct {
	Force   bool   `json:"force"`
	Subject string `json:"subject"`
}

// HandleManualRun triggers one campaign immediately, skipping the
// schedule gate. The optional force flag additionally bypasses the
// idempotency-marker check.
func (h *Handlers) HandleManualRun(w http.ResponseWriter, r *http.Request) {
	campaign, err := domain.ParseCampaignType(chi.URLParam(r, "campaign"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	var req manualRunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, "invalid request body")
			return
		}
	}

	result, err := h.engine.Run(r.Context(), campaign, dispatch.RunOptions{
		Trigger:         domain.TriggerManual,
		Force:           req.Force,
		SubjectOverride: req.Subject,
	})
	if err != nil {
		h.writeRunError(w, err)
		return
	}

	httputil.OK(w, map[string]interface{}{
		"ok":     true,
		"result": result,
	})
}

// HandleBroadcast sends a one-off announcement. Refused outright unless
// the test-mode allowlist is enabled and non-empty.
func (h *Handlers) HandleBroadcast(w http.ResponseWriter, r *http.Request) {
	var in dispatch.BroadcastInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}

	result, err := h.engine.Broadcast(r.Context(), in)
	if err != nil {
		if errors.Is(err, dispatch.ErrSendingDisabled) {
			httputil.Error(w, http.StatusForbidden,
				"broadcast requires an enabled, non-empty test-mode allowlist")
			return
		}
		h.writeRunError(w, err)
		return
	}

	httputil.OK(w, map[string]interface{}{
		"ok":     true,
		"result": result,
	})
}

// HandleListRuns returns recent run history, newest first.
func (h *Handlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.deps.Runs.ListRuns(r.Context(), 50)
	if err != nil {
		httputil.Internal(w, "failed to load run history")
		return
	}
	if runs == nil {
		runs = []domain.DispatchRun{}
	}
	httputil.OK(w, map[string]interface{}{"runs": runs})
}

func (h *Handlers) writeRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrRunInProgress):
		httputil.Error(w, http.StatusConflict, "a run for this campaign is already in progress")
	case errors.Is(err, dispatch.ErrSettingsNotFound):
		httputil.NotFound(w, "campaign settings not found")
	default:
		httputil.Internal(w, err.Error())
	}
}
