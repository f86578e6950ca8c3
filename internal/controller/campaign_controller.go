// internal/controller/campaign_controller.go
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/outreach-dispatch/internal/errors"
	"github.com/unclebandit/outreach-dispatch/internal/logger"
	"github.com/unclebandit/outreach-dispatch/internal/model"
	"github.com/unclebandit/outreach-dispatch/internal/service"
)

// UserHeader carries the authenticated user id set by the gateway.
const UserHeader = "X-User-ID"

type CampaignService interface {
	RunCampaign(ctx context.Context, campaignID, userID string) (*model.RunStats, error)
	EnqueueRun(ctx context.Context, campaignID, userID string) (*model.RunJob, error)
	PreviewPlan(ctx context.Context, campaignID, userID string) (*model.PlanPreview, error)
	GetCampaignDetailsWithStats(ctx context.Context, campaignID, userID string) (*service.CampaignDetails, error)
	CancelCampaign(ctx context.Context, campaignID, userID string) error
}

// RunLimiter caps how often a user may start campaign runs.
type RunLimiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

type CampaignController struct {
	CampaignService CampaignService
	Limiter         RunLimiter // optional
	Log             logger.Logger
}

func (c *CampaignController) Routes(r chi.Router) {
	r.Get("/campaigns/{id}", c.GetCampaignDetails)
	r.Get("/campaigns/{id}/plan", c.PreviewPlan)
	r.Post("/campaigns/{id}/run", c.RunCampaign)
	r.Post("/campaigns/{id}/cancel", c.CancelCampaign)
}

func (c *CampaignController) log() logger.Logger {
	if c.Log == nil {
		return logger.NewNoOpLogger()
	}
	return c.Log
}

// RunCampaign queues a run and answers 202. With ?sync=true the run happens
// inside the request and the tallies are returned.
func (c *CampaignController) RunCampaign(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	campaignID := chi.URLParam(r, "id")

	if c.Limiter != nil {
		allowed, err := c.Limiter.Allow(r.Context(), userID)
		if err != nil {
			c.log().WithError(err).Warn("rate limiter unavailable, allowing run", map[string]interface{}{"user_id": userID})
		} else if !allowed {
			c.writeError(w, appErrors.ErrRateLimited)
			return
		}
	}

	if sync, _ := strconv.ParseBool(r.URL.Query().Get("sync")); sync {
		stats, err := c.CampaignService.RunCampaign(r.Context(), campaignID, userID)
		if err != nil {
			c.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
		return
	}

	job, err := c.CampaignService.EnqueueRun(r.Context(), campaignID, userID)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":      job.JobID,
		"campaign_id": job.CampaignID,
		"status":      "queued",
	})
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	details, err := c.CampaignService.GetCampaignDetailsWithStats(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (c *CampaignController) PreviewPlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	preview, err := c.CampaignService.PreviewPlan(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (c *CampaignController) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	campaignID := chi.URLParam(r, "id")
	if err := c.CampaignService.CancelCampaign(r.Context(), campaignID, userID); err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"campaign_id": campaignID,
		"status":      "cancelling",
	})
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(UserHeader)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing user"})
		return "", false
	}
	return userID, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, appErrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, appErrors.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, appErrors.ErrNoRecipients), errors.Is(err, appErrors.ErrNoSenders):
		return http.StatusUnprocessableEntity
	case errors.Is(err, appErrors.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (c *CampaignController) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		c.log().WithError(err).Error("request failed", nil)
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
