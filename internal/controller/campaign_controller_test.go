package controller_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-dispatch/internal/controller"
	appErrors "github.com/unclebandit/outreach-dispatch/internal/errors"
	"github.com/unclebandit/outreach-dispatch/internal/logger"
	"github.com/unclebandit/outreach-dispatch/internal/model"
	"github.com/unclebandit/outreach-dispatch/internal/service"
)

// --- Mock service ---

type MockCampaignService struct {
	err       error
	lastUser  string
	lastID    string
	runCalls  int
	enqueued  int
	cancelled int
}

func (m *MockCampaignService) RunCampaign(_ context.Context, id, user string) (*model.RunStats, error) {
	m.runCalls++
	m.lastID, m.lastUser = id, user
	if m.err != nil {
		return nil, m.err
	}
	return &model.RunStats{
		TotalPlanned:   2,
		TotalSent:      1,
		TotalDelivered: 1,
		TotalFailed:    1,
		PerAccount: map[string]model.AccountTally{
			"a1": {Assigned: 2, Capacity: 10, Sent: 1, Delivered: 1, Failed: 1},
		},
	}, nil
}

func (m *MockCampaignService) EnqueueRun(_ context.Context, id, user string) (*model.RunJob, error) {
	m.enqueued++
	m.lastID, m.lastUser = id, user
	if m.err != nil {
		return nil, m.err
	}
	return &model.RunJob{JobID: "job-1", CampaignID: id, UserID: user}, nil
}

func (m *MockCampaignService) PreviewPlan(_ context.Context, id, _ string) (*model.PlanPreview, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &model.PlanPreview{CampaignID: id, Recipients: 3, TotalPlanned: 3,
		PerAccount: map[string]model.AccountTally{"a1": {Assigned: 3, Capacity: 10}}}, nil
}

func (m *MockCampaignService) GetCampaignDetailsWithStats(_ context.Context, id, user string) (*service.CampaignDetails, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &service.CampaignDetails{
		Campaign: &model.Campaign{ID: id, UserID: user, Status: model.CampaignCompleted},
		Stats:    map[string]int{"sent": 4, "failed": 1, "pending": 0, "total": 5},
	}, nil
}

func (m *MockCampaignService) CancelCampaign(_ context.Context, id, user string) error {
	m.cancelled++
	return m.err
}

type stubLimiter struct {
	allow bool
	err   error
}

func (s stubLimiter) Allow(context.Context, string) (bool, error) { return s.allow, s.err }

// --- Helpers ---

func newServer(t *testing.T, svc controller.CampaignService, limiter controller.RunLimiter) http.Handler {
	ctrl := &controller.CampaignController{CampaignService: svc, Limiter: limiter, Log: logger.NewTestLogger(t)}
	r := chi.NewRouter()
	ctrl.Routes(r)
	return r
}

func do(h http.Handler, method, path, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if user != "" {
		req.Header.Set(controller.UserHeader, user)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// --- Tests ---

func TestRunCampaign_Enqueues(t *testing.T) {
	svc := &MockCampaignService{}
	w := do(newServer(t, svc, stubLimiter{allow: true}), http.MethodPost, "/campaigns/camp-1/run", "user-1")

	require.Equal(t, http.StatusAccepted, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "job-1", body["job_id"])
	assert.Equal(t, "queued", body["status"])
	assert.Equal(t, "camp-1", svc.lastID)
	assert.Equal(t, "user-1", svc.lastUser)
	assert.Equal(t, 0, svc.runCalls)
}

func TestRunCampaign_SyncReturnsTallies(t *testing.T) {
	svc := &MockCampaignService{}
	w := do(newServer(t, svc, nil), http.MethodPost, "/campaigns/camp-1/run?sync=true", "user-1")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"totalPlanned": 2, "totalSent": 1, "totalDelivered": 1, "totalFailed": 1,
		"perAccount": {"a1": {"assigned": 2, "capacity": 10, "sent": 1, "delivered": 1, "failed": 1}}
	}`, w.Body.String())
}

func TestRunCampaign_RateLimited(t *testing.T) {
	svc := &MockCampaignService{}
	w := do(newServer(t, svc, stubLimiter{allow: false}), http.MethodPost, "/campaigns/camp-1/run", "user-1")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, 0, svc.enqueued)
}

func TestRunCampaign_LimiterOutageFailsOpen(t *testing.T) {
	svc := &MockCampaignService{}
	w := do(newServer(t, svc, stubLimiter{err: errors.New("redis down")}), http.MethodPost, "/campaigns/camp-1/run", "user-1")

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, svc.enqueued)
}

func TestRunCampaign_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not found", appErrors.NewCampaignNotFound("camp-1"), http.StatusNotFound},
		{"invalid state", appErrors.NewInvalidState("camp-1", "completed"), http.StatusConflict},
		{"no recipients", appErrors.ErrNoRecipients, http.StatusUnprocessableEntity},
		{"no senders", appErrors.ErrNoSenders, http.StatusUnprocessableEntity},
		{"store failure", errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockCampaignService{err: tt.err}
			w := do(newServer(t, svc, nil), http.MethodPost, "/campaigns/camp-1/run?sync=1", "user-1")
			assert.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusInternalServerError {
				assert.NotContains(t, w.Body.String(), "connection refused")
			}
		})
	}
}

func TestMissingUserIsUnauthorized(t *testing.T) {
	svc := &MockCampaignService{}
	h := newServer(t, svc, nil)

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/campaigns/camp-1/run", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/campaigns/camp-1", "").Code)
	assert.Equal(t, 0, svc.enqueued)
}

func TestGetCampaignDetails(t *testing.T) {
	w := do(newServer(t, &MockCampaignService{}, nil), http.MethodGet, "/campaigns/camp-1", "user-1")

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "camp-1", body["id"])
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, float64(5), body["stats"].(map[string]interface{})["total"])
}

func TestPreviewPlan(t *testing.T) {
	w := do(newServer(t, &MockCampaignService{}, nil), http.MethodGet, "/campaigns/camp-1/plan", "user-1")

	require.Equal(t, http.StatusOK, w.Code)
	var body model.PlanPreview
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.TotalPlanned)
	assert.Equal(t, 10, body.PerAccount["a1"].Capacity)
}

func TestCancelCampaign(t *testing.T) {
	svc := &MockCampaignService{}
	w := do(newServer(t, svc, nil), http.MethodPost, "/campaigns/camp-1/cancel", "user-1")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, svc.cancelled)

	svc.err = appErrors.NewInvalidState("camp-1", "draft")
	w = do(newServer(t, svc, nil), http.MethodPost, "/campaigns/camp-1/cancel", "user-1")
	assert.Equal(t, http.StatusConflict, w.Code)
}
