package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	appErrors "github.com/unclebandit/outreach-dispatch/internal/errors"
	"github.com/unclebandit/outreach-dispatch/internal/logger"
	"github.com/unclebandit/outreach-dispatch/internal/model"
)

// Runner defines the method the worker needs
type Runner interface {
	RunCampaign(ctx context.Context, campaignID, userID string) (*model.RunStats, error)
}

// Worker processes queued campaign run jobs
type Worker struct {
	Runner Runner
	Log    logger.Logger
	ctx    context.Context
}

// Constructor
func NewWorker(ctx context.Context, runner Runner, log logger.Logger) *Worker {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Worker{Runner: runner, Log: log, ctx: ctx}
}

// Handle runs one job. Jobs that can never succeed (bad payload, failed
// precondition) are dropped by returning nil; other errors are returned so
// the queue retries them.
func (w *Worker) Handle(payload any) error {
	job, err := DecodeRunJob(payload)
	if err != nil {
		w.Log.WithError(err).Error("dropping invalid run job", nil)
		return nil
	}
	log := w.Log.WithFields(map[string]interface{}{
		"job_id":      job.JobID,
		"campaign_id": job.CampaignID,
	})

	stats, err := w.Runner.RunCampaign(w.ctx, job.CampaignID, job.UserID)
	if err != nil {
		if appErrors.IsPrecondition(err) {
			log.WithError(err).Warn("campaign run rejected", nil)
			return nil
		}
		log.WithError(err).Error("campaign run failed", nil)
		return err
	}
	log.Info("campaign run job done", map[string]interface{}{
		"sent":   stats.TotalSent,
		"failed": stats.TotalFailed,
	})
	return nil
}

// DecodeRunJob accepts a job as published in-process or as a JSON body.
func DecodeRunJob(payload any) (model.RunJob, error) {
	var job model.RunJob
	switch v := payload.(type) {
	case model.RunJob:
		job = v
	case *model.RunJob:
		if v == nil {
			return job, errors.New("nil run job")
		}
		job = *v
	case []byte:
		if err := json.Unmarshal(v, &job); err != nil {
			return job, fmt.Errorf("decode run job: %w", err)
		}
	case string:
		if err := json.Unmarshal([]byte(v), &job); err != nil {
			return job, fmt.Errorf("decode run job: %w", err)
		}
	default:
		return job, fmt.Errorf("unexpected run job payload %T", payload)
	}
	if job.CampaignID == "" || job.UserID == "" {
		return job, errors.New("run job without campaign or user")
	}
	return job, nil
}
