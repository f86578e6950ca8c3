// internal/model/run_job.go
package model

import "time"

// RunJob asks a worker to run one campaign on behalf of its owner.
type RunJob struct {
	JobID       string    `json:"job_id"`
	CampaignID  string    `json:"campaign_id"`
	UserID      string    `json:"user_id"`
	RequestedAt time.Time `json:"requested_at"`
}
