// internal/model/campaign.go
package model

import "time"

const (
	CampaignDraft     = "draft"
	CampaignScheduled = "scheduled"
	CampaignRunning   = "running"
	CampaignCompleted = "completed"
	CampaignPaused    = "paused"
)

type Campaign struct {
	ID                string     `db:"id" json:"id"`
	UserID            string     `db:"user_id" json:"user_id"`
	Title             string     `db:"title" json:"title"`
	Platform          string     `db:"platform" json:"platform"`
	Status            string     `db:"status" json:"status"`
	MessageTemplateID *string    `db:"message_template_id" json:"message_template_id,omitempty"`
	MessageContent    string     `db:"content" json:"message_content"`
	TotalRecipients   int        `db:"total_recipients" json:"total_recipients"`
	SentCount         int        `db:"sent_count" json:"sent_count"`
	DeliveredCount    int        `db:"delivered_count" json:"delivered_count"`
	FailedCount       int        `db:"failed_count" json:"failed_count"`
	ScheduledAt       *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	StartedAt         *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt       *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// Runnable reports whether a run may be started from the current status.
func (c *Campaign) Runnable() bool {
	return c.Status == CampaignDraft || c.Status == CampaignScheduled
}

// CampaignUpdate carries the partial set of columns the runner writes.
// Nil fields are left untouched.
type CampaignUpdate struct {
	Status          *string
	TotalRecipients *int
	SentCount       *int
	DeliveredCount  *int
	FailedCount     *int
	StartedAt       *time.Time
	CompletedAt     *time.Time
}
