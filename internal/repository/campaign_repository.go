package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	appErrors "github.com/unclebandit/outreach-dispatch/internal/errors"
	"github.com/unclebandit/outreach-dispatch/internal/model"
)

type CampaignRepositoryInterface interface {
	GetForOwner(ctx context.Context, id, userID string) (*model.Campaign, error)
	Update(ctx context.Context, id string, upd model.CampaignUpdate) error
	ClaimForRun(ctx context.Context, id string, totalRecipients int, startedAt time.Time) error
}

type CampaignRepository struct {
	DB *sql.DB
}

func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{DB: db}
}

const campaignColumns = `
	c.id, c.user_id, c.title, c.platform, c.status, c.message_template_id, COALESCE(t.content, ''),
	c.total_recipients, c.sent_count, c.delivered_count, c.failed_count,
	c.scheduled_at, c.started_at, c.completed_at, c.created_at, c.updated_at`

// GetForOwner loads a campaign with its template text. A campaign owned by
// another user is reported as not found.
func (r *CampaignRepository) GetForOwner(ctx context.Context, id, userID string) (*model.Campaign, error) {
	query := `SELECT` + campaignColumns + `
		FROM campaigns c
		LEFT JOIN message_templates t ON t.id = c.message_template_id
		WHERE c.id = $1 AND c.user_id = $2`

	var c model.Campaign
	err := r.DB.QueryRowContext(ctx, query, id, userID).Scan(
		&c.ID, &c.UserID, &c.Title, &c.Platform, &c.Status, &c.MessageTemplateID, &c.MessageContent,
		&c.TotalRecipients, &c.SentCount, &c.DeliveredCount, &c.FailedCount,
		&c.ScheduledAt, &c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, fmt.Errorf("get campaign %s: %w", id, err)
	}
	return &c, nil
}

// Update writes the non-nil fields of upd.
func (r *CampaignRepository) Update(ctx context.Context, id string, upd model.CampaignUpdate) error {
	sets := []string{}
	args := []interface{}{}
	argPos := 1

	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s=$%d", column, argPos))
		args = append(args, value)
		argPos++
	}
	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.TotalRecipients != nil {
		add("total_recipients", *upd.TotalRecipients)
	}
	if upd.SentCount != nil {
		add("sent_count", *upd.SentCount)
	}
	if upd.DeliveredCount != nil {
		add("delivered_count", *upd.DeliveredCount)
	}
	if upd.FailedCount != nil {
		add("failed_count", *upd.FailedCount)
	}
	if upd.StartedAt != nil {
		add("started_at", *upd.StartedAt)
	}
	if upd.CompletedAt != nil {
		add("completed_at", *upd.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE campaigns SET %s, updated_at=NOW() WHERE id=$%d", strings.Join(sets, ", "), argPos)
	args = append(args, id)

	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update campaign %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErrors.NewCampaignNotFound(id)
	}
	return nil
}

// ClaimForRun moves a draft or scheduled campaign to running. Only one of
// several concurrent claims succeeds; the others get an InvalidStateError.
func (r *CampaignRepository) ClaimForRun(ctx context.Context, id string, totalRecipients int, startedAt time.Time) error {
	query := `
		UPDATE campaigns
		SET status=$1, started_at=$2, total_recipients=$3, updated_at=NOW()
		WHERE id=$4 AND status IN ($5, $6)`
	res, err := r.DB.ExecContext(ctx, query,
		model.CampaignRunning, startedAt, totalRecipients, id,
		model.CampaignDraft, model.CampaignScheduled,
	)
	if err != nil {
		return fmt.Errorf("claim campaign %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim campaign %s: %w", id, err)
	}
	if n == 0 {
		return appErrors.NewInvalidState(id, "not draft or scheduled")
	}
	return nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
