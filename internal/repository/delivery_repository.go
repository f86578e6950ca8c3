package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/outreach-dispatch/internal/model"
)

type DeliveryRepositoryInterface interface {
	CreatePending(ctx context.Context, campaignID string, keys []model.RecordKey) error
	MarkSent(ctx context.Context, key model.RecordKey, at time.Time) error
	MarkFailed(ctx context.Context, key model.RecordKey, errorMessage string) error
	Stats(ctx context.Context, campaignID string) (map[string]int, error)
}

// DeliveryRepository is the message_logs ledger.
type DeliveryRepository struct {
	DB *sql.DB
}

func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{DB: db}
}

// CreatePending inserts one pending row per key in a single transaction.
// Rows that already exist for the same campaign and contact are kept as is.
func (r *DeliveryRepository) CreatePending(ctx context.Context, campaignID string, keys []model.RecordKey) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin pending records: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO message_logs (id, campaign_id, contact_id, telegram_account_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (campaign_id, contact_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare pending records: %w", err)
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), campaignID, k.ContactID, k.AccountID, model.DeliveryPending); err != nil {
			return fmt.Errorf("insert pending record for contact %s: %w", k.ContactID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit pending records: %w", err)
	}
	return nil
}

// MarkSent and MarkFailed only move pending rows; a terminal row is never
// rewritten.
func (r *DeliveryRepository) MarkSent(ctx context.Context, key model.RecordKey, at time.Time) error {
	query := `
		UPDATE message_logs SET status=$1, sent_at=$2
		WHERE campaign_id=$3 AND contact_id=$4 AND telegram_account_id=$5 AND status=$6`
	_, err := r.DB.ExecContext(ctx, query,
		model.DeliverySent, at, key.CampaignID, key.ContactID, key.AccountID, model.DeliveryPending)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

func (r *DeliveryRepository) MarkFailed(ctx context.Context, key model.RecordKey, errorMessage string) error {
	query := `
		UPDATE message_logs SET status=$1, error_message=$2
		WHERE campaign_id=$3 AND contact_id=$4 AND telegram_account_id=$5 AND status=$6`
	_, err := r.DB.ExecContext(ctx, query,
		model.DeliveryFailed, errorMessage, key.CampaignID, key.ContactID, key.AccountID, model.DeliveryPending)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// Stats counts the campaign's ledger rows by status, plus a "total" entry.
func (r *DeliveryRepository) Stats(ctx context.Context, campaignID string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM message_logs WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("delivery stats: %w", err)
	}
	defer rows.Close()

	stats := map[string]int{model.DeliveryPending: 0, model.DeliverySent: 0, model.DeliveryFailed: 0, "total": 0}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
		stats["total"] += count
	}
	return stats, rows.Err()
}

var _ DeliveryRepositoryInterface = (*DeliveryRepository)(nil)
