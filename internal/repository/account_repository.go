package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/unclebandit/outreach-dispatch/internal/model"
)

type AccountRepositoryInterface interface {
	ListActive(ctx context.Context, userID string) ([]model.SenderAccount, error)
	TouchLastActivity(ctx context.Context, accountID string, at time.Time) error
}

type AccountRepository struct {
	DB *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{DB: db}
}

// ListActive returns the user's active accounts, least recently used first.
// Accounts that were never used come before all others.
func (r *AccountRepository) ListActive(ctx context.Context, userID string) ([]model.SenderAccount, error) {
	query := `
		SELECT id, user_id, name, COALESCE(phone, ''), COALESCE(api_token, ''), status, last_activity
		FROM telegram_accounts
		WHERE user_id = $1 AND status = $2
		ORDER BY last_activity ASC NULLS FIRST, id`

	rows, err := r.DB.QueryContext(ctx, query, userID, model.AccountActive)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []model.SenderAccount{}
	for rows.Next() {
		var a model.SenderAccount
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Phone, &a.APIToken, &a.Status, &a.LastActivity); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *AccountRepository) TouchLastActivity(ctx context.Context, accountID string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE telegram_accounts SET last_activity=$1, updated_at=NOW() WHERE id=$2`,
		at, accountID,
	)
	if err != nil {
		return fmt.Errorf("touch account %s: %w", accountID, err)
	}
	return nil
}

var _ AccountRepositoryInterface = (*AccountRepository)(nil)
