package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/unclebandit/outreach-dispatch/internal/model"
)

type ContactRepositoryInterface interface {
	ListActive(ctx context.Context, userID string) ([]model.Contact, error)
}

type ContactRepository struct {
	DB *sql.DB
}

func NewContactRepository(db *sql.DB) *ContactRepository {
	return &ContactRepository{DB: db}
}

func (r *ContactRepository) ListActive(ctx context.Context, userID string) ([]model.Contact, error) {
	query := `
		SELECT id, user_id, name, COALESCE(username, ''), COALESCE(telegram_id, ''), COALESCE(phone, ''), is_active
		FROM contacts
		WHERE user_id = $1 AND is_active = TRUE
		ORDER BY created_at, id`

	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Username, &c.TelegramID, &c.Phone, &c.IsActive); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
