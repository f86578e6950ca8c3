package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/unclebandit/outreach-dispatch/internal/model"
)

type AuditRepositoryInterface interface {
	Insert(ctx context.Context, entry *model.AuditEntry) error
}

type AuditRepository struct {
	DB *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{DB: db}
}

func (r *AuditRepository) Insert(ctx context.Context, entry *model.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	data, err := json.Marshal(entry.NewData)
	if err != nil {
		return fmt.Errorf("encode audit data: %w", err)
	}
	query := `
		INSERT INTO audit_logs (id, user_id, action, table_name, new_data, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at`
	if err := r.DB.QueryRowContext(ctx, query, entry.ID, entry.UserID, entry.Action, entry.TableName, data).Scan(&entry.CreatedAt); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

var _ AuditRepositoryInterface = (*AuditRepository)(nil)
