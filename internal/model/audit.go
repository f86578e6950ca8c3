// internal/model/audit.go
package model

import "time"

const AuditCampaignProcessed = "campaign_processed"

type AuditEntry struct {
	ID        string                 `db:"id" json:"id"`
	UserID    string                 `db:"user_id" json:"user_id"`
	Action    string                 `db:"action" json:"action"`
	TableName string                 `db:"table_name" json:"table_name"`
	NewData   map[string]interface{} `db:"new_data" json:"new_data"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}
