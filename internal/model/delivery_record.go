// internal/model/delivery_record.go
package model

import "time"

const (
	DeliveryPending = "pending"
	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
)

// RecordKey addresses one ledger row. A run writes each key exactly once
// after creating it.
type RecordKey struct {
	CampaignID string
	ContactID  string
	AccountID  string
}

type DeliveryRecord struct {
	ID           string     `db:"id" json:"id"`
	CampaignID   string     `db:"campaign_id" json:"campaign_id"`
	ContactID    string     `db:"contact_id" json:"contact_id"`
	AccountID    string     `db:"telegram_account_id" json:"telegram_account_id"`
	Status       string     `db:"status" json:"status"` // pending, sent, failed
	SentAt       *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	ErrorMessage string     `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

func (r DeliveryRecord) Key() RecordKey {
	return RecordKey{CampaignID: r.CampaignID, ContactID: r.ContactID, AccountID: r.AccountID}
}
