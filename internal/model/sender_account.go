// internal/model/sender_account.go
package model

import "time"

const (
	AccountActive   = "active"
	AccountInactive = "inactive"
	AccountBanned   = "banned"
)

type SenderAccount struct {
	ID           string     `db:"id" json:"id"`
	UserID       string     `db:"user_id" json:"user_id"`
	Name         string     `db:"name" json:"name"`
	Phone        string     `db:"phone" json:"phone,omitempty"`
	APIToken     string     `db:"api_token" json:"-"`
	Status       string     `db:"status" json:"status"`
	LastActivity *time.Time `db:"last_activity" json:"last_activity,omitempty"`
}
