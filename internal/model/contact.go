// internal/model/contact.go
package model

type Contact struct {
	ID         string `db:"id" json:"id"`
	UserID     string `db:"user_id" json:"user_id"`
	Name       string `db:"name" json:"name"`
	Username   string `db:"username" json:"username,omitempty"`
	TelegramID string `db:"telegram_id" json:"telegram_id,omitempty"`
	Phone      string `db:"phone" json:"phone,omitempty"`
	IsActive   bool   `db:"is_active" json:"is_active"`
}

// Placeholders returns the template values available for this contact.
func (c Contact) Placeholders() map[string]string {
	return map[string]string{
		"name":     c.Name,
		"username": c.Username,
	}
}
