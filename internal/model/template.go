// internal/model/template.go
package model

import "time"

type Template struct {
	ID          int        `db:"id" json:"id"`
	UserID      *int       `db:"user_id" json:"user_id,omitempty"`
	Name        string     `db:"name" json:"name"`
	Description string     `db:"description" json:"description,omitempty"`
	Subject     string     `db:"subject" json:"subject"`
	Content     string     `db:"content" json:"content"`
	Category    string     `db:"category" json:"category,omitempty"`
	IsDefault   bool       `db:"is_default" json:"is_default"`
	UsageCount  int        `db:"usage_count" json:"usage_count"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// OwnedBy reports whether userID may modify the template.
func (t *Template) OwnedBy(userID int) bool {
	return !t.IsDefault && t.UserID != nil && *t.UserID == userID
}
