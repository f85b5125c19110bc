// internal/model/contact.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

type ContactStatus string

const (
	ContactActive       ContactStatus = "active"
	ContactUnsubscribed ContactStatus = "unsubscribed"
	ContactBounced      ContactStatus = "bounced"
	ContactComplained   ContactStatus = "complained"
)

func (s ContactStatus) Valid() bool {
	switch s {
	case ContactActive, ContactUnsubscribed, ContactBounced, ContactComplained:
		return true
	}
	return false
}

// JSONMap is a jsonb column holding arbitrary custom fields.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = JSONMap{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("JSONMap: unsupported type %T", src)
	}
	out := JSONMap{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

type Contact struct {
	ID              int            `db:"id" json:"id"`
	UserID          int            `db:"user_id" json:"user_id"`
	Email           string         `db:"email" json:"email"`
	FirstName       string         `db:"first_name" json:"first_name"`
	LastName        string         `db:"last_name" json:"last_name"`
	Company         string         `db:"company" json:"company"`
	Tags            pq.StringArray `db:"tags" json:"tags"`
	CustomFields    JSONMap        `db:"custom_fields" json:"custom_fields"`
	Status          ContactStatus  `db:"status" json:"status"`
	EngagementScore float64        `db:"engagement_score" json:"engagement_score"`
	SubscribedAt    time.Time      `db:"subscribed_at" json:"subscribed_at"`
	UnsubscribedAt  *time.Time     `db:"unsubscribed_at" json:"unsubscribed_at,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}

// FullName joins first and last name, skipping empty parts.
func (c *Contact) FullName() string {
	switch {
	case c.FirstName != "" && c.LastName != "":
		return c.FirstName + " " + c.LastName
	case c.FirstName != "":
		return c.FirstName
	default:
		return c.LastName
	}
}

// MergeTags adds tags that are not already present, keeping order.
func (c *Contact) MergeTags(tags []string) {
	seen := make(map[string]struct{}, len(c.Tags))
	for _, t := range c.Tags {
		seen[t] = struct{}{}
	}
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		c.Tags = append(c.Tags, t)
	}
}
