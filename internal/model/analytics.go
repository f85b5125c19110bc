// internal/model/analytics.go
package model

import "time"

// EmailTotals counts emails by the first-occurrence timestamps they carry.
type EmailTotals struct {
	Sent         int
	Opened       int
	Clicked      int
	Unsubscribed int
	Bounced      int
}

type HourBucket struct {
	Hour   int       `json:"hour"`
	Start  time.Time `json:"timestamp"`
	Opens  int       `json:"opens"`
	Clicks int       `json:"clicks"`
}

type CountBucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type ContactEngagementRow struct {
	ContactID  int
	Email      string
	FirstName  string
	LastName   string
	EmailsSent int
	Opened     int
	Clicked    int
}

type DailyGrowth struct {
	Date           string `json:"date"`
	NewSubscribers int    `json:"new_subscribers"`
	Unsubscribes   int    `json:"unsubscribes"`
	NetGrowth      int    `json:"net_growth"`
}
