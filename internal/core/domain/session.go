package domain

import "time"

// Session is the per-user interaction context carried between requests.
type Session struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Workflow   *Workflow `json:"workflow,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
