package domain

import "time"

// Notification is a user-facing message emitted on a terminal trigger
// transition or a webhook order placement.
type Notification struct {
	ID        string
	UserID    string
	Title     string
	Message   string
	CreatedAt time.Time
}
