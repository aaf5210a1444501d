package domain

import "time"

// BrokerConnection is the engine's read-only view of a user's brokerage
// account credentials. The engine never mutates these; the owning user
// manages them through the UI.
type BrokerConnection struct {
	ID        string
	UserID    string
	APIKey    string
	AccessToken string
	IsLive    bool
	ExpiresAt time.Time
}

// Expired reports whether the connection's access token has lapsed.
func (b BrokerConnection) Expired(now time.Time) bool {
	return !b.ExpiresAt.IsZero() && now.After(b.ExpiresAt)
}
