package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

// NotificationStore implements domain.NotificationStore against the
// notifications table.
type NotificationStore struct {
	pool *pgxpool.Pool
}

// NewNotificationStore creates a new NotificationStore backed by the
// given connection pool.
func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

// Create persists an outbound notification record, independent of
// whether a Sender successfully delivers it.
func (s *NotificationStore) Create(ctx context.Context, n domain.Notification) error {
	const query = `
		INSERT INTO notifications (id, user_id, title, message, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query, n.ID, n.UserID, n.Title, n.Message, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create notification %s: %w", n.ID, err)
	}
	return nil
}
