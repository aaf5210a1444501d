// Package changelistener keeps the in-memory trigger index consistent
// with the triggers table across process boundaries (C6). It listens on
// a Postgres NOTIFY channel fed by a trigger-table trigger, and folds
// each change into the index so an edit made by another engine instance,
// or by the UI directly against the database, is reflected here without
// a poll.
package changelistener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

// Channel is the Postgres NOTIFY channel the triggers table publishes to.
const Channel = "hmt_gtt_orders_changes"

// reconnectDelay is how long to wait before re-acquiring a listener
// connection after it drops.
const reconnectDelay = 5 * time.Second

// changeOp mirrors the operation names emitted by the notifying trigger
// function.
type changeOp string

const (
	opInsert changeOp = "INSERT"
	opUpdate changeOp = "UPDATE"
	opDelete changeOp = "DELETE"
)

// changePayload is the JSON body of a NOTIFY event.
type changePayload struct {
	Op string `json:"op"`
	ID string `json:"id"`
}

// Index is the subset of triggerindex.Index the listener mutates.
type Index interface {
	Add(t domain.Trigger)
	Remove(id string)
	Get(id string) (domain.Trigger, bool)
}

// FeedSubscriber lets the listener ask the Feed Manager to subscribe to
// a newly-relevant instrument.
type FeedSubscriber interface {
	Subscribe(tokens []uint32) error
}

// Listener subscribes to trigger-table change events and mutates an Index.
type Listener struct {
	pool     *pgxpool.Pool
	triggers domain.TriggerStore
	index    Index
	feed     FeedSubscriber
	logger   *slog.Logger
}

// New creates a Listener. feed may be nil in tests; applyUpsert skips the
// subscribe call in that case.
func New(pool *pgxpool.Pool, triggers domain.TriggerStore, index Index, feed FeedSubscriber, logger *slog.Logger) *Listener {
	return &Listener{
		pool:     pool,
		triggers: triggers,
		index:    index,
		feed:     feed,
		logger:   logger.With(slog.String("component", "changelistener")),
	}
}

// Run blocks, listening for change notifications until ctx is cancelled.
// On a dropped connection it reconnects after reconnectDelay rather than
// returning, so a transient network blip doesn't require a supervisor
// restart.
func (l *Listener) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if err := l.listenOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			l.logger.Warn("listener connection lost, retrying",
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (l *Listener) listenOnce(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("changelistener: acquire conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, fmt.Sprintf("LISTEN %s", Channel)); err != nil {
		return fmt.Errorf("changelistener: listen: %w", err)
	}
	l.logger.Info("listening for trigger changes", slog.String("channel", Channel))

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("changelistener: wait for notification: %w", err)
		}
		l.handleNotification(ctx, notification.Payload)
	}
}

func (l *Listener) handleNotification(ctx context.Context, payload string) {
	var change changePayload
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		l.logger.Warn("malformed change notification, skipping",
			slog.String("payload", payload),
			slog.String("error", err.Error()),
		)
		return
	}

	switch changeOp(change.Op) {
	case opDelete:
		l.index.Remove(change.ID)
		return
	case opInsert, opUpdate:
		l.applyUpsert(ctx, change.ID)
	default:
		l.logger.Warn("unknown change operation", slog.String("op", change.Op))
	}
}

func (l *Listener) applyUpsert(ctx context.Context, id string) {
	t, err := l.triggers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			l.index.Remove(id)
			return
		}
		l.logger.Warn("failed to reload trigger after change notification",
			slog.String("trigger_id", id),
			slog.String("error", err.Error()),
		)
		return
	}

	_, alreadyIndexed := l.index.Get(id)
	l.index.Remove(id)

	if t.Status != domain.TriggerActive {
		return
	}
	l.index.Add(t)

	if !alreadyIndexed && l.feed != nil {
		if err := l.feed.Subscribe([]uint32{t.InstrumentToken}); err != nil {
			l.logger.Warn("failed to subscribe new instrument",
				slog.String("trigger_id", id),
				slog.Uint64("instrument_token", uint64(t.InstrumentToken)),
				slog.String("error", err.Error()),
			)
		}
	}
}
