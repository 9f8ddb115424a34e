package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/lumen-ed/lumen-api/internal/models"
)

// EventRepository persists the collaboration event log and broadcasts new
// entries over a redis channel for connected clients.
type EventRepository struct {
	db      *sqlx.DB
	redis   *redis.Client
	channel string
}

// NewEventRepository constructs the repository. The redis client is optional;
// without it events are durable but not broadcast.
func NewEventRepository(db *sqlx.DB, redisClient *redis.Client, channel string) *EventRepository {
	if channel == "" {
		channel = "collab:events"
	}
	return &EventRepository{db: db, redis: redisClient, channel: channel}
}

// Append stores an event and publishes it to the broadcast channel. The
// durable write is authoritative; a failed publish is not an error.
func (r *EventRepository) Append(ctx context.Context, event *models.ActivityEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO activity_events (id, activity_id, session_id, student_id, kind, payload, created_at)
        VALUES (:id, :activity_id, :session_id, :student_id, :kind, :payload, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("append activity event: %w", err)
	}

	if r.redis != nil {
		if raw, err := json.Marshal(event); err == nil {
			_ = r.redis.Publish(ctx, r.channel, raw).Err()
		}
	}
	return nil
}

// ListBySession replays a session's events in append order.
func (r *EventRepository) ListBySession(ctx context.Context, sessionID string) ([]models.ActivityEvent, error) {
	const query = `SELECT id, activity_id, session_id, student_id, kind, payload, created_at
        FROM activity_events WHERE session_id = $1 ORDER BY created_at ASC, id ASC`
	var events []models.ActivityEvent
	if err := r.db.SelectContext(ctx, &events, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session events: %w", err)
	}
	return events, nil
}

// SessionCounters derives engagement counters for scoring from the log.
func (r *EventRepository) SessionCounters(ctx context.Context, sessionID string) (*models.SessionCounters, error) {
	const query = `SELECT
        COUNT(DISTINCT student_id) FILTER (WHERE kind = $2) AS participants,
        COUNT(*) FILTER (WHERE kind IN ($3, $4, $5)) AS contributions
        FROM activity_events WHERE session_id = $1`
	var counters models.SessionCounters
	if err := r.db.GetContext(ctx, &counters, query, sessionID,
		models.EventKindJoin, models.EventKindContribution, models.EventKindMessage, models.EventKindStroke); err != nil {
		return nil, fmt.Errorf("session counters: %w", err)
	}
	return &counters, nil
}

// Subscribe returns a redis pub/sub subscription for live event delivery.
func (r *EventRepository) Subscribe(ctx context.Context) *redis.PubSub {
	if r.redis == nil {
		return nil
	}
	return r.redis.Subscribe(ctx, r.channel)
}
