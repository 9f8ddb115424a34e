package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumen-ed/lumen-api/internal/models"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
)

type eventRepository interface {
	Append(ctx context.Context, event *models.ActivityEvent) error
	ListBySession(ctx context.Context, sessionID string) ([]models.ActivityEvent, error)
	SessionCounters(ctx context.Context, sessionID string) (*models.SessionCounters, error)
}

// CollabService owns the durable collaboration event log. Every join,
// leave, contribution, message and stroke lands in the append-only
// activity_events table; session state is replayed from there and the
// engagement counters used for scoring are derived from it. Nothing in
// this path trusts client-side counters.
type CollabService struct {
	events     eventRepository
	activities completionActivityReader
	access     accessEvaluator
	enabled    bool
	logger     *zap.Logger
}

// NewCollabService constructs CollabService.
func NewCollabService(events eventRepository, activities completionActivityReader, access accessEvaluator, enabled bool, logger *zap.Logger) *CollabService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CollabService{events: events, activities: activities, access: access, enabled: enabled, logger: logger}
}

// RecordEvent appends one event to the session log after an access check
// against the owning activity.
func (s *CollabService) RecordEvent(ctx context.Context, studentID string, role models.UserRole, activityID, sessionID string, kind models.EventKind, payload json.RawMessage) (*models.ActivityEvent, error) {
	if !s.enabled {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "collaboration is disabled")
	}
	switch kind {
	case models.EventKindJoin, models.EventKindLeave, models.EventKindContribution, models.EventKindMessage, models.EventKindStroke:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown event kind")
	}
	if sessionID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session_id is required")
	}

	activity, err := s.activities.FindByID(ctx, activityID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
	}
	if activity.Type != models.ActivityTypeCollaborative {
		return nil, appErrors.Clone(appErrors.ErrValidation, "activity is not collaborative")
	}

	decision, err := s.access.Evaluate(ctx, studentID, role, activity)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed() {
		return nil, decision.Err()
	}

	event := &models.ActivityEvent{
		ID:         uuid.NewString(),
		ActivityID: activityID,
		SessionID:  sessionID,
		StudentID:  studentID,
		Kind:       kind,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.events.Append(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append event")
	}
	return event, nil
}

// ReplaySession returns the full ordered event log for a session so a
// client can rebuild its state.
func (s *CollabService) ReplaySession(ctx context.Context, sessionID string) ([]models.ActivityEvent, error) {
	events, err := s.events.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replay session")
	}
	return events, nil
}

// Counters returns the derived engagement counters for a session.
func (s *CollabService) Counters(ctx context.Context, sessionID string) (*models.SessionCounters, error) {
	counters, err := s.events.SessionCounters(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to derive session counters")
	}
	return counters, nil
}
