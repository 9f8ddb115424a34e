package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-ed/lumen-api/internal/models"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
)

type mockEventRepo struct {
	events []models.ActivityEvent
}

func (m *mockEventRepo) Append(_ context.Context, event *models.ActivityEvent) error {
	m.events = append(m.events, *event)
	return nil
}

func (m *mockEventRepo) ListBySession(_ context.Context, sessionID string) ([]models.ActivityEvent, error) {
	var out []models.ActivityEvent
	for _, e := range m.events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEventRepo) SessionCounters(_ context.Context, sessionID string) (*models.SessionCounters, error) {
	counters := &models.SessionCounters{}
	seen := map[string]struct{}{}
	for _, e := range m.events {
		if e.SessionID != sessionID {
			continue
		}
		if e.Kind == models.EventKindJoin {
			if _, ok := seen[e.StudentID]; !ok {
				seen[e.StudentID] = struct{}{}
				counters.Participants++
			}
		}
		if e.Kind == models.EventKindContribution || e.Kind == models.EventKindStroke {
			counters.Contributions++
		}
	}
	return counters, nil
}

func newCollabFixture() (*CollabService, *mockEventRepo) {
	events := &mockEventRepo{}
	activities := &mockActivityReader{activities: map[string]*models.Activity{
		"collab-1": {ID: "collab-1", CourseID: "course-1", Type: models.ActivityTypeCollaborative},
		"quiz-1":   {ID: "quiz-1", CourseID: "course-1", Type: models.ActivityTypeQuiz},
	}}
	return NewCollabService(events, activities, allowAllAccess{}, true, nil), events
}

func TestCollabService_RecordAndReplay(t *testing.T) {
	svc, _ := newCollabFixture()

	_, err := svc.RecordEvent(context.Background(), "student-1", models.RoleStudent, "collab-1", "session-1", models.EventKindJoin, nil)
	require.NoError(t, err)
	_, err = svc.RecordEvent(context.Background(), "student-2", models.RoleStudent, "collab-1", "session-1", models.EventKindJoin, nil)
	require.NoError(t, err)
	_, err = svc.RecordEvent(context.Background(), "student-1", models.RoleStudent, "collab-1", "session-1", models.EventKindStroke, json.RawMessage(`{"x":1,"y":2}`))
	require.NoError(t, err)
	// A second session stays isolated.
	_, err = svc.RecordEvent(context.Background(), "student-3", models.RoleStudent, "collab-1", "session-2", models.EventKindJoin, nil)
	require.NoError(t, err)

	replay, err := svc.ReplaySession(context.Background(), "session-1")
	require.NoError(t, err)
	require.Len(t, replay, 3)
	assert.Equal(t, models.EventKindJoin, replay[0].Kind)
	assert.Equal(t, models.EventKindStroke, replay[2].Kind)

	counters, err := svc.Counters(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Equal(t, 2, counters.Participants)
	assert.Equal(t, 1, counters.Contributions)
}

func TestCollabService_RecordEvent_Validation(t *testing.T) {
	svc, _ := newCollabFixture()

	_, err := svc.RecordEvent(context.Background(), "student-1", models.RoleStudent, "collab-1", "", models.EventKindJoin, nil)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.RecordEvent(context.Background(), "student-1", models.RoleStudent, "collab-1", "session-1", models.EventKind("dance"), nil)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	// Only collaborative activities take session events.
	_, err = svc.RecordEvent(context.Background(), "student-1", models.RoleStudent, "quiz-1", "session-1", models.EventKindJoin, nil)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.RecordEvent(context.Background(), "student-1", models.RoleStudent, "missing", "session-1", models.EventKindJoin, nil)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCollabService_Disabled(t *testing.T) {
	events := &mockEventRepo{}
	activities := &mockActivityReader{activities: map[string]*models.Activity{}}
	svc := NewCollabService(events, activities, allowAllAccess{}, false, nil)

	_, err := svc.RecordEvent(context.Background(), "student-1", models.RoleStudent, "collab-1", "session-1", models.EventKindJoin, nil)
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)
}
