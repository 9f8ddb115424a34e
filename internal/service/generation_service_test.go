package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-ed/lumen-api/internal/models"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
)

type stubGenerator struct {
	response string
	err      error
	prompts  []string
}

func (s *stubGenerator) CompleteJSON(_ context.Context, _, user string, dest interface{}) error {
	s.prompts = append(s.prompts, user)
	if s.err != nil {
		return s.err
	}
	return json.Unmarshal([]byte(s.response), dest)
}

type stubMasteryWriter struct {
	records []models.ObjectiveMastery
}

func (s *stubMasteryWriter) Upsert(_ context.Context, record *models.ObjectiveMastery) error {
	s.records = append(s.records, *record)
	return nil
}

type stubEnrollmentChecker struct {
	active map[string]bool
}

func (s *stubEnrollmentChecker) ExistsActive(_ context.Context, studentID, courseID string) (bool, error) {
	return s.active[studentID+"/"+courseID], nil
}

type stubCourseCatalog struct {
	courses map[string]*models.Course
}

func (s *stubCourseCatalog) FindByID(_ context.Context, id string) (*models.Course, error) {
	if c, ok := s.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

// newGenerationService wires the service against a catalog holding course-1
// with the Fractions and Decimals objectives, and student-1 enrolled in it.
func newGenerationService(gen contentGenerator, mastery masteryWriter, enabled bool) *GenerationService {
	enrollments := &stubEnrollmentChecker{active: map[string]bool{"student-1/course-1": true}}
	courses := &stubCourseCatalog{courses: map[string]*models.Course{
		"course-1": {ID: "course-1", TeacherID: "teacher-1", Objectives: []string{"Fractions", "Decimals"}},
	}}
	return NewGenerationService(gen, mastery, enrollments, courses, enabled, nil, nil)
}

func TestGenerationService_GenerateQuiz(t *testing.T) {
	gen := &stubGenerator{response: `{
		"title": "Fractions",
		"questions": [
			{"question": "1/2 + 1/4?", "options": ["3/4", "2/6", "1/8"], "correct_answer": 0, "explanation": "common denominator"}
		]
	}`}
	svc := newGenerationService(gen, &stubMasteryWriter{}, true)

	quiz, err := svc.GenerateQuiz(context.Background(), models.GenerateQuizRequest{
		CourseID: "course-1", Topic: "fractions", Objectives: []string{"Fractions"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Fractions", quiz.Title)
	require.Len(t, quiz.Questions, 1)
	assert.Equal(t, "common denominator", quiz.Questions[0].Explanation)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "fractions")
}

func TestGenerationService_GenerateQuiz_RejectsMalformed(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"no questions", `{"title": "Empty", "questions": []}`},
		{"answer index out of range", `{"questions": [{"question": "?", "options": ["a", "b"], "correct_answer": 5}]}`},
		{"too few options", `{"questions": [{"question": "?", "options": ["a"], "correct_answer": 0}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newGenerationService(&stubGenerator{response: tt.response}, &stubMasteryWriter{}, true)
			_, err := svc.GenerateQuiz(context.Background(), models.GenerateQuizRequest{CourseID: "course-1", Topic: "x"})
			require.Error(t, err)
			assert.ErrorIs(t, err, appErrors.ErrProviderResponse)
			assert.True(t, appErrors.Retryable(err))
		})
	}
}

func TestGenerationService_ProviderErrorsPassThrough(t *testing.T) {
	svc := newGenerationService(&stubGenerator{err: appErrors.ErrProviderTimeout}, &stubMasteryWriter{}, true)

	_, err := svc.GenerateQuiz(context.Background(), models.GenerateQuizRequest{CourseID: "course-1", Topic: "x"})
	assert.ErrorIs(t, err, appErrors.ErrProviderTimeout)
	assert.True(t, appErrors.Retryable(err))
}

func TestGenerationService_Disabled(t *testing.T) {
	svc := newGenerationService(nil, &stubMasteryWriter{}, false)

	_, err := svc.GenerateQuiz(context.Background(), models.GenerateQuizRequest{CourseID: "course-1", Topic: "x"})
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)
}

func TestGenerationService_EvaluateTutorTurn(t *testing.T) {
	gen := &stubGenerator{response: `{
		"reply": "Good try! Remember the common denominator.",
		"objective_updates": [
			{"objective": "Fractions", "mastery_level": 62},
			{"objective": "Quantum Physics", "mastery_level": 99},
			{"objective": "Decimals", "mastery_level": 140}
		]
	}`}
	mastery := &stubMasteryWriter{}
	svc := newGenerationService(gen, mastery, true)

	evaluation, err := svc.EvaluateTutorTurn(context.Background(), "student-1", models.TutorTurnRequest{
		CourseID:   "course-1",
		ActivityID: "chat-1",
		Objectives: []string{"Fractions", "Decimals"},
		Message:    "is it 2/6?",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, evaluation.Reply)

	// The undeclared objective is dropped; out-of-range mastery is clamped.
	require.Len(t, evaluation.ObjectiveUpdates, 2)
	require.Len(t, mastery.records, 2)
	assert.Equal(t, "Fractions", mastery.records[0].Objective)
	assert.Equal(t, 62.0, mastery.records[0].MasteryLevel)
	assert.Equal(t, "Decimals", mastery.records[1].Objective)
	assert.Equal(t, 100.0, mastery.records[1].MasteryLevel)
}

func TestGenerationService_EvaluateTutorTurn_RequiresEnrollment(t *testing.T) {
	gen := &stubGenerator{response: `{"reply": "hi", "objective_updates": []}`}
	mastery := &stubMasteryWriter{}
	svc := newGenerationService(gen, mastery, true)

	_, err := svc.EvaluateTutorTurn(context.Background(), "student-2", models.TutorTurnRequest{
		CourseID:   "course-1",
		ActivityID: "chat-1",
		Objectives: []string{"Fractions"},
		Message:    "hello",
	})
	assert.ErrorIs(t, err, appErrors.ErrNotEnrolled)
	assert.Empty(t, gen.prompts)
	assert.Empty(t, mastery.records)
}

func TestGenerationService_EvaluateTutorTurn_ObjectivesScopedToCourse(t *testing.T) {
	gen := &stubGenerator{response: `{
		"reply": "ok",
		"objective_updates": [
			{"objective": "Fractions", "mastery_level": 50},
			{"objective": "Underwater Basket Weaving", "mastery_level": 95}
		]
	}`}
	mastery := &stubMasteryWriter{}
	svc := newGenerationService(gen, mastery, true)

	evaluation, err := svc.EvaluateTutorTurn(context.Background(), "student-1", models.TutorTurnRequest{
		CourseID:   "course-1",
		ActivityID: "chat-1",
		Objectives: []string{"Fractions", "Underwater Basket Weaving"},
		Message:    "hello",
	})
	require.NoError(t, err)

	// The foreign objective never reaches the prompt and never gets a row.
	require.Len(t, gen.prompts, 1)
	assert.NotContains(t, gen.prompts[0], "Underwater Basket Weaving")
	require.Len(t, mastery.records, 1)
	assert.Equal(t, "Fractions", mastery.records[0].Objective)
	require.Len(t, evaluation.ObjectiveUpdates, 1)

	// Naming only objectives the course never declared is a bad request.
	_, err = svc.EvaluateTutorTurn(context.Background(), "student-1", models.TutorTurnRequest{
		CourseID:   "course-1",
		ActivityID: "chat-1",
		Objectives: []string{"Underwater Basket Weaving"},
		Message:    "hello",
	})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
