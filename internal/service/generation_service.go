package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumen-ed/lumen-api/internal/models"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
)

type contentGenerator interface {
	CompleteJSON(ctx context.Context, system, user string, dest interface{}) error
}

type masteryWriter interface {
	Upsert(ctx context.Context, record *models.ObjectiveMastery) error
}

const quizSystemPrompt = `You are a curriculum assistant. Respond with JSON only, matching the schema:
{"title": string, "questions": [{"question": string, "options": [string], "correct_answer": int, "explanation": string}]}.
The correct_answer is the zero-based index into options. Every question needs an explanation.`

const activitySystemPrompt = `You are a curriculum assistant. Respond with JSON only, matching the schema:
{"title": string, "description": string, "content": object}.`

const tutorSystemPrompt = `You are a patient tutor assessing a student's mastery. Respond with JSON only, matching the schema:
{"reply": string, "objective_updates": [{"objective": string, "mastery_level": number}]}.
mastery_level is 0-100. Only include objectives from the given list.`

// GenerationService forwards structured prompts to the generative content
// gateway and parses the responses defensively. Provider failures surface
// as typed retryable errors; they never take the service down.
type GenerationService struct {
	client      contentGenerator
	mastery     masteryWriter
	enrollments accessEnrollmentReader
	courses     accessCourseReader
	enabled     bool
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGenerationService constructs GenerationService. client may be nil when
// the gateway is disabled.
func NewGenerationService(client contentGenerator, mastery masteryWriter, enrollments accessEnrollmentReader, courses accessCourseReader, enabled bool, validate *validator.Validate, logger *zap.Logger) *GenerationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationService{
		client:      client,
		mastery:     mastery,
		enrollments: enrollments,
		courses:     courses,
		enabled:     enabled,
		validator:   validate,
		logger:      logger,
	}
}

// GenerateQuiz asks the provider for a quiz on the given topic and checks
// the structural invariants of the result before returning it.
func (s *GenerationService) GenerateQuiz(ctx context.Context, req models.GenerateQuizRequest) (*models.GeneratedQuiz, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quiz generation payload")
	}
	if err := s.available(); err != nil {
		return nil, err
	}

	count := req.QuestionCount
	if count == 0 {
		count = 5
	}
	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = "medium"
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Write a %s difficulty quiz with %d questions about %q.", difficulty, count, req.Topic)
	if len(req.Objectives) > 0 {
		fmt.Fprintf(&prompt, " Cover these learning objectives: %s.", strings.Join(req.Objectives, ", "))
	}

	var quiz models.GeneratedQuiz
	if err := s.client.CompleteJSON(ctx, quizSystemPrompt, prompt.String(), &quiz); err != nil {
		return nil, err
	}

	if len(quiz.Questions) == 0 {
		return nil, appErrors.Clone(appErrors.ErrProviderResponse, "provider returned a quiz with no questions")
	}
	for i, question := range quiz.Questions {
		if len(question.Options) < 2 {
			return nil, appErrors.Clone(appErrors.ErrProviderResponse, fmt.Sprintf("question %d has fewer than two options", i))
		}
		if question.CorrectAnswer < 0 || question.CorrectAnswer >= len(question.Options) {
			return nil, appErrors.Clone(appErrors.ErrProviderResponse, fmt.Sprintf("question %d has an out-of-range answer index", i))
		}
	}
	return &quiz, nil
}

// GenerateActivity asks the provider for a full activity definition.
func (s *GenerationService) GenerateActivity(ctx context.Context, req models.GenerateActivityRequest) (*models.GeneratedActivity, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid activity generation payload")
	}
	if err := s.available(); err != nil {
		return nil, err
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Design a %s activity about %q.", req.Type, req.Topic)
	if len(req.Objectives) > 0 {
		fmt.Fprintf(&prompt, " Learning objectives: %s.", strings.Join(req.Objectives, ", "))
	}
	if req.Constraints != "" {
		fmt.Fprintf(&prompt, " Constraints: %s.", req.Constraints)
	}

	var activity models.GeneratedActivity
	if err := s.client.CompleteJSON(ctx, activitySystemPrompt, prompt.String(), &activity); err != nil {
		return nil, err
	}
	if activity.Title == "" {
		return nil, appErrors.Clone(appErrors.ErrProviderResponse, "provider returned an activity without a title")
	}
	return &activity, nil
}

// EvaluateTutorTurn sends one student message to the tutor and persists the
// provider's per-objective mastery estimates. The student must hold an
// active enrollment in the course, and only objectives the course declares
// are assessed; mastery rows are never written for anything else.
func (s *GenerationService) EvaluateTutorTurn(ctx context.Context, studentID string, req models.TutorTurnRequest) (*models.TutorEvaluation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid tutor turn payload")
	}
	if err := s.available(); err != nil {
		return nil, err
	}

	enrolled, err := s.enrollments.ExistsActive(ctx, studentID, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.ErrNotEnrolled
	}

	objectives, err := s.courseObjectives(ctx, req.CourseID, req.Objectives)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf("Objectives under assessment: %s.\nStudent says: %s",
		strings.Join(objectives, ", "), req.Message)

	var evaluation models.TutorEvaluation
	if err := s.client.CompleteJSON(ctx, tutorSystemPrompt, prompt, &evaluation); err != nil {
		return nil, err
	}
	if evaluation.Reply == "" {
		return nil, appErrors.Clone(appErrors.ErrProviderResponse, "provider returned an empty tutor reply")
	}

	allowed := make(map[string]struct{}, len(objectives))
	for _, objective := range objectives {
		allowed[objective] = struct{}{}
	}

	kept := evaluation.ObjectiveUpdates[:0]
	for _, update := range evaluation.ObjectiveUpdates {
		if _, ok := allowed[update.Objective]; !ok {
			s.logger.Debug("dropping mastery update for unlisted objective", zap.String("objective", update.Objective))
			continue
		}
		update.MasteryLevel = clampMastery(update.MasteryLevel)
		if err := s.mastery.Upsert(ctx, &models.ObjectiveMastery{
			ID:           uuid.NewString(),
			StudentID:    studentID,
			CourseID:     req.CourseID,
			Objective:    update.Objective,
			MasteryLevel: update.MasteryLevel,
		}); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist mastery update")
		}
		kept = append(kept, update)
	}
	evaluation.ObjectiveUpdates = kept

	return &evaluation, nil
}

// courseObjectives intersects the requested objectives with the course's
// declared list. Requests naming only foreign objectives are rejected.
func (s *GenerationService) courseObjectives(ctx context.Context, courseID string, requested []string) ([]string, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	declared := make(map[string]struct{}, len(course.Objectives))
	for _, objective := range course.Objectives {
		declared[objective] = struct{}{}
	}

	kept := make([]string, 0, len(requested))
	for _, objective := range requested {
		if _, ok := declared[objective]; ok {
			kept = append(kept, objective)
			continue
		}
		s.logger.Debug("ignoring objective not declared by course",
			zap.String("course_id", courseID), zap.String("objective", objective))
	}
	if len(kept) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no requested objective belongs to the course")
	}
	return kept, nil
}

func (s *GenerationService) available() error {
	if !s.enabled || s.client == nil {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "content generation is disabled")
	}
	return nil
}

func clampMastery(level float64) float64 {
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}
