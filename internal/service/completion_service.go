package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumen-ed/lumen-api/internal/models"
	"github.com/lumen-ed/lumen-api/pkg/config"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
	"github.com/lumen-ed/lumen-api/pkg/jobs"
)

const JobTypeMasteryUpdate = "mastery_update"

// MasteryUpdateJob is the payload enqueued after a scored completion so
// analytics rollups can be refreshed off the request path.
type MasteryUpdateJob struct {
	StudentID  string
	CourseID   string
	ActivityID string
}

type submissionStore interface {
	Upsert(ctx context.Context, submission *models.Submission) error
	FindByStudentAndActivity(ctx context.Context, studentID, activityID string) (*models.Submission, error)
}

type completionActivityReader interface {
	FindByID(ctx context.Context, id string) (*models.Activity, error)
}

type sessionCounterReader interface {
	SessionCounters(ctx context.Context, sessionID string) (*models.SessionCounters, error)
}

type masteryReader interface {
	ListByStudentAndCourse(ctx context.Context, studentID, courseID string) ([]models.ObjectiveMastery, error)
}

type accessEvaluator interface {
	Evaluate(ctx context.Context, userID string, role models.UserRole, activity *models.Activity) (Decision, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// grader computes the server-side score for one activity type. The client
// never supplies points; it supplies raw interaction data only.
type grader interface {
	grade(ctx context.Context, activity *models.Activity, existing *models.Submission, payload models.AttemptPayload) (points int, score *float64, results []models.QuestionResult, err error)
}

// CompletionService drives the attempt state machine and owns all point
// and score computation.
type CompletionService struct {
	submissions submissionStore
	activities  completionActivityReader
	access      accessEvaluator
	queue       jobEnqueuer
	graders     map[models.ActivityType]grader
	config      config.CompletionConfig
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCompletionService constructs CompletionService with per-type graders.
// matcher may be nil, in which case the lenient token-overlap default is
// used for simulation steps.
func NewCompletionService(
	submissions submissionStore,
	activities completionActivityReader,
	access accessEvaluator,
	events sessionCounterReader,
	mastery masteryReader,
	queue jobEnqueuer,
	matcher AnswerMatcher,
	cfg config.CompletionConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *CompletionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if matcher == nil {
		matcher = NewTokenOverlapMatcher(cfg.MatchThreshold)
	}

	graders := map[models.ActivityType]grader{
		models.ActivityTypeQuiz:          &quizGrader{},
		models.ActivityTypeReading:       &contentGrader{gate: cfg.ContentGateRatio},
		models.ActivityTypeVideo:         &contentGrader{gate: cfg.ContentGateRatio},
		models.ActivityTypePDF:           &contentGrader{gate: cfg.ContentGateRatio},
		models.ActivityTypeInteractive:   &interactiveGrader{matcher: matcher, noHintBonus: cfg.SimulationHintBonus},
		models.ActivityTypeCollaborative: &collaborativeGrader{events: events},
		models.ActivityTypeAIChat:        &aiChatGrader{mastery: mastery},
		models.ActivityTypeCustom:        &customGrader{},
	}

	return &CompletionService{
		submissions: submissions,
		activities:  activities,
		access:      access,
		queue:       queue,
		graders:     graders,
		config:      cfg,
		validator:   validate,
		logger:      logger,
	}
}

// Start moves an attempt to in_progress. Starting an attempt that is
// already past not_started is a no-op success.
func (s *CompletionService) Start(ctx context.Context, studentID string, role models.UserRole, activityID string) (*models.Submission, error) {
	activity, submission, err := s.load(ctx, studentID, role, activityID)
	if err != nil {
		return nil, err
	}

	if submission.Status != models.SubmissionStatusNotStarted {
		return submission, nil
	}

	now := time.Now()
	submission.Status = models.SubmissionStatusInProgress
	submission.StartedAt = &now
	if err := s.submissions.Upsert(ctx, submission); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attempt start")
	}

	s.logger.Debug("attempt started",
		zap.String("student_id", studentID),
		zap.String("activity_id", activity.ID),
	)
	return submission, nil
}

// ReportProgress records a consumption ratio for content activities
// (reading, video, pdf). Crossing the gate awards the activity's flat
// points exactly once; reporting again after that is a no-op success.
func (s *CompletionService) ReportProgress(ctx context.Context, studentID string, role models.UserRole, activityID string, ratio float64) (*models.Submission, error) {
	activity, submission, err := s.load(ctx, studentID, role, activityID)
	if err != nil {
		return nil, err
	}

	switch activity.Type {
	case models.ActivityTypeReading, models.ActivityTypeVideo, models.ActivityTypePDF:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "progress reporting only applies to content activities")
	}

	if submission.Status == models.SubmissionStatusSubmitted || submission.Status == models.SubmissionStatusGraded {
		return submission, nil
	}
	if submission.Status == models.SubmissionStatusAbandoned {
		return nil, appErrors.ErrInvalidTransition
	}

	ratio = clampRatio(ratio)
	// Progress never rewinds: a stale or replayed report cannot lower it.
	if ratio < submission.ProgressRatio {
		ratio = submission.ProgressRatio
	}

	now := time.Now()
	if submission.StartedAt == nil {
		submission.StartedAt = &now
	}
	submission.ProgressRatio = ratio
	submission.Status = models.SubmissionStatusInProgress

	if ratio >= s.config.ContentGateRatio {
		score := ratio * 100
		submission.Status = models.SubmissionStatusSubmitted
		submission.SubmittedAt = &now
		submission.PointsEarned = activity.Points
		submission.Score = &score
	}

	if err := s.submissions.Upsert(ctx, submission); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record progress")
	}

	if submission.Status == models.SubmissionStatusSubmitted {
		s.enqueueMasteryUpdate(studentID, activity)
	}
	return submission, nil
}

// Submit scores the attempt server-side and moves it to submitted. The
// awarded points depend on the activity type's grader. A write failure
// returns an error and no state is assumed persisted.
func (s *CompletionService) Submit(ctx context.Context, studentID string, role models.UserRole, activityID string, payload models.AttemptPayload) (*models.AttemptResult, error) {
	activity, submission, err := s.load(ctx, studentID, role, activityID)
	if err != nil {
		return nil, err
	}

	// Submitting a fresh attempt starts it implicitly, so the stepwise
	// transition check always runs against in_progress or later.
	if submission.Status == models.SubmissionStatusNotStarted {
		submission.Status = models.SubmissionStatusInProgress
	}
	if !submission.Status.CanTransitionTo(models.SubmissionStatusSubmitted) {
		return nil, appErrors.ErrInvalidTransition
	}

	typeGrader, ok := s.graders[activity.Type]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported activity type")
	}

	points, score, results, err := typeGrader.grade(ctx, activity, submission, payload)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if submission.StartedAt == nil {
		submission.StartedAt = &now
	}
	submission.Status = models.SubmissionStatusSubmitted
	submission.SubmittedAt = &now
	submission.PointsEarned = points
	submission.Score = score
	submission.ProgressRatio = 1

	if err := s.submissions.Upsert(ctx, submission); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record submission")
	}

	s.enqueueMasteryUpdate(studentID, activity)

	s.logger.Info("attempt submitted",
		zap.String("student_id", studentID),
		zap.String("activity_id", activity.ID),
		zap.String("type", string(activity.Type)),
		zap.Int("points", points),
	)
	return &models.AttemptResult{Submission: submission, QuestionResults: results}, nil
}

// Abandon terminates an in-progress attempt without points. Abandoned is a
// terminal state.
func (s *CompletionService) Abandon(ctx context.Context, studentID string, role models.UserRole, activityID string) (*models.Submission, error) {
	_, submission, err := s.load(ctx, studentID, role, activityID)
	if err != nil {
		return nil, err
	}

	if !submission.Status.CanTransitionTo(models.SubmissionStatusAbandoned) {
		return nil, appErrors.ErrInvalidTransition
	}

	submission.Status = models.SubmissionStatusAbandoned
	if err := s.submissions.Upsert(ctx, submission); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record abandonment")
	}
	return submission, nil
}

// Grade finalises a submitted attempt. Only gradeable activity types reach
// graded; an optional override replaces the computed points.
func (s *CompletionService) Grade(ctx context.Context, studentID, activityID string, overridePoints *int) (*models.Submission, error) {
	activity, err := s.activities.FindByID(ctx, activityID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity")
	}

	if !activity.Type.Gradeable() {
		return nil, appErrors.ErrNotGradeable
	}

	submission, err := s.submissions.FindByStudentAndActivity(ctx, studentID, activityID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}

	if !submission.Status.CanTransitionTo(models.SubmissionStatusGraded) {
		return nil, appErrors.ErrInvalidTransition
	}

	now := time.Now()
	submission.Status = models.SubmissionStatusGraded
	submission.GradedAt = &now
	if overridePoints != nil {
		submission.PointsEarned = *overridePoints
		if activity.Points > 0 {
			score := float64(*overridePoints) / float64(activity.Points) * 100
			submission.Score = &score
		}
	}

	if err := s.submissions.Upsert(ctx, submission); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record grade")
	}
	return submission, nil
}

// Get returns the current attempt state for one student and activity.
func (s *CompletionService) Get(ctx context.Context, studentID string, role models.UserRole, activityID string) (*models.Submission, error) {
	_, submission, err := s.load(ctx, studentID, role, activityID)
	if err != nil {
		return nil, err
	}
	return submission, nil
}

// load fetches the activity, enforces access policy, and returns the
// existing submission or a fresh not_started one.
func (s *CompletionService) load(ctx context.Context, studentID string, role models.UserRole, activityID string) (*models.Activity, *models.Submission, error) {
	activity, err := s.activities.FindByID(ctx, activityID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity")
	}

	decision, err := s.access.Evaluate(ctx, studentID, role, activity)
	if err != nil {
		return nil, nil, err
	}
	if !decision.Allowed() {
		return nil, nil, decision.Err()
	}

	submission, err := s.submissions.FindByStudentAndActivity(ctx, studentID, activityID)
	if err != nil {
		if err != sql.ErrNoRows {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
		}
		submission = &models.Submission{
			ID:         uuid.New().String(),
			StudentID:  studentID,
			ActivityID: activityID,
			CourseID:   activity.CourseID,
			Status:     models.SubmissionStatusNotStarted,
		}
	}
	return activity, submission, nil
}

func (s *CompletionService) enqueueMasteryUpdate(studentID string, activity *models.Activity) {
	if s.queue == nil {
		return
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:   uuid.New().String(),
		Type: JobTypeMasteryUpdate,
		Payload: MasteryUpdateJob{
			StudentID:  studentID,
			CourseID:   activity.CourseID,
			ActivityID: activity.ID,
		},
	})
	if err != nil {
		s.logger.Warn("failed to enqueue mastery update",
			zap.String("student_id", studentID),
			zap.String("activity_id", activity.ID),
			zap.Error(err),
		)
	}
}

func clampRatio(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// quizGrader scores a quiz as round(correct/total x points). Explanations
// are returned for every question regardless of correctness.
type quizGrader struct{}

func (g *quizGrader) grade(_ context.Context, activity *models.Activity, _ *models.Submission, payload models.AttemptPayload) (int, *float64, []models.QuestionResult, error) {
	var content models.QuizContent
	if err := json.Unmarshal(activity.Content, &content); err != nil {
		return 0, nil, nil, appErrors.Clone(appErrors.ErrValidation, "malformed quiz content")
	}
	if len(content.Questions) == 0 {
		return 0, nil, nil, appErrors.Clone(appErrors.ErrValidation, "quiz has no questions")
	}
	if len(payload.Answers) != len(content.Questions) {
		return 0, nil, nil, appErrors.Clone(appErrors.ErrValidation, "answer count does not match question count")
	}

	correct := 0
	results := make([]models.QuestionResult, len(content.Questions))
	for i, question := range content.Questions {
		ok := payload.Answers[i] == question.CorrectIndex
		if ok {
			correct++
		}
		results[i] = models.QuestionResult{
			Index:       i,
			Correct:     ok,
			Selected:    payload.Answers[i],
			Explanation: question.Explanation,
		}
	}

	ratio := float64(correct) / float64(len(content.Questions))
	points := int(math.Round(ratio * float64(activity.Points)))
	score := ratio * 100
	return points, &score, results, nil
}

// contentGrader gates completion of reading/video/pdf activities on the
// consumption ratio already recorded via ReportProgress.
type contentGrader struct {
	gate float64
}

func (g *contentGrader) grade(_ context.Context, activity *models.Activity, existing *models.Submission, _ models.AttemptPayload) (int, *float64, []models.QuestionResult, error) {
	if existing.ProgressRatio < g.gate {
		return 0, nil, nil, appErrors.ErrProgressGate
	}
	score := existing.ProgressRatio * 100
	return activity.Points, &score, nil, nil
}

// interactiveGrader sums per-step points for steps whose free-text action
// matches the expected action, plus a fixed bonus when no hints were used.
type interactiveGrader struct {
	matcher     AnswerMatcher
	noHintBonus int
}

func (g *interactiveGrader) grade(_ context.Context, activity *models.Activity, _ *models.Submission, payload models.AttemptPayload) (int, *float64, []models.QuestionResult, error) {
	var content models.InteractiveContent
	if err := json.Unmarshal(activity.Content, &content); err != nil {
		return 0, nil, nil, appErrors.Clone(appErrors.ErrValidation, "malformed simulation content")
	}
	if len(content.Steps) == 0 {
		return 0, nil, nil, appErrors.Clone(appErrors.ErrValidation, "simulation has no steps")
	}
	if len(payload.StepActions) != len(content.Steps) {
		return 0, nil, nil, appErrors.Clone(appErrors.ErrValidation, "step count does not match simulation")
	}

	points := 0
	maxPoints := 0
	for i, step := range content.Steps {
		maxPoints += step.Points
		if g.matcher.Match(payload.StepActions[i], step.ExpectedAction) {
			points += step.Points
		}
	}
	if payload.HintsUsed == 0 {
		points += g.noHintBonus
	}

	var score float64
	if maxPoints > 0 {
		score = math.Min(float64(points)/float64(maxPoints), 1) * 100
	}
	return points, &score, nil, nil
}

// collaborativeGrader derives points from the durable session event log:
// participants x10 plus contributions x5. Client-reported counters are
// never trusted.
type collaborativeGrader struct {
	events sessionCounterReader
}

func (g *collaborativeGrader) grade(ctx context.Context, _ *models.Activity, _ *models.Submission, payload models.AttemptPayload) (int, *float64, []models.QuestionResult, error) {
	if payload.SessionID == "" {
		return 0, nil, nil, appErrors.Clone(appErrors.ErrValidation, "session_id is required for collaborative activities")
	}
	counters, err := g.events.SessionCounters(ctx, payload.SessionID)
	if err != nil {
		return 0, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read session counters")
	}
	points := counters.Participants*10 + counters.Contributions*5
	return points, nil, nil, nil
}

// aiChatGrader awards round(mean objective mastery x 2) based on the
// mastery records the tutor session has accumulated.
type aiChatGrader struct {
	mastery masteryReader
}

func (g *aiChatGrader) grade(ctx context.Context, activity *models.Activity, existing *models.Submission, _ models.AttemptPayload) (int, *float64, []models.QuestionResult, error) {
	records, err := g.mastery.ListByStudentAndCourse(ctx, existing.StudentID, activity.CourseID)
	if err != nil {
		return 0, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read mastery records")
	}
	if len(records) == 0 {
		score := 0.0
		return 0, &score, nil, nil
	}

	total := 0.0
	for _, record := range records {
		total += record.MasteryLevel
	}
	mean := total / float64(len(records))
	points := int(math.Round(mean * 2))
	return points, &mean, nil, nil
}

// customGrader leaves points to the teacher: submission succeeds with zero
// points and waits in submitted until graded.
type customGrader struct{}

func (g *customGrader) grade(context.Context, *models.Activity, *models.Submission, models.AttemptPayload) (int, *float64, []models.QuestionResult, error) {
	return 0, nil, nil, nil
}
