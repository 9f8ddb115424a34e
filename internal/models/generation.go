package models

import "encoding/json"

// GenerateQuizRequest describes the structured prompt for quiz generation.
type GenerateQuizRequest struct {
	CourseID      string   `json:"course_id" validate:"required"`
	Topic         string   `json:"topic" validate:"required"`
	Difficulty    string   `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Objectives    []string `json:"objectives"`
	QuestionCount int      `json:"question_count" validate:"omitempty,min=1,max=20"`
}

// GeneratedQuestion is one quiz item returned by the provider. The
// explanation is shown to the student regardless of correctness.
type GeneratedQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

// GeneratedQuiz is the structured quiz content returned by the provider.
type GeneratedQuiz struct {
	Title     string              `json:"title"`
	Questions []GeneratedQuestion `json:"questions"`
}

// GenerateActivityRequest describes the structured prompt for generating a
// full activity definition.
type GenerateActivityRequest struct {
	CourseID    string       `json:"course_id" validate:"required"`
	Topic       string       `json:"topic" validate:"required"`
	Type        ActivityType `json:"type" validate:"required"`
	Objectives  []string     `json:"objectives"`
	Constraints string       `json:"constraints"`
}

// GeneratedActivity is the provider's structured activity definition.
type GeneratedActivity struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Content     json.RawMessage `json:"content"`
}

// TutorTurnRequest is one student turn in an AI mastery session.
type TutorTurnRequest struct {
	CourseID   string   `json:"course_id" validate:"required"`
	ActivityID string   `json:"activity_id" validate:"required"`
	Objectives []string `json:"objectives" validate:"required,min=1"`
	Message    string   `json:"message" validate:"required"`
}

// ObjectiveUpdate is the provider's per-objective mastery estimate after a
// tutor turn.
type ObjectiveUpdate struct {
	Objective    string  `json:"objective"`
	MasteryLevel float64 `json:"mastery_level"`
}

// TutorEvaluation is the provider's structured response to a tutor turn.
type TutorEvaluation struct {
	Reply            string            `json:"reply"`
	ObjectiveUpdates []ObjectiveUpdate `json:"objective_updates"`
}
