package models

import "encoding/json"

// QuizQuestion is one item of a quiz activity's content payload.
type QuizQuestion struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation"`
}

// QuizContent is the content payload of a quiz activity.
type QuizContent struct {
	Questions []QuizQuestion `json:"questions"`
}

// InteractiveStep is one expected action in a simulation activity.
type InteractiveStep struct {
	Prompt         string `json:"prompt"`
	ExpectedAction string `json:"expected_action"`
	Points         int    `json:"points"`
}

// InteractiveContent is the content payload of an interactive simulation.
type InteractiveContent struct {
	Steps []InteractiveStep `json:"steps"`
}

// AttemptPayload carries the student's raw interaction with an activity.
// Scoring happens server-side; the client never sends points.
type AttemptPayload struct {
	// Answers holds the selected option index per quiz question.
	Answers []int `json:"answers,omitempty"`
	// StepActions holds the free-text response per simulation step.
	StepActions []string `json:"step_actions,omitempty"`
	HintsUsed   int      `json:"hints_used,omitempty"`
	// SessionID identifies the collaboration session whose durable event
	// log backs the score.
	SessionID string `json:"session_id,omitempty"`
	// SelfReported carries extra context for custom activities.
	SelfReported json.RawMessage `json:"self_reported,omitempty"`
}

// QuestionResult is the per-question feedback returned after a quiz
// submission. Explanations are included for wrong and right answers alike.
type QuestionResult struct {
	Index       int    `json:"index"`
	Correct     bool   `json:"correct"`
	Selected    int    `json:"selected"`
	Explanation string `json:"explanation"`
}

// AttemptResult is the scored outcome of a submission.
type AttemptResult struct {
	Submission      *Submission      `json:"submission"`
	QuestionResults []QuestionResult `json:"question_results,omitempty"`
}
