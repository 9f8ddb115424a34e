package service

import "strings"

// AnswerMatcher decides whether a free-text action satisfies the expected
// action of a simulation step. Implementations are swappable so grading
// strictness can change without touching the state machine.
type AnswerMatcher interface {
	Match(got, expected string) bool
}

// TokenOverlapMatcher is a deliberately lenient token-overlap heuristic:
// the response matches when at least Threshold of the expected tokens
// appear in it, case-insensitive. It is not exact matching on purpose;
// simulation steps accept paraphrased actions.
type TokenOverlapMatcher struct {
	Threshold float64
}

// NewTokenOverlapMatcher builds the default matcher. A non-positive
// threshold falls back to 0.5.
func NewTokenOverlapMatcher(threshold float64) *TokenOverlapMatcher {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.5
	}
	return &TokenOverlapMatcher{Threshold: threshold}
}

func (m *TokenOverlapMatcher) Match(got, expected string) bool {
	want := tokenize(expected)
	if len(want) == 0 {
		return strings.TrimSpace(got) == strings.TrimSpace(expected)
	}

	have := make(map[string]struct{})
	for _, tok := range tokenize(got) {
		have[tok] = struct{}{}
	}

	matched := 0
	for _, tok := range want {
		if _, ok := have[tok]; ok {
			matched++
		}
	}
	return float64(matched)/float64(len(want)) >= m.Threshold
}

// tokenize lowercases and splits on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= '0' && r <= '9':
			return false
		default:
			return true
		}
	})
}
