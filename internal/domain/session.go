// Package domain holds the core data model for assessment sessions.
package domain

import (
	"time"
)

// Problem describes the task a candidate is asked to solve.
type Problem struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	TestCases   []TestCase `json:"testCases"`
}

// TestCase pairs function arguments with the expected printed result.
type TestCase struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Session is one candidate's timed assessment attempt.
type Session struct {
	ID          string    `json:"id"`
	CandidateID string    `json:"candidateId"`
	Problem     Problem   `json:"problem"`
	Language    string    `json:"language"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime,omitzero"`
	Active      bool      `json:"active"`
}

// Age returns how long the session has been running at the given instant.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.StartTime)
}

// Freeze marks the session as submitted. Further behavioral interventions
// must not fire after this point.
func (s *Session) Freeze(now time.Time) {
	s.Active = false
	s.EndTime = now
}

// Submission is the finalized record handed to persistence at submit time.
type Submission struct {
	Session       *Session             `json:"session"`
	FinalCode     string               `json:"finalCode"`
	Activity      ActivityState        `json:"activity"`
	Attempts      []ExecutionAttempt   `json:"attempts"`
	HintsUsed     []HintEntry          `json:"hintsUsed"`
	Interventions []InterventionRecord `json:"interventions"`
	Signals       []SignalRecord       `json:"signals"`
	ElapsedTime   time.Duration        `json:"elapsedTime"`
}
