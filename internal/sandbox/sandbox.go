// Package sandbox executes candidate code against problem test cases in
// isolated Docker containers.
package sandbox

import (
	"context"
	"time"

	"github.com/codesight-dev/codesight/internal/domain"
)

// Request is one execution of candidate code against a problem's test cases.
type Request struct {
	Code      string
	Language  string
	TestCases []domain.TestCase
}

// TestResult is the outcome of a single test case.
type TestResult struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
	Error    string `json:"error,omitempty"`
}

// Result is the aggregate outcome of a run.
type Result struct {
	Success     bool          `json:"success"`
	TestsPassed int           `json:"testsPassed"`
	TestsTotal  int           `json:"testsTotal"`
	Results     []TestResult  `json:"results"`
	Duration    time.Duration `json:"duration"`
}

// Runner executes candidate code. Implementations must honor ctx and never
// let candidate code outlive the per-test timeout.
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
	Ping(ctx context.Context) error
	Close() error
}
