package api

import (
	"math/rand"
	"sync"

	"github.com/codesight-dev/codesight/internal/domain"
)

// ProblemSet is the built-in assessment problem catalog.
type ProblemSet struct {
	mu       sync.RWMutex
	problems map[string]domain.Problem
	order    []string
}

// NewProblemSet creates the default catalog.
func NewProblemSet() *ProblemSet {
	ps := &ProblemSet{problems: make(map[string]domain.Problem)}
	for _, p := range defaultProblems {
		ps.Add(p)
	}
	return ps
}

// Add registers a problem, replacing any existing one with the same ID.
func (ps *ProblemSet) Add(p domain.Problem) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if _, exists := ps.problems[p.ID]; !exists {
		ps.order = append(ps.order, p.ID)
	}
	ps.problems[p.ID] = p
}

// Get looks up a problem by ID.
func (ps *ProblemSet) Get(id string) (domain.Problem, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.problems[id]
	return p, ok
}

// Random returns an arbitrary problem from the catalog.
func (ps *ProblemSet) Random() domain.Problem {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	id := ps.order[rand.Intn(len(ps.order))]
	return ps.problems[id]
}

// List returns all problems in registration order.
func (ps *ProblemSet) List() []domain.Problem {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]domain.Problem, 0, len(ps.order))
	for _, id := range ps.order {
		out = append(out, ps.problems[id])
	}
	return out
}

var defaultProblems = []domain.Problem{
	{
		ID:    "two-sum",
		Title: "Two Sum",
		Description: "Given a list of integers nums and an integer target, " +
			"return the indices of the two numbers that add up to target. " +
			"Each input has exactly one solution; you may not use the same " +
			"element twice.",
		TestCases: []domain.TestCase{
			{Input: "[2, 7, 11, 15], 9", Output: "[0, 1]"},
			{Input: "[3, 2, 4], 6", Output: "[1, 2]"},
			{Input: "[3, 3], 6", Output: "[0, 1]"},
		},
	},
	{
		ID:    "valid-parentheses",
		Title: "Valid Parentheses",
		Description: "Given a string s containing only the characters " +
			"'(', ')', '{', '}', '[' and ']', determine whether the input " +
			"string is valid: every opening bracket is closed by the same " +
			"type of bracket, in the correct order.",
		TestCases: []domain.TestCase{
			{Input: "\"()[]{}\"", Output: "True"},
			{Input: "\"(]\"", Output: "False"},
			{Input: "\"([{}])\"", Output: "True"},
		},
	},
	{
		ID:    "reverse-words",
		Title: "Reverse Words in a String",
		Description: "Given a string s, reverse the order of its words. " +
			"A word is a sequence of non-space characters; the returned " +
			"string must contain single spaces between words and no leading " +
			"or trailing whitespace.",
		TestCases: []domain.TestCase{
			{Input: "\"the sky is blue\"", Output: "blue is sky the"},
			{Input: "\"  hello world  \"", Output: "world hello"},
		},
	},
}
