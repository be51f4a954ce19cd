package scheduler

import (
	"regexp"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/codesight-dev/codesight/internal/domain"
)

// Control-flow keyword sets per language, used for the complexity metric.
var (
	pythonKeywords = regexp.MustCompile(`\b(if|elif|else|for|while|def|class|return|try|except|with)\b`)
	jsKeywords     = regexp.MustCompile(`\b(if|else|for|while|function|class|return|switch|case|try|catch)\b`)
)

func keywordsForLanguage(language string) *regexp.Regexp {
	switch strings.ToLower(language) {
	case "python":
		return pythonKeywords
	default:
		return jsKeywords
	}
}

// ActivityTracker records candidate edits and derives simple code metrics.
// It has no side effects beyond its own state and never triggers
// interventions directly. Not safe for concurrent use; the owning scheduler
// serializes access.
type ActivityTracker struct {
	clock    Clock
	dmp      *diffmatchpatch.DiffMatchPatch
	keywords *regexp.Regexp

	code  string
	state domain.ActivityState
}

// NewActivityTracker creates a tracker for the given language.
func NewActivityTracker(clock Clock, language string) *ActivityTracker {
	return &ActivityTracker{
		clock:    clock,
		dmp:      diffmatchpatch.New(),
		keywords: keywordsForLanguage(language),
	}
}

// RecordEdit ingests the full current code and updates the activity metrics.
// Edits with no character delta are ignored: they carry no signal and must
// not reset idle time.
func (t *ActivityTracker) RecordEdit(newCode string) {
	delta := t.charDelta(t.code, newCode)
	if delta == 0 {
		return
	}

	t.code = newCode
	t.state.TotalChanges++
	t.state.CodeLength = len(newCode)
	t.state.LinesWritten = countLines(newCode)
	t.state.CodeComplexity = complexity(newCode, t.keywords)
	t.state.LastChangeAt = t.clock.Now()
}

// State returns a copy of the current activity metrics.
func (t *ActivityTracker) State() domain.ActivityState {
	return t.state
}

// Code returns the latest full code text.
func (t *ActivityTracker) Code() string {
	return t.code
}

func (t *ActivityTracker) charDelta(old, new string) int {
	if old == new {
		return 0
	}
	diffs := t.dmp.DiffMain(old, new, false)
	delta := 0
	for _, d := range diffs {
		if d.Type != diffmatchpatch.DiffEqual {
			delta += len(d.Text)
		}
	}
	return delta
}

func countLines(code string) int {
	if code == "" {
		return 0
	}
	return strings.Count(code, "\n") + 1
}

// complexity scores code 0-100 as (nonEmptyLines + 2*keywordMatches)/2.
func complexity(code string, keywords *regexp.Regexp) int {
	nonEmpty := 0
	for _, line := range strings.Split(code, "\n") {
		if strings.TrimSpace(line) != "" {
			nonEmpty++
		}
	}
	matches := len(keywords.FindAllString(code, -1))

	score := (nonEmpty + 2*matches) / 2
	if score > 100 {
		score = 100
	}
	return score
}
