package generator

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/codesight-dev/codesight/internal/domain"
)

func TestExtractJSON(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		raw     string
		wantKey string
		wantVal string
		wantErr bool
	}{
		{
			name:    "bare object",
			raw:     `{"question": "What does your loop do?"}`,
			wantKey: "question",
			wantVal: "What does your loop do?",
		},
		{
			name:    "fenced object",
			raw:     "Here you go:\n```json\n{\"hint\": \"Try a dict.\"}\n```\nHope that helps!",
			wantKey: "hint",
			wantVal: "Try a dict.",
		},
		{
			name:    "no object",
			raw:     "I cannot answer that.",
			wantErr: true,
		},
		{
			name:    "broken object",
			raw:     `{"question": `,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fields, err := extractJSON(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedResponse) {
					t.Fatalf("err = %v, want ErrMalformedResponse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractJSON: %v", err)
			}
			if got := fields[tt.wantKey]; got != tt.wantVal {
				t.Errorf("fields[%q] = %v, want %q", tt.wantKey, got, tt.wantVal)
			}
		})
	}
}

func TestFirstNonEmpty(t *testing.T) {
	t.Parallel()
	fields := map[string]any{
		"question": "",
		"hint":     "Use a hash map.",
		"count":    3,
	}
	if got := firstNonEmpty(fields, "question", "hint", "content"); got != "Use a hash map." {
		t.Errorf("got %q", got)
	}
	if got := firstNonEmpty(fields, "count", "missing"); got != "" {
		t.Errorf("non-string field returned %q", got)
	}
}

func TestAdaptiveHintLevels(t *testing.T) {
	t.Parallel()
	base := Request{
		Code:               "def f():\n    pass\n",
		ProblemDescription: "Sum two numbers.",
		Language:           "python",
		TriggerReason:      ReasonExecutionFailures,
	}

	tests := []struct {
		remaining int
		want      string
	}{
		{domain.UnboundedQuota, "gentle nudge"},
		{0, "direct but still requires thinking"},
		{1, "direct but still requires thinking"},
		{2, "more specific guidance"},
		{3, "gentle nudge"},
	}
	for _, tt := range tests {
		req := base
		req.Metrics.HintsRemaining = tt.remaining
		prompt := adaptiveHintPrompt(req)
		if !strings.Contains(prompt, tt.want) {
			t.Errorf("remaining=%d: prompt missing %q", tt.remaining, tt.want)
		}
	}
}

func TestHintContext(t *testing.T) {
	t.Parallel()
	req := Request{TriggerReason: ReasonNoProgress}
	req.Metrics.Idle = 5 * time.Minute
	if got := hintContext(req); !strings.Contains(got, "5.0 minutes") {
		t.Errorf("no-progress context = %q", got)
	}

	req = Request{TriggerReason: ReasonLongPause, PauseDuration: 50 * time.Second}
	if got := hintContext(req); !strings.Contains(got, "50.0 seconds") {
		t.Errorf("long-pause context = %q", got)
	}

	req = Request{TriggerReason: ReasonManualRequest}
	if got := hintContext(req); got != "At candidate's request" {
		t.Errorf("manual context = %q", got)
	}
}

func TestSocraticPromptIncludesState(t *testing.T) {
	t.Parallel()
	req := Request{
		Code:               "def two_sum(nums, target):\n    pass\n",
		ProblemDescription: "Return indices of two numbers adding to target.",
		Language:           "python",
		TriggerReason:      ReasonPause,
		PauseDuration:      18 * time.Second,
	}
	req.Metrics.LinesWritten = 2
	req.Metrics.ConsecutiveFailures = 1

	prompt := socraticQuestionPrompt(req)
	for _, want := range []string{
		"18.0 seconds",
		"def two_sum",
		"Return indices",
		"Consecutive failures: 1",
		`"question"`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
