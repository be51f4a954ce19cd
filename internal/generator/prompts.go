package generator

import (
	"fmt"
	"strings"
)

func socraticQuestionPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString("You are a Socratic teacher guiding software engineering candidates through problem-solving.\n\n")
	fmt.Fprintf(&sb, "The candidate paused for %.1f seconds while solving:\n%s\n\n", req.PauseDuration.Seconds(), req.ProblemDescription)
	fmt.Fprintf(&sb, "Current code (in %s):\n```%s\n%s\n```\n\n", req.Language, req.Language, req.Code)
	writeMetrics(&sb, req)
	sb.WriteString(`Generate a Socratic question that:
1. Helps them think through their approach (don't give answers)
2. Probes their understanding of what they've written
3. Guides them toward the right track if they're stuck
4. Is specific to their code, not generic

Respond ONLY with JSON:
{
    "question": "Your Socratic question here",
    "difficulty": "guiding" | "probing" | "challenging"
}`)
	return sb.String()
}

func adaptiveHintPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString("You are an AI tutor providing adaptive hints to a coding candidate.\n\n")
	fmt.Fprintf(&sb, "Problem:\n%s\n\n", req.ProblemDescription)
	fmt.Fprintf(&sb, "Current code (in %s):\n```%s\n%s\n```\n\n", req.Language, req.Language, req.Code)
	writeMetrics(&sb, req)
	fmt.Fprintf(&sb, "Context: %s\n", hintContext(req))
	if req.PriorContext != "" {
		fmt.Fprintf(&sb, "Prior interaction:\n%s\n", req.PriorContext)
	}
	sb.WriteString(`
Generate a helpful but not too revealing hint. The hint should:
1. Guide them toward a solution without giving it away
2. Be specific to their code and situation
3. Address the most blocking issue they're facing
4. Encourage them to think, not just copy
`)
	switch {
	case req.Metrics.HintsRemaining < 0:
		// Unbounded budget: keep hints gentle.
		sb.WriteString("Hint level: gentle nudge.\n")
	case req.Metrics.HintsRemaining <= 1:
		sb.WriteString("Hint level: direct but still requires thinking (last hint).\n")
	case req.Metrics.HintsRemaining == 2:
		sb.WriteString("Hint level: more specific guidance.\n")
	default:
		sb.WriteString("Hint level: gentle nudge.\n")
	}
	sb.WriteString(`
Respond ONLY with JSON:
{
    "hint": "Your adaptive hint here (1-2 sentences)",
    "reasoning": "Why you're giving this hint"
}`)
	return sb.String()
}

func evaluationPrompt(ev Evaluation) string {
	var sb strings.Builder
	sb.WriteString("You are an expert technical interviewer evaluating a candidate's thought process.\n\n")
	fmt.Fprintf(&sb, "Question asked:\n%s\n\n", ev.Question)
	fmt.Fprintf(&sb, "Candidate's response:\n%s\n\n", ev.Response)
	fmt.Fprintf(&sb, "Their current code:\n```\n%s\n```\n\n", ev.Code)
	fmt.Fprintf(&sb, "Problem:\n%s\n\n", ev.Problem)
	sb.WriteString(`Evaluate if the candidate is on the right track. Consider:
1. Do they understand what they're doing?
2. Is their reasoning sound?
3. Are they making progress toward a solution?

Be encouraging but honest.

Respond ONLY with JSON:
{
    "isOnRightTrack": true or false,
    "feedback": "Specific, constructive feedback (2-3 sentences)",
    "confidence": 0.0-1.0
}`)
	return sb.String()
}

func writeMetrics(sb *strings.Builder, req Request) {
	fmt.Fprintf(sb, "Progress metrics:\n- Lines written: %d\n- Code complexity: %d/100\n- Total changes: %d\n- Consecutive failures: %d\n\n",
		req.Metrics.LinesWritten,
		req.Metrics.CodeComplexity,
		req.Metrics.TotalChanges,
		req.Metrics.ConsecutiveFailures,
	)
}

func hintContext(req Request) string {
	switch req.TriggerReason {
	case ReasonExecutionFailures:
		return fmt.Sprintf("After %d failed execution attempts", req.Metrics.ConsecutiveFailures)
	case ReasonNoProgress:
		return fmt.Sprintf("After %.1f minutes without progress", req.Metrics.Idle.Minutes())
	case ReasonLongPause:
		return fmt.Sprintf("After an extended pause of %.1f seconds", req.PauseDuration.Seconds())
	case ReasonManualRequest:
		return "At candidate's request"
	}
	return "General hint request"
}
