package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// Temperatures per prompt shape, matching how directive each output should be.
const (
	questionTemperature   float32 = 0.6
	hintTemperature       float32 = 0.5
	evaluationTemperature float32 = 0.4
)

// GeminiClient implements Generator and Evaluator against the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewGeminiClient creates a Gemini-backed generator.
func NewGeminiClient(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiClient{client: client, model: model, logger: logger}, nil
}

var _ Generator = (*GeminiClient)(nil)
var _ Evaluator = (*GeminiClient)(nil)

// Generate produces a Socratic question or adaptive hint for the request.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (*Result, error) {
	var prompt string
	var temperature float32
	switch req.TriggerReason {
	case ReasonPause, ReasonChallenge:
		prompt = socraticQuestionPrompt(req)
		temperature = questionTemperature
	default:
		prompt = adaptiveHintPrompt(req)
		temperature = hintTemperature
	}

	raw, err := c.generateText(ctx, prompt, temperature)
	if err != nil {
		return nil, err
	}

	fields, err := extractJSON(raw)
	if err != nil {
		c.logger.Warn("generator returned unparseable content",
			"trigger_reason", req.TriggerReason,
			"content_len", len(raw),
		)
		return nil, err
	}

	content := firstNonEmpty(fields, "question", "hint", "content")
	if content == "" {
		return nil, fmt.Errorf("%w: no question or hint field", ErrMalformedResponse)
	}

	metadata := make(map[string]string, len(fields))
	for k, v := range fields {
		if k == "question" || k == "hint" {
			continue
		}
		if s, ok := v.(string); ok {
			metadata[k] = s
		}
	}

	return &Result{Content: content, Metadata: metadata}, nil
}

// Evaluate judges whether the candidate's answer shows sound reasoning.
func (c *GeminiClient) Evaluate(ctx context.Context, ev Evaluation) (*Verdict, error) {
	raw, err := c.generateText(ctx, evaluationPrompt(ev), evaluationTemperature)
	if err != nil {
		return nil, err
	}

	fields, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	verdict := &Verdict{}
	if v, ok := fields["isOnRightTrack"].(bool); ok {
		verdict.OnRightTrack = v
	}
	if v, ok := fields["feedback"].(string); ok {
		verdict.Feedback = v
	}
	if v, ok := fields["confidence"].(float64); ok {
		verdict.Confidence = v
	}
	return verdict, nil
}

func (c *GeminiClient) generateText(ctx context.Context, prompt string, temperature float32) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temperature),
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: no candidates", ErrMalformedResponse)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: empty candidate content", ErrMalformedResponse)
	}
	return sb.String(), nil
}

// extractJSON pulls the first JSON object out of model output. Models wrap
// JSON in prose or code fences often enough that scanning for the outermost
// braces is the reliable approach.
func extractJSON(raw string) (map[string]any, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw[start:end+1]), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return fields, nil
}

func firstNonEmpty(fields map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := fields[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
