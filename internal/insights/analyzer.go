// Package insights turns analysis results into an LLM-written verdict with
// a recommendation on whether to continue, stop or extend an experiment.
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lifecyclelab/intervene/internal/stats"
	"github.com/lifecyclelab/intervene/internal/store"
)

type Analyzer struct {
	client *openai.Client
	model  string
}

func New(apiKey string) *Analyzer {
	return &Analyzer{
		client: openai.NewClient(apiKey),
		model:  openai.GPT4,
	}
}

// Insight is the structured verdict parsed from the model's JSON response.
type Insight struct {
	WinnerVariantID       string   `json:"winner_variant_id"`
	ConfidenceLevel       float64  `json:"confidence_level"`
	ImprovementPercentage float64  `json:"improvement_percentage"`
	IsSignificant         bool     `json:"is_significant"`
	Recommendation        string   `json:"recommendation"` // continue, stop, or needs more data
	Anomalies             []string `json:"anomalies"`
	Reasoning             string   `json:"reasoning"`
}

func (a *Analyzer) Analyze(ctx context.Context, exp *store.Experiment, result *stats.Result) (*Insight, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an experimentation analyst. Respond only with JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPrompt(exp, result),
			},
		},
		Temperature: 0.2,
		MaxTokens:   500,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to analyze experiment: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion response")
	}

	var insight Insight
	content := stripCodeFence(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &insight); err != nil {
		return nil, fmt.Errorf("failed to parse insight response: %w", err)
	}

	return &insight, nil
}

func buildPrompt(exp *store.Experiment, result *stats.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze this A/B test and provide statistical insights:\n\n")
	fmt.Fprintf(&b, "Test: %s\n", exp.Name)
	fmt.Fprintf(&b, "Target segment: %s\n", exp.LifecycleState)
	fmt.Fprintf(&b, "Primary metric: %s\n\n", exp.SuccessMetrics.PrimaryMetric)
	fmt.Fprintf(&b, "Variant results:\n")

	for _, v := range result.Variants {
		fmt.Fprintf(&b, "- %s (%s):\n", v.Name, v.VariantID)
		fmt.Fprintf(&b, "  - Users: %d\n", v.TotalAssigned)
		fmt.Fprintf(&b, "  - Shown: %d\n", v.InterventionShown)
		fmt.Fprintf(&b, "  - Clicked: %d, Completed: %d, Dismissed: %d\n", v.Clicked, v.Completed, v.Dismissed)
		fmt.Fprintf(&b, "  - Conversion rate: %.2f%%\n", v.ConversionRate)
	}

	fmt.Fprintf(&b, "\nComputed winner: %s (confidence %d%%, improvement %.2f%%)\n\n",
		result.WinningVariant, result.ConfidenceLevel, result.ImprovementPercentage)
	fmt.Fprintf(&b, "Provide:\n")
	fmt.Fprintf(&b, "1. Winning variant (if statistically significant)\n")
	fmt.Fprintf(&b, "2. Confidence level (%%)\n")
	fmt.Fprintf(&b, "3. Expected improvement over control\n")
	fmt.Fprintf(&b, "4. Recommendation (continue, stop, or needs more data)\n")
	fmt.Fprintf(&b, "5. Any anomalies detected\n\n")
	fmt.Fprintf(&b, "Respond in JSON with: winner_variant_id, confidence_level, improvement_percentage, is_significant, recommendation, anomalies, reasoning")

	return b.String()
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
