package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"archflow/graph"
	"archflow/platform"
)

var logger = platform.Logger

// LLMClient is the single seam to the language model; platform.ChatModel is
// the production implementation, tests script their own.
type LLMClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Analysis is the strict scoring result parsed from the model. Downstream
// code consumes this type only and never touches raw model output.
type Analysis struct {
	IsTechnical     bool                 `json:"is_technical"`
	ConfidenceScore float64              `json:"confidence_score"`
	Entities        []graph.Entity       `json:"entities"`
	Relationships   []graph.Relationship `json:"relationships"`
}

// ContextMessage is one prior message passed as rolling context.
type ContextMessage struct {
	Author  string
	Content string
}

// ExtractionClient wraps the model calls for per-message scoring and for
// diagram modification deltas. Transport failures are retried exactly once;
// malformed content is not, to avoid replaying the same bad output.
type ExtractionClient struct {
	llm     LLMClient
	timeout time.Duration
}

func NewExtractionClient(llm LLMClient, timeout time.Duration) *ExtractionClient {
	return &ExtractionClient{llm: llm, timeout: timeout}
}

const analysisSystemPrompt = `You are an expert at analyzing chat messages to detect technical and architectural discussions.

Determine whether the message discusses system architecture, software design or technical infrastructure, and extract any architecture components and relationships it mentions.

Component kinds: service, database, queue, gateway, cache, external, unknown.
Relationship kinds: calls, stores, publishes, depends_on, unknown.

Respond with ONLY a JSON object of this exact shape:
{
  "is_technical": true or false,
  "confidence_score": number between 0.0 and 1.0,
  "entities": [{"name": "...", "kind": "...", "technology": "..."}],
  "relationships": [{"source": "...", "target": "...", "kind": "...", "label": "..."}]
}

Greetings, chitchat and non-technical project talk are not technical. Only extract components explicitly mentioned or clearly implied.`

const modificationSystemPrompt = `You are an expert system architect. You are given the current architecture diagram of a conversation and a natural-language change request. Translate the request into a structured change set against the component graph.

Respond with ONLY a JSON object of this exact shape:
{
  "replace": false,
  "add_entities": [{"name": "...", "kind": "service|database|queue|gateway|cache|external|unknown", "technology": "..."}],
  "add_relationships": [{"source": "...", "target": "...", "kind": "calls|stores|publishes|depends_on|unknown", "label": "..."}],
  "remove_entities": ["name", ...],
  "remove_relationships": [{"source": "...", "target": "...", "kind": "..."}]
}

Set "replace" to true only when the request asks to rebuild the diagram from scratch; then add_entities/add_relationships describe the full new graph. Preserve existing components unless removal is explicitly requested.`

// AnalyzeMessage scores a single message with its rolling context. Any
// failure path returns a non-nil error; the caller degrades it to a
// non-technical score of exactly 0.0.
func (c *ExtractionClient) AnalyzeMessage(ctx context.Context, text string, contextMessages []ContextMessage) (*Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var b strings.Builder
	b.WriteString("Analyze this message:\n\nMessage: ")
	b.WriteString(text)
	b.WriteString("\n\nPrevious context (most recent last):\n")
	if len(contextMessages) == 0 {
		b.WriteString("No previous context\n")
	}
	for _, m := range contextMessages {
		author := m.Author
		if author == "" {
			author = "User"
		}
		fmt.Fprintf(&b, "%s: %s\n", author, m.Content)
	}

	raw, err := c.complete(ctx, analysisSystemPrompt, b.String())
	if err != nil {
		return nil, err
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &analysis); err != nil {
		return nil, fmt.Errorf("malformed analysis response: %w", err)
	}
	if analysis.ConfidenceScore < 0 {
		analysis.ConfidenceScore = 0
	}
	if analysis.ConfidenceScore > 1 {
		analysis.ConfidenceScore = 1
	}
	for i := range analysis.Entities {
		analysis.Entities[i].Kind = graph.NormalizeKind(analysis.Entities[i].Kind)
	}
	for i := range analysis.Relationships {
		analysis.Relationships[i].Kind = graph.NormalizeRelKind(analysis.Relationships[i].Kind)
	}
	return &analysis, nil
}

// RequestModification asks the model to turn a natural-language request
// into a graph delta against the current diagram text.
func (c *ExtractionClient) RequestModification(ctx context.Context, diagramText, request string) (*graph.Delta, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	user := fmt.Sprintf("Current diagram:\n%s\n\nChange request:\n%s", diagramText, request)
	raw, err := c.complete(ctx, modificationSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	var delta graph.Delta
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &delta); err != nil {
		return nil, fmt.Errorf("malformed modification response: %w", err)
	}
	return &delta, nil
}

// complete performs the model call with one immediate retry on transport
// failure. Parse errors never reach this function.
func (c *ExtractionClient) complete(ctx context.Context, system, user string) (string, error) {
	raw, err := c.llm.Complete(ctx, system, user)
	if err == nil {
		return raw, nil
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("model call failed: %w", err)
	}
	logger.Warnf("[extraction] model call failed, retrying once: %s", err)
	raw, err = c.llm.Complete(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("model call failed after retry: %w", err)
	}
	return raw, nil
}

// stripCodeFence removes a surrounding markdown code block if the model
// wrapped its JSON in one.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
