// Package llm provides minimal HTTP clients for the LLM providers
// internal/orchestrator.Provider resolves to, grounded on the teacher's
// internal/adapter/llm/{anthropic,openai}/client.go Call() shape. Unlike
// the teacher, retry/backoff and error classification are not
// reimplemented here — internal/netretry and internal/apperrors already
// generalize those concerns for the whole repository, so these clients
// are thin wire-format adapters over them rather than a second taxonomy.
package llm

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/odd-ai/reviewers/internal/apperrors"
	"github.com/odd-ai/reviewers/internal/domain"
)

// Request is one review prompt sent to a provider.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Response is a provider's parsed reply: the findings it extracted plus
// the usage the orchestrator's budget accounting needs.
type Response struct {
	Model     string
	Summary   string
	Findings  []domain.Finding
	TokensIn  int
	TokensOut int
}

// Client is what an LLM-backed agent calls; Anthropic and OpenAI (and,
// via the same wire format, Azure OpenAI) each implement it.
type Client interface {
	Review(ctx context.Context, req Request) (Response, error)
}

var jsonFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// parseReviewJSON extracts a {"summary", "findings"} object from an LLM's
// text reply, unwrapping a markdown code fence if present — models
// reliably wrap JSON in ```json blocks despite instructions not to.
func parseReviewJSON(text string) (summary string, findings []domain.Finding, err error) {
	jsonText := strings.TrimSpace(text)
	if m := jsonFence.FindStringSubmatch(text); len(m) > 1 {
		jsonText = strings.TrimSpace(m[1])
	}

	var parsed struct {
		Summary  string           `json:"summary"`
		Findings []domain.Finding `json:"findings"`
	}
	if err := json.Unmarshal([]byte(jsonText), &parsed); err != nil {
		return "", nil, apperrors.WrapValidation(err, "parse LLM review JSON")
	}
	return parsed.Summary, parsed.Findings, nil
}

const defaultSystemPrompt = "You are a code review assistant. Analyze the supplied diff and reply with a single JSON object of the form {\"summary\": string, \"findings\": [{\"severity\": \"error|warning|info\", \"file\": string, \"line\": number, \"message\": string, \"ruleId\": string}]}. Do not include any text outside the JSON object."
