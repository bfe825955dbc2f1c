// Package semantic is the optional, feature-flagged second dedup stage
// run after the exact+proximity pipeline: an LLM judges whether a
// surviving finding is a semantic duplicate of one already posted, to
// catch paraphrased restatements that drifted past the line-proximity
// threshold. It never gates — a client error or unparsable response
// fails open, treating every candidate as unique.
package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/odd-ai/reviewers/internal/domain"
)

// Client sends a comparison prompt to an LLM and returns its raw text
// response; internal/llm's provider clients satisfy this with a thin
// adapter.
type Client interface {
	Compare(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// CandidatePair is one (existing, new) finding pair offered for semantic
// comparison.
type CandidatePair struct {
	Existing domain.Finding
	New      domain.Finding
}

// ComparisonResult partitions the candidates the LLM was asked about.
type ComparisonResult struct {
	Duplicates []DuplicateMatch
	Unique     []domain.Finding
}

// DuplicateMatch records that New is a semantic duplicate of the finding
// with ExistingFingerprint, with the LLM's one-sentence reason attached
// for the summary's "duplicates suppressed" note.
type DuplicateMatch struct {
	New                 domain.Finding
	ExistingFingerprint domain.Fingerprint
	Reason              string
}

// Comparer batches candidates into one LLM call per run.
type Comparer struct {
	client    Client
	maxTokens int
	logger    WarnLogger
}

// WarnLogger is the minimal logging surface Comparer needs; satisfied by
// internal/observability.ReviewLogger.
type WarnLogger interface {
	LogWarning(ctx context.Context, message string, fields map[string]any)
}

// NewComparer builds a Comparer. logger may be nil to suppress warnings.
func NewComparer(client Client, maxTokens int, logger WarnLogger) *Comparer {
	return &Comparer{client: client, maxTokens: maxTokens, logger: logger}
}

// Compare asks the LLM which candidates are semantic duplicates. On any
// client or parse error it fails open: every New finding is returned as
// unique, and the error is logged rather than surfaced.
func (c *Comparer) Compare(ctx context.Context, candidates []CandidatePair) (*ComparisonResult, error) {
	if len(candidates) == 0 {
		return &ComparisonResult{}, nil
	}

	prompt := buildPrompt(candidates)
	response, err := c.client.Compare(ctx, prompt, c.maxTokens)
	if err != nil {
		c.warn(ctx, "semantic dedup LLM call failed, treating all candidates as unique", err)
		return failOpen(candidates), nil
	}

	result, err := parseResponse(response, candidates)
	if err != nil {
		c.warn(ctx, "semantic dedup response was unparsable, treating all candidates as unique", err)
		return failOpen(candidates), nil
	}
	return result, nil
}

func (c *Comparer) warn(ctx context.Context, message string, err error) {
	if c.logger == nil {
		return
	}
	c.logger.LogWarning(ctx, message, map[string]any{"error": err.Error()})
}

func buildPrompt(candidates []CandidatePair) string {
	var sb strings.Builder
	sb.WriteString("Two findings are DUPLICATES if they describe the SAME underlying issue, even if worded differently. Respond with JSON only.\n\n")
	for i, cp := range candidates {
		fmt.Fprintf(&sb, "### Pair %d\nEXISTING: file=%s line=%d severity=%s message=%q\nNEW: file=%s line=%d severity=%s message=%q\n\n",
			i, cp.Existing.File, cp.Existing.Line, cp.Existing.Severity, cp.Existing.Message,
			cp.New.File, cp.New.Line, cp.New.Severity, cp.New.Message)
	}
	sb.WriteString(`Respond with: {"comparisons":[{"pair_index":0,"is_duplicate":true,"reason":"..."}]}`)
	return sb.String()
}

type comparisonResponse struct {
	Comparisons []struct {
		PairIndex   int    `json:"pair_index"`
		IsDuplicate bool   `json:"is_duplicate"`
		Reason      string `json:"reason"`
	} `json:"comparisons"`
}

func parseResponse(response string, candidates []CandidatePair) (*ComparisonResult, error) {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var resp comparisonResponse
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return nil, fmt.Errorf("parsing semantic dedup response: %w", err)
	}

	result := &ComparisonResult{}
	duplicateIdx := make(map[int]bool)
	for _, comp := range resp.Comparisons {
		if comp.PairIndex < 0 || comp.PairIndex >= len(candidates) {
			continue
		}
		if comp.IsDuplicate {
			cp := candidates[comp.PairIndex]
			result.Duplicates = append(result.Duplicates, DuplicateMatch{
				New: cp.New, ExistingFingerprint: cp.Existing.Fingerprint, Reason: comp.Reason,
			})
			duplicateIdx[comp.PairIndex] = true
		}
	}

	seen := map[string]bool{}
	for i, cp := range candidates {
		if duplicateIdx[i] {
			continue
		}
		key := cp.New.File + "|" + cp.New.Message
		if !seen[key] {
			result.Unique = append(result.Unique, cp.New)
			seen[key] = true
		}
	}
	return result, nil
}

func extractJSON(response string) string {
	if start := strings.Index(response, "```json"); start != -1 {
		start += len("```json")
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}
	if start := strings.Index(response, "{"); start != -1 {
		depth := 0
		for i := start; i < len(response); i++ {
			switch response[i] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return response[start : i+1]
				}
			}
		}
	}
	return ""
}

func failOpen(candidates []CandidatePair) *ComparisonResult {
	seen := map[string]bool{}
	result := &ComparisonResult{}
	for _, cp := range candidates {
		key := cp.New.File + "|" + cp.New.Message
		if !seen[key] {
			result.Unique = append(result.Unique, cp.New)
			seen[key] = true
		}
	}
	return result
}
