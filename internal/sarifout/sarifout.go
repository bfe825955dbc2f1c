// Package sarifout writes a run's findings as a SARIF 2.1.0 document,
// grounded on the teacher's internal/adapter/output/sarif/writer.go.
// Unlike the forge publication path, writing this artifact is
// best-effort: CI artifact upload is a convenience, never a gate, so a
// write failure here is logged by the caller and never aborts the run.
package sarifout

import (
	"encoding/json"
	"io"

	"github.com/odd-ai/reviewers/internal/domain"
)

const (
	toolName = "odd-ai-reviewers"
	schema   = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json"
	version  = "2.1.0"
)

// Write encodes findings (the run's complete, deduplicated set) as an
// indented SARIF document to w.
func Write(w io.Writer, findings []domain.Finding) error {
	doc := buildDocument(findings)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}

func buildDocument(findings []domain.Finding) map[string]any {
	results := make([]map[string]any, 0, len(findings))
	for _, f := range findings {
		ruleID := f.RuleID
		if ruleID == "" {
			ruleID = "code-review"
		}

		result := map[string]any{
			"ruleId": ruleID,
			"level":  convertSeverity(f.Severity),
			"message": map[string]any{
				"text": f.Message,
			},
		}

		if f.File != "" {
			physicalLocation := map[string]any{
				"artifactLocation": map[string]any{"uri": f.File},
			}
			if f.Line >= 1 {
				endLine := f.EndLine
				if endLine < f.Line {
					endLine = f.Line
				}
				physicalLocation["region"] = map[string]any{
					"startLine": f.Line,
					"endLine":   endLine,
				}
			}
			result["locations"] = []map[string]any{{"physicalLocation": physicalLocation}}
		}

		if f.Suggestion != "" {
			result["properties"] = map[string]any{"suggestion": f.Suggestion}
		}

		results = append(results, result)
	}

	return map[string]any{
		"version": version,
		"$schema": schema,
		"runs": []map[string]any{
			{
				"tool": map[string]any{
					"driver": map[string]any{
						"name": toolName,
						"rules": []map[string]any{
							{
								"id":               "code-review",
								"name":             "CodeReview",
								"shortDescription": map[string]any{"text": "AI-assisted pull request review findings"},
							},
						},
					},
				},
				"results": results,
			},
		},
	}
}

// convertSeverity maps a domain.Severity to a SARIF result level.
func convertSeverity(s domain.Severity) string {
	switch s {
	case domain.SeverityError:
		return "error"
	case domain.SeverityWarning:
		return "warning"
	case domain.SeverityInfo:
		return "note"
	default:
		return "warning"
	}
}
