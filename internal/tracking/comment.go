package tracking

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/odd-ai/reviewers/internal/apperrors"
	"github.com/odd-ai/reviewers/internal/domain"
)

// Marker is the comment's distinctive first line, grounded on the
// teacher's trackingCommentMarker; reporter.Forge's UpsertMarkedComment
// finds the comment by this prefix.
const Marker = "<!-- odd-ai-reviewers:tracking:v1 -->"

const (
	metadataStart = "<!-- TRACKING_STATE_B64"
	metadataEnd   = "-->"
	// maxMetadataSize bounds the base64 payload; GitHub/ADO comment
	// bodies are capped well above this, so a payload this large already
	// signals corruption rather than a legitimately large PR.
	maxMetadataSize = 100 * 1024
)

type stateJSON struct {
	Version         int           `json:"version"`
	Owner           string        `json:"owner"`
	Repo            string        `json:"repo"`
	PRNumber        int           `json:"pr_number"`
	ReviewedCommits []string      `json:"reviewed_commits"`
	Findings        []trackedJSON `json:"findings"`
	LastUpdated     time.Time     `json:"last_updated"`
}

type trackedJSON struct {
	Fingerprint  string     `json:"fingerprint"`
	Status       string     `json:"status"`
	StatusReason string     `json:"status_reason,omitempty"`
	FirstSeen    time.Time  `json:"first_seen"`
	LastSeen     time.Time  `json:"last_seen"`
	SeenCount    int        `json:"seen_count"`
	ReviewCommit string     `json:"review_commit,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	ResolvedIn   *string    `json:"resolved_in,omitempty"`

	File       string `json:"file"`
	Line       int    `json:"line"`
	EndLine    int    `json:"end_line"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	RuleID     string `json:"rule_id,omitempty"`
}

// IsTrackingComment reports whether body is a tracking state comment.
func IsTrackingComment(body string) bool {
	return strings.HasPrefix(body, Marker)
}

// Render builds the comment body for state: a human-readable summary
// table followed by the base64-encoded JSON payload Parse recovers.
// Base64 avoids "-->" inside the JSON prematurely closing the HTML
// comment.
func Render(state State) (string, error) {
	encoded, err := encodeState(state)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(Marker)
	sb.WriteString("\n\n## Review Tracking\n\n")

	var open, resolved, acked, disputed int
	for _, f := range state.Findings {
		switch f.Status {
		case FindingStatusOpen:
			open++
		case FindingStatusResolved:
			resolved++
		case FindingStatusAcknowledged:
			acked++
		case FindingStatusDisputed:
			disputed++
		}
	}
	sb.WriteString("| Status | Count |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Open | %d |\n", open)
	fmt.Fprintf(&sb, "| Resolved | %d |\n", resolved)
	fmt.Fprintf(&sb, "| Acknowledged | %d |\n", acked)
	fmt.Fprintf(&sb, "| Disputed | %d |\n", disputed)
	sb.WriteString("\n")

	if len(state.ReviewedCommits) > 0 {
		sb.WriteString("<details><summary>Reviewed commits</summary>\n\n")
		for _, sha := range state.ReviewedCommits {
			short := sha
			if len(short) > 7 {
				short = short[:7]
			}
			fmt.Fprintf(&sb, "- `%s`\n", short)
		}
		sb.WriteString("\n</details>\n\n")
	}

	if !state.LastUpdated.IsZero() {
		fmt.Fprintf(&sb, "*Last updated: %s*\n\n", state.LastUpdated.Format(time.RFC3339))
	}

	sb.WriteString(metadataStart)
	sb.WriteString("\n")
	sb.WriteString(encoded)
	sb.WriteString("\n")
	sb.WriteString(metadataEnd)
	return sb.String(), nil
}

// Parse recovers a State from a comment body previously produced by
// Render.
func Parse(body string) (State, error) {
	payload, err := extractMetadata(body)
	if err != nil {
		return State{}, err
	}

	var sj stateJSON
	if err := json.Unmarshal([]byte(payload), &sj); err != nil {
		return State{}, apperrors.WrapValidation(err, "parse tracking state")
	}
	return jsonToState(sj), nil
}

func extractMetadata(body string) (string, error) {
	startIdx := strings.Index(body, metadataStart)
	if startIdx == -1 {
		return "", apperrors.Validation("tracking metadata start marker not found")
	}
	rest := body[startIdx+len(metadataStart):]
	endIdx := strings.Index(rest, metadataEnd)
	if endIdx == -1 {
		return "", apperrors.Validation("tracking metadata end marker not found")
	}

	content := strings.TrimSpace(rest[:endIdx])
	if content == "" {
		return "", apperrors.Validation("empty tracking metadata")
	}
	if len(content) > maxMetadataSize {
		return "", apperrors.Validation("tracking metadata too large: %d bytes", len(content))
	}

	decoded, err := base64.StdEncoding.Strict().DecodeString(content)
	if err != nil {
		return "", apperrors.WrapValidation(err, "decode tracking metadata")
	}
	return string(decoded), nil
}

func encodeState(state State) (string, error) {
	fingerprints := make([]string, 0, len(state.Findings))
	for fp := range state.Findings {
		fingerprints = append(fingerprints, string(fp))
	}
	sort.Strings(fingerprints)

	findings := make([]trackedJSON, 0, len(state.Findings))
	for _, fpStr := range fingerprints {
		tf := state.Findings[domain.Fingerprint(fpStr)]
		findings = append(findings, trackedJSON{
			Fingerprint:  string(tf.Fingerprint),
			Status:       string(tf.Status),
			StatusReason: tf.StatusReason,
			FirstSeen:    tf.FirstSeen,
			LastSeen:     tf.LastSeen,
			SeenCount:    tf.SeenCount,
			ReviewCommit: tf.ReviewCommit,
			ResolvedAt:   tf.ResolvedAt,
			ResolvedIn:   tf.ResolvedIn,
			File:         tf.Finding.File,
			Line:         tf.Finding.Line,
			EndLine:      tf.Finding.EndLine,
			Severity:     string(tf.Finding.Severity),
			Message:      tf.Finding.Message,
			Suggestion:   tf.Finding.Suggestion,
			RuleID:       tf.Finding.RuleID,
		})
	}

	sj := stateJSON{
		Version:         1,
		Owner:           state.Owner,
		Repo:            state.Repo,
		PRNumber:        state.PRNumber,
		ReviewedCommits: state.ReviewedCommits,
		Findings:        findings,
		LastUpdated:     state.LastUpdated,
	}
	raw, err := json.Marshal(sj)
	if err != nil {
		return "", apperrors.WrapValidation(err, "encode tracking state")
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func jsonToState(sj stateJSON) State {
	findings := make(map[domain.Fingerprint]TrackedFinding, len(sj.Findings))
	for _, fj := range sj.Findings {
		if fj.Fingerprint == "" {
			continue
		}
		status := FindingStatus(fj.Status)
		if !status.IsValid() {
			status = FindingStatusOpen
		}
		fp := domain.Fingerprint(fj.Fingerprint)
		findings[fp] = TrackedFinding{
			Finding: domain.Finding{
				Fingerprint: fp,
				File:        fj.File,
				Line:        fj.Line,
				EndLine:     fj.EndLine,
				Severity:    domain.Severity(fj.Severity),
				Message:     fj.Message,
				Suggestion:  fj.Suggestion,
				RuleID:      fj.RuleID,
			},
			Fingerprint:  fp,
			Status:       status,
			StatusReason: fj.StatusReason,
			FirstSeen:    fj.FirstSeen,
			LastSeen:     fj.LastSeen,
			SeenCount:    fj.SeenCount,
			ReviewCommit: fj.ReviewCommit,
			ResolvedAt:   fj.ResolvedAt,
			ResolvedIn:   fj.ResolvedIn,
		}
	}

	commits := sj.ReviewedCommits
	if commits == nil {
		commits = []string{}
	}

	return State{
		Owner:           sj.Owner,
		Repo:            sj.Repo,
		PRNumber:        sj.PRNumber,
		ReviewedCommits: commits,
		Findings:        findings,
		LastUpdated:     sj.LastUpdated,
	}
}
