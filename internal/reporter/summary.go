package reporter

import (
	"fmt"
	"strings"

	"github.com/odd-ai/reviewers/internal/domain"
	"github.com/odd-ai/reviewers/internal/lineresolver"
	"github.com/odd-ai/reviewers/internal/orchestrator"
)

// SummaryHeader is the distinctive first line every summary comment/thread
// carries, letting a later run find and update its own prior comment
// instead of creating a duplicate.
const SummaryHeader = "## AI Review Summary"

// BuildSummary renders the run's markdown summary: a severity counts
// table, per-file finding groups, a partial-findings section, a
// normalization-drift section, and an agent status table. The counts
// table is always written and the per-file part reads "No findings." when
// there are none; the partial, drift and agent-status sections are
// omitted when they have nothing to show.
func BuildSummary(findings []domain.Finding, partials []domain.PartialFinding, stats lineresolver.Stats, passes []orchestrator.PassOutcome) string {
	var sb strings.Builder
	sb.WriteString(SummaryHeader)
	sb.WriteString("\n\n")

	writeCountsTable(&sb, findings)
	writePerFileGroups(&sb, findings)
	writePartialSection(&sb, partials)
	writeDriftSection(&sb, stats)
	writeAgentStatusTable(&sb, passes)

	return sb.String()
}

func writeCountsTable(sb *strings.Builder, findings []domain.Finding) {
	counts := map[domain.Severity]int{}
	for _, f := range findings {
		counts[f.Severity]++
	}
	sb.WriteString("| Severity | Count |\n|---|---|\n")
	for _, sev := range []domain.Severity{domain.SeverityError, domain.SeverityWarning, domain.SeverityInfo} {
		sb.WriteString(fmt.Sprintf("| %s | %d |\n", sev, counts[sev]))
	}
	sb.WriteString("\n")
}

func writePerFileGroups(sb *strings.Builder, findings []domain.Finding) {
	if len(findings) == 0 {
		sb.WriteString("No findings.\n\n")
		return
	}

	order := []string{}
	byFile := map[string][]domain.Finding{}
	for _, f := range findings {
		if _, ok := byFile[f.File]; !ok {
			order = append(order, f.File)
		}
		byFile[f.File] = append(byFile[f.File], f)
	}

	for _, file := range order {
		sb.WriteString(fmt.Sprintf("### %s\n\n", file))
		for _, f := range byFile[file] {
			line := "file-level"
			if f.Line > 0 {
				line = fmt.Sprintf("line %d", f.Line)
			}
			sb.WriteString(fmt.Sprintf("- **%s** (%s): %s\n", f.Severity, line, f.Message))
		}
		sb.WriteString("\n")
	}
}

func writePartialSection(sb *strings.Builder, partials []domain.PartialFinding) {
	if len(partials) == 0 {
		return
	}
	sb.WriteString("### Partial findings (from agents that failed mid-run)\n\n")
	for _, p := range partials {
		sb.WriteString(fmt.Sprintf("- [%s] %s: %s\n", p.SourceAgent, p.File, p.Message))
	}
	sb.WriteString("\n")
}

func writeDriftSection(sb *strings.Builder, stats lineresolver.Stats) {
	if stats.Normalized == 0 && stats.Downgraded == 0 && stats.Dropped == 0 {
		return
	}
	sb.WriteString("### Normalization drift\n\n")
	sb.WriteString(fmt.Sprintf("%d/%d findings valid, %d normalized, %d downgraded to file-level, %d dropped (invalid schema), %d on deleted files\n\n",
		stats.Valid, stats.Total, stats.Normalized, stats.Downgraded, stats.Dropped, stats.DeletedFiles))
}

func writeAgentStatusTable(sb *strings.Builder, passes []orchestrator.PassOutcome) {
	if len(passes) == 0 {
		return
	}
	sb.WriteString("### Agent status\n\n")
	sb.WriteString("| Pass | Agent | Status |\n|---|---|---|\n")
	for _, pass := range passes {
		for _, r := range pass.Results {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s |\n", pass.Name, r.AgentID, agentStatusLabel(r)))
		}
	}
	sb.WriteString("\n")
}

func agentStatusLabel(r domain.AgentResult) string {
	switch r.Status {
	case domain.AgentStatusSuccess:
		return "Success"
	case domain.AgentStatusCached:
		return "Cached"
	case domain.AgentStatusSkipped:
		return fmt.Sprintf("Skipped (%s)", r.SkipReason)
	case domain.AgentStatusFailure:
		return "Failed"
	default:
		return string(r.Status)
	}
}
