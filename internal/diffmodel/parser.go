// Package diffmodel parses unified-diff patches into domain.DiffHunk/
// domain.LineMapping and canonicalizes file paths/status, the single
// boundary every downstream package (lineresolver, fingerprint, reporter)
// must cross before touching a path.
package diffmodel

import (
	"strconv"
	"strings"

	"github.com/odd-ai/reviewers/internal/domain"
)

// ParseHunks parses a unified-diff patch body into its hunks. A hunk
// header of the form "@@ -a,b +c,d @@" establishes the new-file starting
// line c; a missing ",d" means exactly one line. "+" lines are additions,
// "-" lines are deletions (no new-file position), " " lines are context.
// "\ No newline at end of file" markers are ignored. Unknown prefixes
// terminate the current hunk silently — a malformed patch never panics or
// returns an error, it just parses what it can.
func ParseHunks(patch string) []domain.DiffHunk {
	if patch == "" {
		return nil
	}

	var hunks []domain.DiffHunk
	var current *domain.DiffHunk
	var newLine int

	for _, line := range strings.Split(patch, "\n") {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "\\") {
			continue // "\ No newline at end of file"
		}

		if strings.HasPrefix(line, "@@") {
			if current != nil {
				hunks = append(hunks, *current)
			}
			h, ok := parseHunkHeader(line)
			if !ok {
				current = nil
				continue
			}
			current = &h
			newLine = h.NewStart
			continue
		}

		if current == nil {
			continue
		}

		switch line[0] {
		case '+':
			current.Lines = append(current.Lines, domain.HunkLine{
				Kind: domain.LineAdded, NewLineNum: newLine, Text: line[1:],
			})
			newLine++
		case '-':
			current.Lines = append(current.Lines, domain.HunkLine{
				Kind: domain.LineDeleted, Text: line[1:],
			})
		case ' ':
			current.Lines = append(current.Lines, domain.HunkLine{
				Kind: domain.LineContext, NewLineNum: newLine, Text: line[1:],
			})
			newLine++
		default:
			// Unknown prefix: stop consuming this hunk, never throw.
			hunks = append(hunks, *current)
			current = nil
		}
	}

	if current != nil {
		hunks = append(hunks, *current)
	}
	return hunks
}

// parseHunkHeader parses "@@ -a,b +c,d @@ optional trailing context".
func parseHunkHeader(line string) (domain.DiffHunk, bool) {
	parts := strings.SplitN(line, "@@", 3)
	if len(parts) < 2 {
		return domain.DiffHunk{}, false
	}
	rangeInfo := strings.TrimSpace(parts[1])
	fields := strings.Fields(rangeInfo)

	var hunk domain.DiffHunk
	found := false
	for _, f := range fields {
		if strings.HasPrefix(f, "+") {
			start, count := parseRange(strings.TrimPrefix(f, "+"))
			hunk.NewStart = start
			hunk.NewCount = count
			found = true
		}
	}
	return hunk, found
}

// parseRange parses "start,count" or bare "start" (count defaults to 1).
func parseRange(s string) (start, count int) {
	if idx := strings.Index(s, ","); idx >= 0 {
		start, _ = strconv.Atoi(s[:idx])
		count, _ = strconv.Atoi(s[idx+1:])
		return start, count
	}
	start, _ = strconv.Atoi(s)
	return start, 1
}

// BuildLineMapping folds a file's parsed hunks into the per-file index the
// line resolver consults: every new-file line reachable by a comment,
// split by whether it is an addition or context.
func BuildLineMapping(file string, hunks []domain.DiffHunk) domain.LineMapping {
	m := domain.LineMapping{
		File:         file,
		Hunks:        hunks,
		AllLines:     map[int]bool{},
		AddedLines:   map[int]bool{},
		ContextLines: map[int]bool{},
	}
	for _, h := range hunks {
		for _, l := range h.Lines {
			switch l.Kind {
			case domain.LineAdded:
				m.AddedLines[l.NewLineNum] = true
				m.AllLines[l.NewLineNum] = true
			case domain.LineContext:
				m.ContextLines[l.NewLineNum] = true
				m.AllLines[l.NewLineNum] = true
			}
		}
	}
	return m
}
