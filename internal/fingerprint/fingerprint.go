// Package fingerprint computes the stable 32-hex identity of a Finding
// and the DedupeKey built from it, the same sha256-over-a-delimited-
// payload shape the teacher uses for its own finding identity, adapted to
// the ruleId-or-message-hash + file + normalized-message formula.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/width"

	"github.com/odd-ai/reviewers/internal/domain"
)

var lineTokenRe = regexp.MustCompile(`(?i)line\s+\d+`)
var whitespaceRe = regexp.MustCompile(`\s+`)

var lowerCaser = cases.Lower(language.Und)

// normalizeMessage lower-cases (Unicode-correctly, via golang.org/x/text),
// folds full-width characters down to their narrow form, collapses
// whitespace, and replaces numeric "line N" tokens with "line N" so
// messages that differ only by the specific line number still collapse to
// the same fingerprint.
func normalizeMessage(message string) string {
	folded := width.Fold.String(message)
	lowered := lowerCaser.String(folded)
	collapsed := whitespaceRe.ReplaceAllString(strings.TrimSpace(lowered), " ")
	return lineTokenRe.ReplaceAllString(collapsed, "line N")
}

// ruleComponent is ruleId if present, else the first 16 hex chars of
// sha256(message) — a stable stand-in identity for rule-less findings.
func ruleComponent(ruleID, message string) string {
	if ruleID != "" {
		return ruleID
	}
	sum := sha256.Sum256([]byte(message))
	return hex.EncodeToString(sum[:])[:16]
}

// New computes the Fingerprint for (ruleID, file, message): 32 hex chars
// of sha256(ruleComponent + ":" + file + ":" + normalizedMessage).
func New(ruleID, file, message string) domain.Fingerprint {
	payload := fmt.Sprintf("%s:%s:%s", ruleComponent(ruleID, message), file, normalizeMessage(message))
	sum := sha256.Sum256([]byte(payload))
	return domain.Fingerprint(hex.EncodeToString(sum[:16]))
}

// OfFinding derives f's fingerprint from its current fields. Use this
// when a finding arrives without one already set.
func OfFinding(f domain.Finding) domain.Fingerprint {
	return New(f.RuleID, f.File, f.Message)
}

// EnsureFingerprint returns f with Fingerprint populated if it was empty.
func EnsureFingerprint(f domain.Finding) domain.Finding {
	if f.Fingerprint == "" {
		f.Fingerprint = OfFinding(f)
	}
	return f
}
