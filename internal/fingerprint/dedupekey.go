package fingerprint

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/odd-ai/reviewers/internal/apperrors"
	"github.com/odd-ai/reviewers/internal/domain"
)

// fingerprintHexLen is the fixed width of a Fingerprint: 32 lowercase hex
// characters (16 bytes of sha256 output).
const fingerprintHexLen = 32

// BuildDedupeKey joins fingerprint, file, and line into the wire identity:
// "fingerprint:file:line".
func BuildDedupeKey(fp domain.Fingerprint, file string, line int) domain.DedupeKey {
	return domain.DedupeKey(fmt.Sprintf("%s:%s:%d", fp, file, line))
}

// DedupeKeyOfFinding builds the DedupeKey for f, deriving its fingerprint
// first if one is not already set.
func DedupeKeyOfFinding(f domain.Finding) domain.DedupeKey {
	f = EnsureFingerprint(f)
	return BuildDedupeKey(f.Fingerprint, f.File, f.Line)
}

// ParseDedupeKey recovers (fingerprint, file, line) from a DedupeKey
// string. The first 32 characters must be the fingerprint (hex), the last
// ":N" segment is the line, and everything between is the file — which
// may itself contain colons. Any string not beginning with a well-formed
// 32-hex prefix followed by ':' is rejected as malformed.
func ParseDedupeKey(key domain.DedupeKey) (fp domain.Fingerprint, file string, line int, err error) {
	s := string(key)
	if len(s) < fingerprintHexLen+1 || s[fingerprintHexLen] != ':' {
		return "", "", 0, apperrors.Validation("malformed dedupe key %q: missing fingerprint prefix", s)
	}

	prefix := s[:fingerprintHexLen]
	if !isHex(prefix) {
		return "", "", 0, apperrors.Validation("malformed dedupe key %q: fingerprint is not hex", s)
	}

	rest := s[fingerprintHexLen+1:]
	lastColon := strings.LastIndex(rest, ":")
	if lastColon < 0 {
		return "", "", 0, apperrors.Validation("malformed dedupe key %q: missing line segment", s)
	}

	fileComponent := rest[:lastColon]
	lineComponent := rest[lastColon+1:]
	lineNum, convErr := strconv.Atoi(lineComponent)
	if convErr != nil {
		return "", "", 0, apperrors.WrapValidation(convErr, "malformed dedupe key %q: non-numeric line", s)
	}

	return domain.Fingerprint(prefix), fileComponent, lineNum, nil
}

func isHex(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return true
}

// Marker embeds a DedupeKey on the wire. MarkerPrefix is a compile-time
// constant with no user interpolation — the format is part of the wire
// protocol and must be treated as such.
const MarkerPrefix = "<!-- odd-ai-reviewers:fingerprint:v1:"
const MarkerSuffix = " -->"

var markerRe = regexp.MustCompile(regexp.QuoteMeta(MarkerPrefix) + `(\S+?)` + regexp.QuoteMeta(MarkerSuffix))

// BuildFingerprintMarker renders the HTML-comment marker for key.
func BuildFingerprintMarker(key domain.DedupeKey) string {
	return MarkerPrefix + string(key) + MarkerSuffix
}

// ExtractFingerprintMarkers returns every DedupeKey marker embedded in
// body, in order of appearance.
func ExtractFingerprintMarkers(body string) []domain.DedupeKey {
	matches := markerRe.FindAllStringSubmatch(body, -1)
	keys := make([]domain.DedupeKey, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, domain.DedupeKey(m[1]))
	}
	return keys
}

// MarkerSpan locates one marker's byte range within a body, alongside the
// DedupeKey it carries.
type MarkerSpan struct {
	Key        domain.DedupeKey
	Start, End int // body[Start:End] is the full "<!-- ... -->" marker
}

// ExtractFingerprintMarkerSpans is ExtractFingerprintMarkers plus each
// match's byte offsets, letting callers (internal/stale) slice the text
// that precedes each marker as that finding's rendered block.
func ExtractFingerprintMarkerSpans(body string) []MarkerSpan {
	matches := markerRe.FindAllStringSubmatchIndex(body, -1)
	spans := make([]MarkerSpan, 0, len(matches))
	for _, m := range matches {
		spans = append(spans, MarkerSpan{
			Key:   domain.DedupeKey(body[m[2]:m[3]]),
			Start: m[0],
			End:   m[1],
		})
	}
	return spans
}
