package dedup

import (
	"github.com/odd-ai/reviewers/internal/domain"
	"github.com/odd-ai/reviewers/internal/fingerprint"
)

// LineProximityThreshold is the maximum line drift, in either direction,
// that still counts as "the same issue that moved."
const LineProximityThreshold = 20

// BuildProximityMap groups existing dedupe keys by (fingerprint, file),
// collecting every line seen for that identity.
func BuildProximityMap(existingKeys []domain.DedupeKey) domain.ProximityMap {
	m := domain.ProximityMap{}
	for _, key := range existingKeys {
		fp, file, line, err := fingerprint.ParseDedupeKey(key)
		if err != nil {
			continue // malformed keys are rejected upstream; never guessed here
		}
		mapKey := domain.ProximityMapKey(fp, file)
		m[mapKey] = append(m[mapKey], line)
	}
	return m
}

// IsDuplicateByProximity reports true iff finding's exact dedupe key is in
// exactKeySet, or some existing line recorded for the same
// (fingerprint, file) identity is within LineProximityThreshold lines.
func IsDuplicateByProximity(finding domain.Finding, exactKeySet map[domain.DedupeKey]bool, proximityMap domain.ProximityMap) bool {
	finding = fingerprint.EnsureFingerprint(finding)
	exactKey := fingerprint.DedupeKeyOfFinding(finding)
	if exactKeySet[exactKey] {
		return true
	}

	mapKey := domain.ProximityMapKey(finding.Fingerprint, finding.File)
	for _, existingLine := range proximityMap[mapKey] {
		if withinThreshold(existingLine, finding.Line) {
			return true
		}
	}
	return false
}

func withinThreshold(a, b int) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= LineProximityThreshold
}

// UpdateProximityMap returns a new ProximityMap with finding's line
// appended to its (fingerprint, file) group — an immutable update so
// earlier-taken references to the map remain valid for callers still
// iterating the prior state within the same publish call.
func UpdateProximityMap(proximityMap domain.ProximityMap, finding domain.Finding) domain.ProximityMap {
	finding = fingerprint.EnsureFingerprint(finding)
	mapKey := domain.ProximityMapKey(finding.Fingerprint, finding.File)

	out := make(domain.ProximityMap, len(proximityMap)+1)
	for k, v := range proximityMap {
		out[k] = v
	}

	existing := out[mapKey]
	updated := make([]int, len(existing), len(existing)+1)
	copy(updated, existing)
	out[mapKey] = append(updated, finding.Line)

	return out
}
