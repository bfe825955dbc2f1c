package semantic

import (
	"context"
	"errors"
	"testing"

	"github.com/odd-ai/reviewers/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	response string
	err      error
}

func (s stubClient) Compare(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return s.response, s.err
}

func TestCompareFailsOpenOnClientError(t *testing.T) {
	c := NewComparer(stubClient{err: errors.New("connection reset")}, 500, nil)
	candidates := []CandidatePair{{
		Existing: domain.Finding{File: "a.ts", Message: "issue"},
		New:      domain.Finding{File: "a.ts", Message: "issue restated"},
	}}

	result, err := c.Compare(context.Background(), candidates)
	require.NoError(t, err)
	assert.Empty(t, result.Duplicates)
	assert.Len(t, result.Unique, 1)
}

func TestCompareFailsOpenOnUnparsableResponse(t *testing.T) {
	c := NewComparer(stubClient{response: "not json at all"}, 500, nil)
	candidates := []CandidatePair{{
		Existing: domain.Finding{File: "a.ts", Message: "issue"},
		New:      domain.Finding{File: "a.ts", Message: "issue restated"},
	}}

	result, err := c.Compare(context.Background(), candidates)
	require.NoError(t, err)
	assert.Len(t, result.Unique, 1)
}

func TestCompareParsesDuplicateVerdict(t *testing.T) {
	response := `{"comparisons":[{"pair_index":0,"is_duplicate":true,"reason":"same root cause"}]}`
	c := NewComparer(stubClient{response: response}, 500, nil)
	candidates := []CandidatePair{{
		Existing: domain.Finding{File: "a.ts", Message: "issue", Fingerprint: "abc123"},
		New:      domain.Finding{File: "a.ts", Message: "issue restated"},
	}}

	result, err := c.Compare(context.Background(), candidates)
	require.NoError(t, err)
	require.Len(t, result.Duplicates, 1)
	assert.Equal(t, domain.Fingerprint("abc123"), result.Duplicates[0].ExistingFingerprint)
	assert.Empty(t, result.Unique)
}

func TestCompareEmptyCandidatesShortCircuits(t *testing.T) {
	c := NewComparer(stubClient{}, 500, nil)
	result, err := c.Compare(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Unique)
	assert.Empty(t, result.Duplicates)
}
