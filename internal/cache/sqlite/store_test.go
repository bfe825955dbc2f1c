package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odd-ai/reviewers/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCacheMissOnEmptyStore(t *testing.T) {
	s := openTestStore(t)
	_, hit, err := s.Get(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCachePutThenGetRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	result := domain.Success("eslint", []domain.Finding{{File: "a.go", Line: 3, Message: "issue", SourceAgent: "eslint"}})

	require.NoError(t, s.Put(ctx, "key1", result))

	got, hit, err := s.Get(ctx, "key1")
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, got.Findings, 1)
	assert.Equal(t, "issue", got.Findings[0].Message)
}

func TestCachePutOverwritesExistingKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "key1", domain.Success("eslint", []domain.Finding{{Message: "old"}})))
	require.NoError(t, s.Put(ctx, "key1", domain.Success("eslint", []domain.Finding{{Message: "new"}})))

	got, hit, err := s.Get(ctx, "key1")
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, got.Findings, 1)
	assert.Equal(t, "new", got.Findings[0].Message)
}

func TestMonthToDateSpendSumsCurrentMonthOnly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.RecordRunCost(ctx, "run1", "org/repo", 1, "cfg1", 1.50))
	require.NoError(t, s.RecordRunCost(ctx, "run2", "org/repo", 2, "cfg1", 2.25))

	total, err := s.MonthToDateSpend(ctx, now)
	require.NoError(t, err)
	assert.InDelta(t, 3.75, total, 0.001)
}

func TestMonthToDateSpendZeroWhenNoRuns(t *testing.T) {
	s := openTestStore(t)
	total, err := s.MonthToDateSpend(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 0.0, total)
}

func TestRecordRunCostUpsertsSameRunID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.RecordRunCost(ctx, "run1", "org/repo", 1, "cfg1", 1.00))
	require.NoError(t, s.RecordRunCost(ctx, "run1", "org/repo", 1, "cfg1", 5.00))

	total, err := s.MonthToDateSpend(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.InDelta(t, 5.00, total, 0.001)
}
