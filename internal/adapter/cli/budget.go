package cli

import (
	"context"
	"time"

	"github.com/odd-ai/reviewers/internal/cache/sqlite"
	"github.com/odd-ai/reviewers/internal/config"
	"github.com/odd-ai/reviewers/internal/domain"
)

// buildBudgetState turns the static per-PR limits from config into a
// domain.BudgetState, reducing the monthly allowance by the cache store's
// month-to-date spend (never below zero). A store error is non-fatal: the run
// proceeds with the full monthly budget rather than refusing to review a
// PR because the local cache database is unavailable.
func buildBudgetState(ctx context.Context, limits config.LimitsConfig, store *sqlite.Store, now time.Time) domain.BudgetState {
	remainingMonthly := limits.MonthlyBudgetUSD
	if store != nil {
		if spent, err := store.MonthToDateSpend(ctx, now); err == nil {
			remainingMonthly = limits.MonthlyBudgetUSD - spent
			if remainingMonthly < 0 {
				remainingMonthly = 0
			}
		}
	}

	return domain.BudgetState{
		RemainingFiles:      limits.MaxFiles,
		RemainingDiffLines:  limits.MaxDiffLines,
		RemainingTokens:     limits.MaxTokensPerPR,
		RemainingPRUSD:      limits.MaxUSDPerPR,
		RemainingMonthlyUSD: remainingMonthly,
	}
}
