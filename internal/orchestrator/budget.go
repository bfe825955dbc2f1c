package orchestrator

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	budgetEncoder     *tiktoken.Tiktoken
	budgetEncoderOnce sync.Once
	budgetEncoderErr  error
)

// getBudgetEncoder returns the shared tiktoken encoder, initializing it
// lazily. cl100k_base is the GPT-4 encoding and a reasonable approximation
// across providers (Claude, Gemini) for size-budgeting purposes.
func getBudgetEncoder() (*tiktoken.Tiktoken, error) {
	budgetEncoderOnce.Do(func() {
		budgetEncoder, budgetEncoderErr = tiktoken.GetEncoding("cl100k_base")
	})
	return budgetEncoder, budgetEncoderErr
}

// EstimateTokens returns an estimated token count for text on the bounded
// diff. Falls back to the spec's 4-chars-per-token approximation if the
// tiktoken encoder cannot be loaded (e.g. no network access to fetch its
// vocabulary file in a sandboxed CI runner).
func EstimateTokens(text string) int {
	enc, err := getBudgetEncoder()
	if err != nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// USDPerThousandTokens is a rough provider rate table used to convert a
// token estimate into a dollar estimate for budget enforcement. Rates are
// blended input/output estimates, not exact billing.
var USDPerThousandTokens = map[Provider]float64{
	ProviderAnthropic:   0.006,
	ProviderOpenAI:      0.003,
	ProviderAzureOpenAI: 0.003,
}

// EstimateCostUSD converts a token estimate to a dollar estimate using the
// resolved provider's rate; an unknown provider defaults to the OpenAI
// rate as a conservative middle estimate.
func EstimateCostUSD(provider Provider, tokens int) float64 {
	rate, ok := USDPerThousandTokens[provider]
	if !ok {
		rate = USDPerThousandTokens[ProviderOpenAI]
	}
	return float64(tokens) / 1000.0 * rate
}

// BudgetSkipReason is the structured reason attached to a Skipped
// AgentResult when a pass's budget estimate would exceed a ceiling.
const BudgetSkipReason = "budget_exceeded"
