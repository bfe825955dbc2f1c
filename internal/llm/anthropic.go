package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/odd-ai/reviewers/internal/apperrors"
	"github.com/odd-ai/reviewers/internal/netretry"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	defaultHTTPTimeout      = 60 * time.Second
)

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	retryConf  netretry.Config
}

// NewAnthropicClient builds a client for model using apiKey.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	return &AnthropicClient{
		apiKey:     apiKey,
		model:      model,
		baseURL:    anthropicDefaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		retryConf:  netretry.DefaultConfig(),
	}
}

// SetBaseURL overrides the API base URL, for tests.
func (c *AnthropicClient) SetBaseURL(baseURL string) { c.baseURL = baseURL }

var _ Client = (*AnthropicClient)(nil)

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
	Model   string                  `json:"model"`
	Usage   anthropicUsage          `json:"usage"`
}

type anthropicErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Review sends req to the Messages API and parses the JSON review out of
// the reply text.
func (c *AnthropicClient) Review(ctx context.Context, req Request) (Response, error) {
	system := req.System
	if system == "" {
		system = defaultSystemPrompt
	}

	body := anthropicRequest{
		Model:     c.model,
		Messages:  []anthropicMessage{{Role: "user", Content: req.Prompt}},
		System:    system,
		MaxTokens: req.MaxTokens,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, apperrors.WrapValidation(err, "marshal anthropic request")
	}

	apiURL := c.baseURL + "/v1/messages"
	var respBody []byte
	err = netretry.Do(ctx, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
		if err != nil {
			return apperrors.WrapNetwork(err, false, "build anthropic request")
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", anthropicVersion)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return apperrors.WrapNetwork(err, true, "call anthropic")
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return apperrors.WrapNetwork(err, true, "read anthropic response")
		}

		if resp.StatusCode >= 400 {
			var errBody anthropicErrorBody
			_ = json.Unmarshal(raw, &errBody)
			message := errBody.Error.Message
			if message == "" {
				message = string(raw)
			}
			retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 || resp.StatusCode == 529
			return apperrors.Network(retryable, "anthropic api %d: %s", resp.StatusCode, message)
		}

		respBody = raw
		return nil
	}, c.retryConf, nil)
	if err != nil {
		return Response{}, err
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Response{}, apperrors.WrapValidation(err, "decode anthropic response")
	}

	var textParts []string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			textParts = append(textParts, block.Text)
		}
	}
	text := strings.Join(textParts, "")

	summary, findings, err := parseReviewJSON(text)
	if err != nil {
		return Response{
			Model:     parsed.Model,
			Summary:   text,
			TokensIn:  parsed.Usage.InputTokens,
			TokensOut: parsed.Usage.OutputTokens,
		}, nil
	}

	return Response{
		Model:     parsed.Model,
		Summary:   summary,
		Findings:  findings,
		TokensIn:  parsed.Usage.InputTokens,
		TokensOut: parsed.Usage.OutputTokens,
	}, nil
}
