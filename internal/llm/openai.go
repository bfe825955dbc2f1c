package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/odd-ai/reviewers/internal/apperrors"
	"github.com/odd-ai/reviewers/internal/netretry"
)

const openaiDefaultBaseURL = "https://api.openai.com"

// OpenAIClient calls the Chat Completions API. It also serves Azure
// OpenAI: the request/response wire shape is identical, only the base
// URL, the auth header, and an api-version query string differ, so
// NewAzureOpenAIClient reuses this type rather than forking it.
type OpenAIClient struct {
	apiKey     string
	model      string
	baseURL    string
	path       string
	apiVersion string // non-empty only for Azure
	httpClient *http.Client
	retryConf  netretry.Config
	azure      bool
}

// NewOpenAIClient builds a client against the public OpenAI API for model.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:     apiKey,
		model:      model,
		baseURL:    openaiDefaultBaseURL,
		path:       "/v1/chat/completions",
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		retryConf:  netretry.DefaultConfig(),
	}
}

// NewAzureOpenAIClient builds a client against an Azure OpenAI deployment.
// baseURL is the resource endpoint (e.g. https://{resource}.openai.azure.com),
// deployment is the deployment name Azure uses in place of a model string.
func NewAzureOpenAIClient(apiKey, baseURL, deployment, apiVersion string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:     apiKey,
		model:      deployment,
		baseURL:    baseURL,
		path:       "/openai/deployments/" + deployment + "/chat/completions",
		apiVersion: apiVersion,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		retryConf:  netretry.DefaultConfig(),
		azure:      true,
	}
}

// SetBaseURL overrides the API base URL, for tests.
func (c *OpenAIClient) SetBaseURL(baseURL string) { c.baseURL = baseURL }

var _ Client = (*OpenAIClient)(nil)

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiRequest struct {
	Model       string          `json:"model,omitempty"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openaiChoice struct {
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type openaiResponse struct {
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Review sends req to the Chat Completions API and parses the JSON review
// out of the reply text.
func (c *OpenAIClient) Review(ctx context.Context, req Request) (Response, error) {
	system := req.System
	if system == "" {
		system = defaultSystemPrompt
	}

	body := openaiRequest{
		Messages: []openaiMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: req.Prompt},
		},
		MaxTokens: req.MaxTokens,
	}
	if !c.azure {
		body.Model = c.model
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, apperrors.WrapValidation(err, "marshal openai request")
	}

	apiURL := c.baseURL + c.path
	if c.apiVersion != "" {
		apiURL += "?api-version=" + c.apiVersion
	}

	var respBody []byte
	err = netretry.Do(ctx, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
		if err != nil {
			return apperrors.WrapNetwork(err, false, "build openai request")
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.azure {
			httpReq.Header.Set("api-key", c.apiKey)
		} else {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return apperrors.WrapNetwork(err, true, "call openai")
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return apperrors.WrapNetwork(err, true, "read openai response")
		}

		if resp.StatusCode >= 400 {
			var errBody openaiErrorBody
			_ = json.Unmarshal(raw, &errBody)
			message := errBody.Error.Message
			if message == "" {
				message = string(raw)
			}
			retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
			return apperrors.Network(retryable, "openai api %d: %s", resp.StatusCode, message)
		}

		respBody = raw
		return nil
	}, c.retryConf, nil)
	if err != nil {
		return Response{}, err
	}

	var parsed openaiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Response{}, apperrors.WrapValidation(err, "decode openai response")
	}
	if len(parsed.Choices) == 0 {
		return Response{}, apperrors.Validation("openai response has no choices")
	}

	text := parsed.Choices[0].Message.Content
	summary, findings, err := parseReviewJSON(text)
	if err != nil {
		return Response{
			Model:     parsed.Model,
			Summary:   text,
			TokensIn:  parsed.Usage.PromptTokens,
			TokensOut: parsed.Usage.CompletionTokens,
		}, nil
	}

	return Response{
		Model:     parsed.Model,
		Summary:   summary,
		Findings:  findings,
		TokensIn:  parsed.Usage.PromptTokens,
		TokensOut: parsed.Usage.CompletionTokens,
	}, nil
}
