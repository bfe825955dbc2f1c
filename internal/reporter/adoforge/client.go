// Package adoforge implements reporter.Forge over the Azure DevOps REST
// API: commit status and PR comment threads. No ADO SDK exists anywhere
// in the reference corpus, so this mirrors githubforge's hand-rolled
// net/http + retry shape rather than introducing an unseen dependency.
package adoforge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/odd-ai/reviewers/internal/apperrors"
	"github.com/odd-ai/reviewers/internal/domain"
	"github.com/odd-ai/reviewers/internal/fingerprint"
	"github.com/odd-ai/reviewers/internal/netretry"
	"github.com/odd-ai/reviewers/internal/reporter"
)

const (
	defaultTimeout = 30 * time.Second
	apiVersion     = "7.1"
	statusContext  = "AI Code Review"
)

// Client implements reporter.Forge against the Azure DevOps REST API for
// one organization/project/repository.
type Client struct {
	token        string
	baseURL      string // e.g. https://dev.azure.com/{org}/{project}/_apis/git/repositories/{repo}
	httpClient   *http.Client
	retryConf    netretry.Config
	threadStatus int
}

// NewClient builds a client against baseURL (the repository's _apis/git
// base), authenticated with token. Token resolution (SYSTEM_ACCESSTOKEN
// preferred, AZURE_DEVOPS_PAT fallback) is the CLI collaborator's job;
// this package only consumes the resolved value.
func NewClient(baseURL, token string, threadStatus int) *Client {
	if threadStatus == 0 {
		threadStatus = 1 // Active
	}
	return &Client{
		token:        token,
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: defaultTimeout},
		retryConf:    netretry.DefaultConfig(),
		threadStatus: threadStatus,
	}
}

var _ reporter.Forge = (*Client)(nil)

type commitStatusRequest struct {
	State       string          `json:"state"`
	Description string          `json:"description,omitempty"`
	Context     commitStatusCtx `json:"context"`
	TargetURL   string          `json:"targetUrl,omitempty"`
}

type commitStatusCtx struct {
	Name  string `json:"name"`
	Genre string `json:"genre,omitempty"`
}

// StartCheck posts a pending commit status against the PR's head SHA.
// ADO has no separate "in progress id" to track; CompleteCheck posts a
// fresh status update instead of patching one, so the handle is empty.
func (c *Client) StartCheck(ctx context.Context, pr domain.ForgePRContext) (reporter.CheckHandle, error) {
	body := commitStatusRequest{
		State:       "pending",
		Description: "AI review running",
		Context:     commitStatusCtx{Name: statusContext},
	}
	apiURL := fmt.Sprintf("%s/commits/%s/statuses?api-version=%s", c.baseURL, url.PathEscape(pr.HeadSHA), apiVersion)
	return reporter.CheckHandle{}, c.doJSON(ctx, http.MethodPost, apiURL, body, nil)
}

// CompleteCheck posts the terminal commit status; ADO has no annotations
// surface, so they are ignored (GitHub-only per the Forge contract).
func (c *Client) CompleteCheck(ctx context.Context, handle reporter.CheckHandle, pr domain.ForgePRContext, conclusion reporter.Conclusion, title, summary string, _ []reporter.Annotation) error {
	body := commitStatusRequest{
		State:       adoState(conclusion),
		Description: title,
		Context:     commitStatusCtx{Name: statusContext},
	}
	apiURL := fmt.Sprintf("%s/commits/%s/statuses?api-version=%s", c.baseURL, url.PathEscape(pr.HeadSHA), apiVersion)
	return c.doJSON(ctx, http.MethodPost, apiURL, body, nil)
}

func adoState(c reporter.Conclusion) string {
	switch c {
	case reporter.ConclusionFailure, reporter.ConclusionCancelled:
		return "failed"
	default:
		return "succeeded"
	}
}

type threadComment struct {
	Content     string `json:"content"`
	CommentType int    `json:"commentType"`
}

type fileStart struct {
	Line   int `json:"line"`
	Offset int `json:"offset"`
}

type threadContext struct {
	FilePath       string     `json:"filePath"`
	RightFileStart *fileStart `json:"rightFileStart,omitempty"`
	RightFileEnd   *fileStart `json:"rightFileEnd,omitempty"`
}

type threadRequest struct {
	Comments      []threadComment `json:"comments"`
	Status        int             `json:"status"`
	ThreadContext *threadContext  `json:"threadContext,omitempty"`
}

type threadResponse struct {
	ID       int64           `json:"id"`
	Comments []threadComment `json:"comments"`
}

type threadsPage struct {
	Value []rawThread `json:"value"`
}

type rawThread struct {
	ID            int64              `json:"id"`
	Comments      []rawThreadComment `json:"comments"`
	ThreadContext *threadContext     `json:"threadContext"`
}

type rawThreadComment struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
}

// ExistingComments lists every PR thread, extracting markers from each
// thread's first comment (the one the reporter posts findings into).
func (c *Client) ExistingComments(ctx context.Context, pr domain.ForgePRContext) ([]domain.Comment, error) {
	apiURL := fmt.Sprintf("%s/pullRequests/%d/threads?api-version=%s", c.baseURL, pr.PRNumber, apiVersion)

	var page threadsPage
	if err := c.doJSON(ctx, http.MethodGet, apiURL, nil, &page); err != nil {
		return nil, err
	}

	out := make([]domain.Comment, 0, len(page.Value))
	for _, th := range page.Value {
		if len(th.Comments) == 0 {
			continue
		}
		body := th.Comments[0].Content
		comment := domain.Comment{
			ID:      fmt.Sprintf("%d", th.ID),
			Body:    body,
			Markers: fingerprint.ExtractFingerprintMarkers(body),
		}
		if th.ThreadContext != nil {
			comment.File = strings.TrimPrefix(th.ThreadContext.FilePath, "/")
			if th.ThreadContext.RightFileStart != nil {
				comment.Line = th.ThreadContext.RightFileStart.Line
			}
		}
		out = append(out, comment)
	}
	return out, nil
}

// summaryMarker is a zero-width convention letting UpsertSummaryComment
// find its own prior thread among threads with no file anchor.
const summaryMarker = reporter.SummaryHeader

// UpsertSummaryComment finds the unanchored thread carrying the summary
// header and replaces its first comment, or creates a new thread.
func (c *Client) UpsertSummaryComment(ctx context.Context, pr domain.ForgePRContext, body string) error {
	_, err := c.UpsertMarkedComment(ctx, pr, summaryMarker, body)
	return err
}

// UpsertMarkedComment finds the unanchored thread whose first comment
// starts with marker and replaces it, or creates a new thread. marker
// generalizes UpsertSummaryComment's hardcoded summaryMarker match so
// other owners (internal/tracking's persisted state thread) can reuse
// the same find-or-create path.
func (c *Client) UpsertMarkedComment(ctx context.Context, pr domain.ForgePRContext, marker, body string) (string, error) {
	existing, err := c.ExistingComments(ctx, pr)
	if err != nil {
		return "", err
	}
	for _, comment := range existing {
		if comment.File == "" && strings.HasPrefix(comment.Body, marker) {
			if err := c.updateThreadFirstComment(ctx, pr, comment.ID, body); err != nil {
				return "", err
			}
			return comment.ID, nil
		}
	}

	req := threadRequest{
		Comments: []threadComment{{Content: body, CommentType: 1}},
		Status:   c.threadStatus,
	}
	apiURL := fmt.Sprintf("%s/pullRequests/%d/threads?api-version=%s", c.baseURL, pr.PRNumber, apiVersion)
	var resp threadResponse
	if err := c.doJSON(ctx, http.MethodPost, apiURL, req, &resp); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", resp.ID), nil
}

// PostInlineComment creates a new file-anchored thread.
func (c *Client) PostInlineComment(ctx context.Context, pr domain.ForgePRContext, comment reporter.InlineComment) (string, error) {
	end := comment.EndLine
	if end < comment.Line {
		end = comment.Line
	}
	req := threadRequest{
		Comments: []threadComment{{Content: comment.Body, CommentType: 1}},
		Status:   c.threadStatus,
		ThreadContext: &threadContext{
			FilePath:       "/" + comment.File,
			RightFileStart: &fileStart{Line: comment.Line, Offset: 1},
			RightFileEnd:   &fileStart{Line: end, Offset: 1},
		},
	}
	apiURL := fmt.Sprintf("%s/pullRequests/%d/threads?api-version=%s", c.baseURL, pr.PRNumber, apiVersion)
	var resp threadResponse
	if err := c.doJSON(ctx, http.MethodPost, apiURL, req, &resp); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", resp.ID), nil
}

// UpdateCommentBody overwrites a thread's first comment body, used by
// stale resolution to strike through or fully resolve it.
func (c *Client) UpdateCommentBody(ctx context.Context, pr domain.ForgePRContext, commentID string, body string) error {
	return c.updateThreadFirstComment(ctx, pr, commentID, body)
}

func (c *Client) updateThreadFirstComment(ctx context.Context, pr domain.ForgePRContext, threadID, body string) error {
	apiURL := fmt.Sprintf("%s/pullRequests/%d/threads/%s/comments/1?api-version=%s",
		c.baseURL, pr.PRNumber, url.PathEscape(threadID), apiVersion)
	return c.doJSON(ctx, http.MethodPatch, apiURL, map[string]string{"content": body}, nil)
}

// IsDraft performs a GET on the PR to check draft status. Per §4.10, a
// fetch failure is treated as "not draft" by the caller (logged there,
// not here, since this package has no logger dependency).
func (c *Client) IsDraft(ctx context.Context, pr domain.ForgePRContext) (bool, error) {
	apiURL := fmt.Sprintf("%s/pullRequests/%d?api-version=%s", c.baseURL, pr.PRNumber, apiVersion)
	var resp struct {
		IsDraft bool `json:"isDraft"`
	}
	if err := c.doJSON(ctx, http.MethodGet, apiURL, nil, &resp); err != nil {
		return false, err
	}
	return resp.IsDraft, nil
}

func (c *Client) doJSON(ctx context.Context, method, apiURL string, reqBody any, out any) error {
	var payload []byte
	if reqBody != nil {
		var err error
		payload, err = json.Marshal(reqBody)
		if err != nil {
			return apperrors.WrapValidation(err, "marshal %s request", method)
		}
	}

	var respBody []byte
	err := netretry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, apiURL, bytes.NewReader(payload))
		if err != nil {
			return apperrors.WrapNetwork(err, false, "build %s request", method)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apperrors.WrapNetwork(err, true, "%s %s", method, apiURL)
		}
		defer resp.Body.Close()

		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return apperrors.WrapNetwork(readErr, true, "read response body")
		}

		if resp.StatusCode >= 400 {
			return apperrors.Network(resp.StatusCode >= 500, "ado api %s %s: %d: %s", method, apiURL, resp.StatusCode, string(body))
		}

		respBody = body
		return nil
	}, c.retryConf, nil)
	if err != nil {
		return err
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return apperrors.WrapValidation(err, "decode %s response", method)
		}
	}
	return nil
}

// ResolveForkAndToken implements §4.10's fork detection and token
// resolution, callable by the CLI collaborator before constructing a
// Client.
func ResolveForkAndToken(sourceRepoURI, buildRepoURI, systemAccessToken, azureDevOpsPAT string) (isFork bool, token string) {
	isFork = sourceRepoURI != "" && sourceRepoURI != buildRepoURI
	token = systemAccessToken
	if token == "" {
		token = azureDevOpsPAT
	}
	return isFork, token
}
