// Package githubforge implements reporter.Forge over the GitHub REST API:
// check runs, issue comments (summary), and pull request review comments
// (inline), grounded on the teacher's internal/adapter/github/client.go
// hand-rolled net/http client (retry, Link-header pagination, SSRF-safe
// URL validation, path-escaped owner/repo).
package githubforge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/odd-ai/reviewers/internal/apperrors"
	"github.com/odd-ai/reviewers/internal/domain"
	"github.com/odd-ai/reviewers/internal/fingerprint"
	"github.com/odd-ai/reviewers/internal/netretry"
	"github.com/odd-ai/reviewers/internal/reporter"
)

const (
	defaultBaseURL = "https://api.github.com"
	defaultTimeout = 30 * time.Second
	apiVersion     = "2022-11-28"
)

// Client implements reporter.Forge against the GitHub REST API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	retryConf  netretry.Config
}

// NewClient builds a client authenticated with token (typically
// GITHUB_TOKEN from the Actions runner environment).
func NewClient(token string) *Client {
	return &Client{
		token:      token,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		retryConf:  netretry.DefaultConfig(),
	}
}

// SetBaseURL overrides the API base, for tests and GitHub Enterprise.
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

var _ reporter.Forge = (*Client)(nil)

type checkRunRequest struct {
	Name       string       `json:"name"`
	HeadSHA    string       `json:"head_sha"`
	Status     string       `json:"status,omitempty"`
	StartedAt  string       `json:"started_at,omitempty"`
	Conclusion string       `json:"conclusion,omitempty"`
	Output     *checkOutput `json:"output,omitempty"`
}

type checkOutput struct {
	Title       string            `json:"title"`
	Summary     string            `json:"summary"`
	Annotations []checkAnnotation `json:"annotations,omitempty"`
}

type checkAnnotation struct {
	Path            string `json:"path"`
	StartLine       int    `json:"start_line"`
	EndLine         int    `json:"end_line"`
	AnnotationLevel string `json:"annotation_level"`
	Message         string `json:"message"`
	Title           string `json:"title,omitempty"`
}

type checkRunResponse struct {
	ID int64 `json:"id"`
}

const checkRunName = "AI Code Review"

// StartCheck creates a new in-progress check run anchored to the PR's
// head SHA.
func (c *Client) StartCheck(ctx context.Context, pr domain.ForgePRContext) (reporter.CheckHandle, error) {
	body := checkRunRequest{
		Name:      checkRunName,
		HeadSHA:   pr.HeadSHA,
		Status:    "in_progress",
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
	apiURL := fmt.Sprintf("%s/repos/%s/%s/check-runs", c.baseURL, url.PathEscape(pr.Owner), url.PathEscape(pr.Repo))

	var resp checkRunResponse
	if err := c.doJSON(ctx, http.MethodPost, apiURL, body, &resp); err != nil {
		return reporter.CheckHandle{}, err
	}
	return reporter.CheckHandle{ID: fmt.Sprintf("%d", resp.ID)}, nil
}

func severityToAnnotationLevel(s domain.Severity) string {
	switch s {
	case domain.SeverityError:
		return "failure"
	case domain.SeverityWarning:
		return "warning"
	default:
		return "notice"
	}
}

// CompleteCheck patches the check run created by StartCheck to completed,
// capping annotations at GitHub's 50-per-request limit.
func (c *Client) CompleteCheck(ctx context.Context, handle reporter.CheckHandle, pr domain.ForgePRContext, conclusion reporter.Conclusion, title, summary string, annotations []reporter.Annotation) error {
	if len(annotations) > 50 {
		annotations = annotations[:50]
	}
	out := &checkOutput{Title: title, Summary: summary}
	for _, a := range annotations {
		out.Annotations = append(out.Annotations, checkAnnotation{
			Path:            a.File,
			StartLine:       a.StartLine,
			EndLine:         a.EndLine,
			AnnotationLevel: severityToAnnotationLevel(a.Severity),
			Message:         a.Message,
			Title:           a.Title,
		})
	}

	body := checkRunRequest{
		Name:       checkRunName,
		HeadSHA:    pr.HeadSHA,
		Status:     "completed",
		Conclusion: githubConclusion(conclusion),
		Output:     out,
	}

	if handle.ID == "" {
		apiURL := fmt.Sprintf("%s/repos/%s/%s/check-runs", c.baseURL, url.PathEscape(pr.Owner), url.PathEscape(pr.Repo))
		return c.doJSON(ctx, http.MethodPost, apiURL, body, nil)
	}

	apiURL := fmt.Sprintf("%s/repos/%s/%s/check-runs/%s", c.baseURL, url.PathEscape(pr.Owner), url.PathEscape(pr.Repo), url.PathEscape(handle.ID))
	return c.doJSON(ctx, http.MethodPatch, apiURL, body, nil)
}

func githubConclusion(c reporter.Conclusion) string {
	switch c {
	case reporter.ConclusionFailure:
		return "failure"
	case reporter.ConclusionCancelled:
		return "cancelled"
	default:
		return "success"
	}
}

type issueComment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
}

type reviewComment struct {
	ID        int64  `json:"id"`
	Path      string `json:"path"`
	Line      int    `json:"line"`
	StartLine int    `json:"start_line"`
	Body      string `json:"body"`
}

// ExistingComments fetches both issue comments (carrying the summary) and
// review comments (carrying inline findings) and returns them as a single
// list of domain.Comment, fingerprint markers pre-extracted.
func (c *Client) ExistingComments(ctx context.Context, pr domain.ForgePRContext) ([]domain.Comment, error) {
	issueComments, err := c.listIssueComments(ctx, pr)
	if err != nil {
		return nil, err
	}
	reviewComments, err := c.listReviewComments(ctx, pr)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Comment, 0, len(issueComments)+len(reviewComments))
	for _, ic := range issueComments {
		out = append(out, domain.Comment{
			ID:      fmt.Sprintf("issue:%d", ic.ID),
			Body:    ic.Body,
			Markers: fingerprint.ExtractFingerprintMarkers(ic.Body),
		})
	}
	for _, rc := range reviewComments {
		out = append(out, domain.Comment{
			ID:      fmt.Sprintf("review:%d", rc.ID),
			Body:    rc.Body,
			File:    rc.Path,
			Line:    rc.Line,
			Markers: fingerprint.ExtractFingerprintMarkers(rc.Body),
		})
	}
	return out, nil
}

func (c *Client) listIssueComments(ctx context.Context, pr domain.ForgePRContext) ([]issueComment, error) {
	nextURL := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments?per_page=100",
		c.baseURL, url.PathEscape(pr.Owner), url.PathEscape(pr.Repo), pr.PRNumber)

	var all []issueComment
	for nextURL != "" {
		var page []issueComment
		header, err := c.doJSONWithHeader(ctx, http.MethodGet, nextURL, nil, &page)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		nextURL, err = c.nextPageURL(header)
		if err != nil {
			return nil, err
		}
	}
	return all, nil
}

func (c *Client) listReviewComments(ctx context.Context, pr domain.ForgePRContext) ([]reviewComment, error) {
	nextURL := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/comments?per_page=100",
		c.baseURL, url.PathEscape(pr.Owner), url.PathEscape(pr.Repo), pr.PRNumber)

	var all []reviewComment
	for nextURL != "" {
		var page []reviewComment
		header, err := c.doJSONWithHeader(ctx, http.MethodGet, nextURL, nil, &page)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		nextURL, err = c.nextPageURL(header)
		if err != nil {
			return nil, err
		}
	}
	return all, nil
}

func (c *Client) nextPageURL(h http.Header) (string, error) {
	next := parseNextLink(h.Get("Link"))
	if next == "" {
		return "", nil
	}
	return c.validateAndResolvePaginationURL(next)
}

// parseNextLink extracts the "next" URL from a GitHub Link header:
// "<url>; rel=\"next\", <url>; rel=\"last\"".
func parseNextLink(linkHeader string) string {
	if linkHeader == "" {
		return ""
	}
	re := regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)
	matches := re.FindStringSubmatch(linkHeader)
	if len(matches) >= 2 {
		return matches[1]
	}
	return ""
}

// validateAndResolvePaginationURL resolves a Link-header URL against the
// configured base, rejecting scheme downgrades and hosts other than the
// base host or api.github.com, and requiring a /repos/ path prefix. This
// prevents a compromised or malicious Link header from redirecting
// subsequent authenticated requests off-host.
func (c *Client) validateAndResolvePaginationURL(rawURL string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", apperrors.WrapNetwork(err, false, "invalid configured base URL")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", apperrors.WrapNetwork(err, false, "invalid pagination URL")
	}
	if !parsed.IsAbs() {
		parsed = base.ResolveReference(parsed)
	}
	if base.Scheme == "https" && parsed.Scheme == "http" {
		return "", apperrors.Network(false, "scheme downgrade not allowed: %s -> %s", base.Scheme, parsed.Scheme)
	}
	allowedHosts := map[string]bool{
		base.Host:            true,
		"api.github.com":     true,
		"api.github.com:443": true,
	}
	if !allowedHosts[parsed.Host] {
		return "", apperrors.Network(false, "untrusted pagination host %q", parsed.Host)
	}
	if !strings.HasPrefix(parsed.Path, "/repos/") {
		return "", apperrors.Network(false, "unexpected pagination path %q", parsed.Path)
	}
	return parsed.String(), nil
}

// UpsertSummaryComment finds the bot's existing summary comment by its
// distinctive header and updates it, or creates a new one.
func (c *Client) UpsertSummaryComment(ctx context.Context, pr domain.ForgePRContext, body string) error {
	_, err := c.UpsertMarkedComment(ctx, pr, reporter.SummaryHeader, body)
	return err
}

// UpsertMarkedComment finds the issue comment whose body starts with
// marker and replaces it, or creates a new one if none matches. marker
// generalizes UpsertSummaryComment's hardcoded reporter.SummaryHeader
// prefix match so other owners (internal/tracking's persisted state
// comment) can reuse the same find-or-create path without colliding with
// the summary comment.
func (c *Client) UpsertMarkedComment(ctx context.Context, pr domain.ForgePRContext, marker, body string) (string, error) {
	existing, err := c.listIssueComments(ctx, pr)
	if err != nil {
		return "", err
	}
	for _, ic := range existing {
		if strings.HasPrefix(ic.Body, marker) {
			apiURL := fmt.Sprintf("%s/repos/%s/%s/issues/comments/%d", c.baseURL, url.PathEscape(pr.Owner), url.PathEscape(pr.Repo), ic.ID)
			if err := c.doJSON(ctx, http.MethodPatch, apiURL, map[string]string{"body": body}, nil); err != nil {
				return "", err
			}
			return fmt.Sprintf("issue:%d", ic.ID), nil
		}
	}
	apiURL := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments", c.baseURL, url.PathEscape(pr.Owner), url.PathEscape(pr.Repo), pr.PRNumber)
	var resp issueComment
	if err := c.doJSON(ctx, http.MethodPost, apiURL, map[string]string{"body": body}, &resp); err != nil {
		return "", err
	}
	return fmt.Sprintf("issue:%d", resp.ID), nil
}

// PostInlineComment creates a pull request review comment anchored to
// c.File/c.Line, using a multi-line start_line when c.EndLine differs.
func (c *Client) PostInlineComment(ctx context.Context, pr domain.ForgePRContext, comment reporter.InlineComment) (string, error) {
	payload := map[string]any{
		"body":      comment.Body,
		"commit_id": pr.HeadSHA,
		"path":      comment.File,
		"line":      comment.EndLine,
		"side":      "RIGHT",
	}
	if comment.EndLine > comment.Line {
		payload["start_line"] = comment.Line
		payload["start_side"] = "RIGHT"
	}

	apiURL := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/comments", c.baseURL, url.PathEscape(pr.Owner), url.PathEscape(pr.Repo), pr.PRNumber)
	var resp reviewComment
	if err := c.doJSON(ctx, http.MethodPost, apiURL, payload, &resp); err != nil {
		return "", err
	}
	return fmt.Sprintf("review:%d", resp.ID), nil
}

// UpdateCommentBody overwrites an existing issue or review comment's
// body, dispatching on the "issue:"/"review:" prefix ExistingComments
// assigned to commentID.
func (c *Client) UpdateCommentBody(ctx context.Context, pr domain.ForgePRContext, commentID string, body string) error {
	kind, id, ok := strings.Cut(commentID, ":")
	if !ok {
		return apperrors.Validation("malformed comment id %q", commentID)
	}
	var apiURL string
	switch kind {
	case "issue":
		apiURL = fmt.Sprintf("%s/repos/%s/%s/issues/comments/%s", c.baseURL, url.PathEscape(pr.Owner), url.PathEscape(pr.Repo), url.PathEscape(id))
	case "review":
		apiURL = fmt.Sprintf("%s/repos/%s/%s/pulls/comments/%s", c.baseURL, url.PathEscape(pr.Owner), url.PathEscape(pr.Repo), url.PathEscape(id))
	default:
		return apperrors.Validation("unknown comment kind %q", kind)
	}
	return c.doJSON(ctx, http.MethodPatch, apiURL, map[string]string{"body": body}, nil)
}

// doJSON issues one retried HTTP request, encoding reqBody as JSON (if
// non-nil) and decoding the response into out (if non-nil).
func (c *Client) doJSON(ctx context.Context, method, apiURL string, reqBody any, out any) error {
	_, err := c.doJSONWithHeader(ctx, method, apiURL, reqBody, out)
	return err
}

func (c *Client) doJSONWithHeader(ctx context.Context, method, apiURL string, reqBody any, out any) (http.Header, error) {
	var payload []byte
	if reqBody != nil {
		var err error
		payload, err = json.Marshal(reqBody)
		if err != nil {
			return nil, apperrors.WrapValidation(err, "marshal %s request", method)
		}
	}

	var respHeader http.Header
	var respBody []byte
	err := netretry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, apiURL, bytes.NewReader(payload))
		if err != nil {
			return apperrors.WrapNetwork(err, false, "build %s request", method)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", apiVersion)
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
			return apperrors.Network(resp.StatusCode >= 500, "github api %s %s: %d: %s", method, apiURL, resp.StatusCode, string(body))
		}

		respHeader = resp.Header
		respBody = body
		return nil
	}, c.retryConf, nil)
	if err != nil {
		return nil, err
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, apperrors.WrapValidation(err, "decode %s response", method)
		}
	}
	return respHeader, nil
}
