// Package gitengine reads cumulative diffs from a local git checkout,
// grounded on the teacher's internal/adapter/git/engine.go: go-git/v5 for
// committed-ref-to-ref diffs plus rename detection, falling back to the
// git CLI only for the uncommitted-working-tree case go-git's plumbing
// does not expose directly.
package gitengine

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	goGit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	formatdiff "github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/odd-ai/reviewers/internal/apperrors"
	"github.com/odd-ai/reviewers/internal/domain"
)

// Engine reads diffs and ref metadata from one local repository checkout.
type Engine struct {
	repoDir string
}

// NewEngine constructs a git engine rooted at repoDir.
func NewEngine(repoDir string) *Engine {
	return &Engine{repoDir: repoDir}
}

// CumulativeDiff is the result of diffing two refs: the canonical-ready
// file list plus the resolved commit hashes the CLI collaborator stamps
// onto domain.ForgePRContext.
type CumulativeDiff struct {
	BaseSHA string
	HeadSHA string
	Files   []domain.DiffFile
}

// GetCumulativeDiff diffs baseRef against targetRef. When includeUncommitted
// is true (local/dev runs, never CI), working-tree changes against baseRef
// are included instead of the committed targetRef..baseRef patch set.
func (e *Engine) GetCumulativeDiff(ctx context.Context, baseRef, targetRef string, includeUncommitted bool) (CumulativeDiff, error) {
	repo, err := goGit.PlainOpenWithOptions(e.repoDir, &goGit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return CumulativeDiff{}, apperrors.WrapConfig(err, "open git repository at %q", e.repoDir)
	}

	baseCommit, err := resolveCommit(repo, baseRef)
	if err != nil {
		return CumulativeDiff{}, apperrors.WrapConfig(err, "resolve base ref %q", baseRef)
	}
	targetCommit, err := resolveCommit(repo, targetRef)
	if err != nil {
		return CumulativeDiff{}, apperrors.WrapConfig(err, "resolve target ref %q", targetRef)
	}

	if includeUncommitted {
		files, err := diffWithWorkingTree(ctx, e.repoDir, baseRef)
		if err != nil {
			return CumulativeDiff{}, err
		}
		return CumulativeDiff{
			BaseSHA: baseCommit.Hash.String(),
			HeadSHA: targetCommit.Hash.String(),
			Files:   files,
		}, nil
	}

	patch, err := baseCommit.Patch(targetCommit)
	if err != nil {
		return CumulativeDiff{}, apperrors.WrapConfig(err, "compute patch %s..%s", baseRef, targetRef)
	}

	files := make([]domain.DiffFile, 0, len(patch.FilePatches()))
	for _, fp := range patch.FilePatches() {
		path, oldPath, status := diffPathAndStatus(fp)
		patchText, err := encodeFilePatch(fp)
		if err != nil {
			return CumulativeDiff{}, apperrors.WrapConfig(err, "encode patch for %q", path)
		}
		if isBinaryPatch(patchText) {
			continue // no reviewable lines; line resolver has nothing to anchor to
		}
		adds, dels := countPatchLines(patchText)
		files = append(files, domain.DiffFile{
			Path:      path,
			OldPath:   oldPath,
			Status:    status,
			Patch:     patchText,
			Additions: adds,
			Deletions: dels,
		})
	}

	return CumulativeDiff{
		BaseSHA: baseCommit.Hash.String(),
		HeadSHA: targetCommit.Hash.String(),
		Files:   files,
	}, nil
}

// CurrentBranch returns the checked-out branch name, or an error on a
// detached HEAD (push-mode runs resolve their ref directly and never call
// this).
func (e *Engine) CurrentBranch(ctx context.Context) (string, error) {
	repo, err := goGit.PlainOpenWithOptions(e.repoDir, &goGit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", apperrors.WrapConfig(err, "open git repository at %q", e.repoDir)
	}
	head, err := repo.Head()
	if err != nil {
		return "", apperrors.WrapConfig(err, "resolve HEAD")
	}
	if head.Name().IsBranch() {
		return head.Name().Short(), nil
	}
	return "", apperrors.Config("HEAD is detached, no current branch")
}

func resolveCommit(repo *goGit.Repository, ref string) (*object.Commit, error) {
	candidates := []string{
		ref,
		fmt.Sprintf("refs/heads/%s", ref),
		fmt.Sprintf("refs/remotes/origin/%s", ref),
	}

	var lastErr error
	for _, candidate := range candidates {
		hash, err := repo.ResolveRevision(plumbing.Revision(candidate))
		if err != nil {
			lastErr = err
			continue
		}
		return repo.CommitObject(*hash)
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("unable to resolve ref %q", ref)
}

// diffPathAndStatus returns the new path, the old path (renames only), and
// the domain status for one file patch.
func diffPathAndStatus(fp formatdiff.FilePatch) (path, oldPath string, status domain.FileStatus) {
	from, to := fp.Files()
	switch {
	case from == nil && to != nil:
		return to.Path(), "", domain.FileStatusAdded
	case from != nil && to == nil:
		return from.Path(), "", domain.FileStatusDeleted
	case from != nil && to != nil:
		if from.Path() != to.Path() {
			return to.Path(), from.Path(), domain.FileStatusRenamed
		}
		return to.Path(), "", domain.FileStatusModified
	default:
		return "", "", domain.FileStatusModified
	}
}

func isBinaryPatch(patchText string) bool {
	return strings.Contains(patchText, "Binary files") || strings.Contains(patchText, "GIT binary patch")
}

func countPatchLines(patchText string) (additions, deletions int) {
	for _, line := range strings.Split(patchText, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			continue
		case strings.HasPrefix(line, "+"):
			additions++
		case strings.HasPrefix(line, "-"):
			deletions++
		}
	}
	return additions, deletions
}

func encodeFilePatch(fp formatdiff.FilePatch) (string, error) {
	var buf bytes.Buffer
	encoder := formatdiff.NewUnifiedEncoder(&buf, formatdiff.DefaultContextLines)
	if err := encoder.Encode(singlePatch{fp: fp}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type singlePatch struct {
	fp formatdiff.FilePatch
}

func (s singlePatch) FilePatches() []formatdiff.FilePatch { return []formatdiff.FilePatch{s.fp} }
func (s singlePatch) Message() string                     { return "" }

// diffWithWorkingTree shells out to the git CLI for the uncommitted-changes
// case: go-git's worktree status does not expose a ready-made unified
// patch against an arbitrary base ref, so this mirrors the teacher's CLI
// fallback rather than hand-rolling a working-tree differ on top of
// go-git's lower-level plumbing.
func diffWithWorkingTree(ctx context.Context, repoDir, baseRef string) ([]domain.DiffFile, error) {
	statusOut, err := runGitCommand(ctx, repoDir, "status", "--porcelain")
	if err != nil {
		return nil, apperrors.WrapConfig(err, "git status")
	}

	trimmed := strings.TrimRight(statusOut, "\r\n")
	if trimmed == "" {
		return []domain.DiffFile{}, nil
	}

	lines := strings.Split(trimmed, "\n")
	files := make([]domain.DiffFile, 0, len(lines))
	for _, line := range lines {
		if len(line) < 3 {
			continue
		}
		statusChar := selectStatusChar(line)
		path, oldPath := extractPathAndOldPath(line)
		patchOut, err := runGitCommand(ctx, repoDir, "diff", baseRef, "--", path)
		if err != nil {
			return nil, apperrors.WrapConfig(err, "git diff %q", path)
		}
		if isBinaryPatch(patchOut) {
			continue
		}
		adds, dels := countPatchLines(patchOut)
		files = append(files, domain.DiffFile{
			Path:      path,
			OldPath:   oldPath,
			Status:    mapGitStatus(statusChar),
			Patch:     patchOut,
			Additions: adds,
			Deletions: dels,
		})
	}
	return files, nil
}

func runGitCommand(ctx context.Context, repoDir string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", repoDir}, args...)
	cmd := exec.CommandContext(ctx, "git", fullArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("git %v: %w", args, ctx.Err())
		}
		if stderr.Len() > 0 {
			return "", fmt.Errorf("git %v: %w: %s", args, err, strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("git %v: %w", args, err)
	}
	return stdout.String(), nil
}

func selectStatusChar(line string) rune {
	if len(line) < 2 {
		return 'M'
	}
	first, second := rune(line[0]), rune(line[1])
	switch {
	case second != ' ':
		return second
	case first != ' ':
		return first
	default:
		return 'M'
	}
}

// extractPathAndOldPath parses one `git status --porcelain` line, handling
// the rename form "R  old_path -> new_path".
func extractPathAndOldPath(line string) (path, oldPath string) {
	if len(line) <= 3 {
		return strings.TrimSpace(line), ""
	}
	pathPart := strings.TrimSpace(line[3:])
	if strings.Contains(pathPart, " -> ") {
		parts := strings.SplitN(pathPart, " -> ", 2)
		if len(parts) == 2 {
			return strings.TrimSpace(parts[1]), strings.TrimSpace(parts[0])
		}
	}
	return pathPart, ""
}

func mapGitStatus(status rune) domain.FileStatus {
	switch status {
	case 'A', '?':
		return domain.FileStatusAdded
	case 'D':
		return domain.FileStatusDeleted
	case 'R':
		return domain.FileStatusRenamed
	default:
		return domain.FileStatusModified
	}
}
