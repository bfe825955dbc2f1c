package gitengine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	goGit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odd-ai/reviewers/internal/domain"
	"github.com/odd-ai/reviewers/internal/gitengine"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func defaultSignature() *object.Signature {
	return &object.Signature{Name: "Test", Email: "test@example.com", When: time.Unix(0, 0)}
}

func checkoutBranch(worktree *goGit.Worktree, branch string) error {
	return worktree.Checkout(&goGit.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(branch), Create: true})
}

func TestGetCumulativeDiffForBranch(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()

	repo, err := goGit.PlainInit(tmp, false)
	require.NoError(t, err)
	worktree, err := repo.Worktree()
	require.NoError(t, err)

	writeFile(t, tmp, "main.go", "package main\n\nfunc main() {\n\tprintln(\"hello\")\n}\n")
	_, err = worktree.Add("main.go")
	require.NoError(t, err)
	_, err = worktree.Commit("initial", &goGit.CommitOptions{Author: defaultSignature()})
	require.NoError(t, err)
	require.NoError(t, checkoutBranch(worktree, "feature"))

	writeFile(t, tmp, "main.go", "package main\n\nfunc main() {\n\tprintln(\"feature\")\n}\n")
	_, err = worktree.Add("main.go")
	require.NoError(t, err)
	_, err = worktree.Commit("feature change", &goGit.CommitOptions{Author: defaultSignature()})
	require.NoError(t, err)

	engine := gitengine.NewEngine(tmp)
	diff, err := engine.GetCumulativeDiff(ctx, "master", "feature", false)
	require.NoError(t, err)

	assert.NotEmpty(t, diff.BaseSHA)
	assert.NotEmpty(t, diff.HeadSHA)
	require.Len(t, diff.Files, 1)
	assert.Equal(t, domain.FileStatusModified, diff.Files[0].Status)
	assert.Contains(t, diff.Files[0].Patch, "feature")
	assert.Positive(t, diff.Files[0].Additions)
}

func TestGetCumulativeDiffDetectsRename(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()

	repo, err := goGit.PlainInit(tmp, false)
	require.NoError(t, err)
	worktree, err := repo.Worktree()
	require.NoError(t, err)

	writeFile(t, tmp, "old.go", "package main\n")
	_, err = worktree.Add("old.go")
	require.NoError(t, err)
	_, err = worktree.Commit("initial", &goGit.CommitOptions{Author: defaultSignature()})
	require.NoError(t, err)
	require.NoError(t, checkoutBranch(worktree, "feature"))

	require.NoError(t, os.Rename(filepath.Join(tmp, "old.go"), filepath.Join(tmp, "new.go")))
	_, err = worktree.Add("new.go")
	require.NoError(t, err)
	_, err = worktree.Remove("old.go")
	require.NoError(t, err)
	_, err = worktree.Commit("rename", &goGit.CommitOptions{Author: defaultSignature()})
	require.NoError(t, err)

	engine := gitengine.NewEngine(tmp)
	diff, err := engine.GetCumulativeDiff(ctx, "master", "feature", false)
	require.NoError(t, err)
	require.Len(t, diff.Files, 1)
	assert.Equal(t, domain.FileStatusRenamed, diff.Files[0].Status)
	assert.Equal(t, "new.go", diff.Files[0].Path)
	assert.Equal(t, "old.go", diff.Files[0].OldPath)
}

func TestGetCumulativeDiffIncludesUncommittedChanges(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()

	repo, err := goGit.PlainInit(tmp, false)
	require.NoError(t, err)
	worktree, err := repo.Worktree()
	require.NoError(t, err)

	writeFile(t, tmp, "main.go", "package main\n\nfunc main() {\n\tprintln(\"hello\")\n}\n")
	_, err = worktree.Add("main.go")
	require.NoError(t, err)
	_, err = worktree.Commit("initial", &goGit.CommitOptions{Author: defaultSignature()})
	require.NoError(t, err)

	writeFile(t, tmp, "main.go", "package main\n\nfunc main() {\n\tprintln(\"working tree change\")\n}\n")

	engine := gitengine.NewEngine(tmp)
	diff, err := engine.GetCumulativeDiff(ctx, "master", "master", true)
	require.NoError(t, err)
	require.Len(t, diff.Files, 1)
	assert.Contains(t, diff.Files[0].Patch, "working tree change")
}

func TestCurrentBranchReturnsCheckedOutBranch(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()

	repo, err := goGit.PlainInit(tmp, false)
	require.NoError(t, err)
	worktree, err := repo.Worktree()
	require.NoError(t, err)

	writeFile(t, tmp, "main.go", "package main\n")
	_, err = worktree.Add("main.go")
	require.NoError(t, err)
	_, err = worktree.Commit("initial", &goGit.CommitOptions{Author: defaultSignature()})
	require.NoError(t, err)
	require.NoError(t, checkoutBranch(worktree, "feature"))

	engine := gitengine.NewEngine(tmp)
	branch, err := engine.CurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "feature", branch)
}

func TestGetCumulativeDiffErrorsOnUnresolvableRef(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()

	repo, err := goGit.PlainInit(tmp, false)
	require.NoError(t, err)
	worktree, err := repo.Worktree()
	require.NoError(t, err)
	writeFile(t, tmp, "main.go", "package main\n")
	_, err = worktree.Add("main.go")
	require.NoError(t, err)
	_, err = worktree.Commit("initial", &goGit.CommitOptions{Author: defaultSignature()})
	require.NoError(t, err)

	engine := gitengine.NewEngine(tmp)
	_, err = engine.GetCumulativeDiff(ctx, "master", "does-not-exist", false)
	require.Error(t, err)
}

func TestGetCumulativeDiffSkipsBinaryFiles(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()

	repo, err := goGit.PlainInit(tmp, false)
	require.NoError(t, err)
	worktree, err := repo.Worktree()
	require.NoError(t, err)

	writeFile(t, tmp, "keep.go", "package main\n")
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "image.png"), []byte{0x89, 0x50, 0x4e, 0x47, 0x00, 0x01, 0x02}, 0o600))
	_, err = worktree.Add(".")
	require.NoError(t, err)
	_, err = worktree.Commit("initial", &goGit.CommitOptions{Author: defaultSignature()})
	require.NoError(t, err)
	require.NoError(t, checkoutBranch(worktree, "feature"))

	writeFile(t, tmp, "keep.go", "package main\n\nfunc main() {}\n")
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "image.png"), []byte{0x89, 0x50, 0x4e, 0x47, 0xff, 0xee, 0xdd}, 0o600))
	_, err = worktree.Add(".")
	require.NoError(t, err)
	_, err = worktree.Commit("change", &goGit.CommitOptions{Author: defaultSignature()})
	require.NoError(t, err)

	engine := gitengine.NewEngine(tmp)
	diff, err := engine.GetCumulativeDiff(ctx, "master", "feature", false)
	require.NoError(t, err)
	for _, f := range diff.Files {
		assert.NotEqual(t, "image.png", f.Path)
	}
}
