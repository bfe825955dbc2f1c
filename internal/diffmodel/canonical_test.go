package diffmodel

import (
	"testing"

	"github.com/odd-ai/reviewers/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeStripsLeadingSlash(t *testing.T) {
	out, err := Canonicalize([]domain.DiffFile{{Path: "/src/a.ts", Status: domain.FileStatusModified}})
	require.NoError(t, err)
	assert.Equal(t, "src/a.ts", out.Files[0].Path)
}

func TestCanonicalizeCollapsesBackslashes(t *testing.T) {
	out, err := Canonicalize([]domain.DiffFile{{Path: `src\a\b.ts`, Status: domain.FileStatusModified}})
	require.NoError(t, err)
	assert.Equal(t, "src/a/b.ts", out.Files[0].Path)
}

func TestCanonicalizeStripsDotSlashPrefix(t *testing.T) {
	out, err := Canonicalize([]domain.DiffFile{{Path: "./src/./a.ts", Status: domain.FileStatusModified}})
	require.NoError(t, err)
	assert.Equal(t, "src/a.ts", out.Files[0].Path)
}

func TestCanonicalizeRejectsDotDotSegments(t *testing.T) {
	_, err := Canonicalize([]domain.DiffFile{{Path: "../etc/passwd", Status: domain.FileStatusModified}})
	require.Error(t, err)
}

func TestCanonicalizeTracksDeletedFiles(t *testing.T) {
	out, err := Canonicalize([]domain.DiffFile{
		{Path: "/src/gone.ts", Status: domain.FileStatusDeleted},
		{Path: "/src/kept.ts", Status: domain.FileStatusModified},
	})
	require.NoError(t, err)
	assert.True(t, out.DeletedFiles["src/gone.ts"])
	assert.False(t, out.DeletedFiles["src/kept.ts"])
}

func TestCanonicalizeRenamedFileNormalizesBothPaths(t *testing.T) {
	out, err := Canonicalize([]domain.DiffFile{
		{Path: "/new/name.ts", OldPath: "/old\\name.ts", Status: domain.FileStatusRenamed},
	})
	require.NoError(t, err)
	assert.Equal(t, "new/name.ts", out.Files[0].Path)
	assert.Equal(t, "old/name.ts", out.Files[0].OldPath)
}

func TestCanonicalizeDoesNotRewritePatchLineNumbers(t *testing.T) {
	patch := "@@ -1,2 +1,3 @@\n context\n+added\n context\n"
	out, err := Canonicalize([]domain.DiffFile{{Path: "a.ts", Status: domain.FileStatusModified, Patch: patch}})
	require.NoError(t, err)
	assert.Equal(t, patch, out.Files[0].Patch)
}
