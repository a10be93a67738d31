package git

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) (string, *gogit.Repository, plumbing.Hash) {
	t.Helper()

	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Makefile"), []byte("all:\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("Makefile")
	require.NoError(t, err)

	hash, err := wt.Commit("initial", &gogit.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	return dir, repo, hash
}

func TestShortBranch(t *testing.T) {
	dir, repo, hash := initRepo(t)

	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.Checkout(&gogit.CheckoutOptions{
		Hash:   hash,
		Branch: plumbing.NewBranchReferenceName("feature/matcher"),
		Create: true,
	}))

	got, err := ShortBranch(dir)
	require.NoError(t, err)
	assert.Equal(t, "feature/matcher", got)
}

func TestShortBranch_Subdirectory(t *testing.T) {
	dir, _, _ := initRepo(t)
	sub := filepath.Join(dir, "pkg")
	require.NoError(t, os.Mkdir(sub, 0o755))

	want, err := ShortBranch(dir)
	require.NoError(t, err)

	got, err := ShortBranch(sub)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestShortBranch_Detached(t *testing.T) {
	dir, repo, hash := initRepo(t)

	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.Checkout(&gogit.CheckoutOptions{Hash: hash}))

	got, err := Resolver{}.ShortBranch(dir)
	require.NoError(t, err)
	assert.Equal(t, hash.String()[:7], got)
}

func TestShortBranch_Errors(t *testing.T) {
	_, err := ShortBranch(t.TempDir())
	assert.ErrorIs(t, err, ErrNotRepository)

	empty := t.TempDir()
	_, err = gogit.PlainInit(empty, false)
	require.NoError(t, err)
	_, err = ShortBranch(empty)
	assert.ErrorIs(t, err, ErrNoHead)
}
