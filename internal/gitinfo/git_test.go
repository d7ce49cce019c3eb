package gitinfo

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func git(t *testing.T, dir string, args ...string) {
	t.Helper()
	command := exec.Command("git", append([]string{"-C", dir}, args...)...)
	command.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Test",
		"GIT_AUTHOR_EMAIL=test@test.local",
		"GIT_COMMITTER_NAME=Test",
		"GIT_COMMITTER_EMAIL=test@test.local",
	)
	output, err := command.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, output)
}

// initRepo creates a work tree on branch "main" with one commit.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	git(t, dir, "init", "-q", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "train.py"), []byte("print('v1')\n"), 0o644))
	git(t, dir, "add", "train.py")
	git(t, dir, "commit", "-q", "-m", "initial")
	return dir
}

func TestDiscoverFromSubdirectory(t *testing.T) {
	dir := initRepo(t)
	sub := filepath.Join(dir, "src", "pkg")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	repo, err := Discover(context.Background(), sub)
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(repo.Dir())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDiscoverOutsideRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	_, err := Discover(context.Background(), t.TempDir())
	assert.True(t, errors.Is(err, ErrNotRepository))
}

func TestRepoDetails(t *testing.T) {
	dir := initRepo(t)
	git(t, dir, "remote", "add", "origin", "https://example.com/team/model.git")

	info, err := NewRepository(dir).RepoDetails(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "main", info.ActiveBranch)
	assert.Len(t, info.CommitID, 40)
	assert.Equal(t, "https://example.com/team/model.git", info.RemoteURL)
}

func TestRepoDetailsWithoutOrigin(t *testing.T) {
	dir := initRepo(t)

	info, err := NewRepository(dir).RepoDetails(context.Background())
	require.NoError(t, err)
	assert.Empty(t, info.RemoteURL)
	assert.NotEmpty(t, info.CommitID)
}

func TestRepoDetailsWithoutCommits(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	git(t, dir, "init", "-q")

	_, err := NewRepository(dir).RepoDetails(context.Background())
	require.Error(t, err)
}

func TestWriteDiff(t *testing.T) {
	dir := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "train.py"), []byte("print('v2')\n"), 0o644))

	out := filepath.Join(t.TempDir(), "diff.txt")
	require.NoError(t, NewRepository(dir).WriteDiff(context.Background(), out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "-print('v1')")
	assert.Contains(t, string(data), "+print('v2')")
}

func TestWriteDiffCleanTree(t *testing.T) {
	dir := initRepo(t)

	out := filepath.Join(t.TempDir(), "diff.txt")
	require.NoError(t, NewRepository(dir).WriteDiff(context.Background(), out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Empty(t, data)
}
