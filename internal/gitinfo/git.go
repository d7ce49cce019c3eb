// Package gitinfo snapshots the source-control state of the working tree a
// run was launched from. All commands go through the git CLI with -C so the
// process working directory never matters.
package gitinfo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/imishinist/mlvc-cli/internal/models"
)

// ErrNotRepository is returned by Discover when dir is outside any work tree.
var ErrNotRepository = errors.New("not a git work tree")

// Repository is a git work tree rooted at dir.
type Repository struct {
	dir string
}

func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Discover returns the work tree enclosing dir.
func Discover(ctx context.Context, dir string) (*Repository, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, fmt.Errorf("%w: git not installed", ErrNotRepository)
	}
	top, err := NewRepository(dir).Run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRepository, dir)
	}
	return NewRepository(strings.TrimSpace(top)), nil
}

func (r *Repository) Dir() string {
	return r.dir
}

// Run executes git against this repository and returns stdout. Stderr is
// folded into the error on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// RepoDetails reports the origin URL, the checked-out branch and the HEAD
// commit. A repository without an origin remote yields an empty URL; a
// detached HEAD yields the branch "HEAD".
func (r *Repository) RepoDetails(ctx context.Context) (models.GitInfo, error) {
	var info models.GitInfo

	commit, err := r.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return info, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	info.CommitID = strings.TrimSpace(commit)

	branch, err := r.Run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return info, fmt.Errorf("failed to resolve active branch: %w", err)
	}
	info.ActiveBranch = strings.TrimSpace(branch)

	if url, err := r.Run(ctx, "remote", "get-url", "origin"); err == nil {
		info.RemoteURL = strings.TrimSpace(url)
	}
	return info, nil
}

// WriteDiff writes the uncommitted changes against HEAD to path.
func (r *Repository) WriteDiff(ctx context.Context, path string) error {
	diff, err := r.Run(ctx, "diff", "HEAD")
	if err != nil {
		return fmt.Errorf("failed to diff working tree: %w", err)
	}
	if err := os.WriteFile(path, []byte(diff), 0o644); err != nil {
		return fmt.Errorf("failed to write diff: %w", err)
	}
	return nil
}
