package gitsource

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/melih/bpimage/internal/core/ports"
	"github.com/moby/go-archive"
)

// Adapter implements ports.RepositorySource with go-git
type Adapter struct {
	logger *slog.Logger
}

var _ ports.RepositorySource = (*Adapter)(nil)

func NewAdapter(logger *slog.Logger) *Adapter {
	return &Adapter{logger: logger}
}

// Fetch clones url into dir, checks out ref when given and returns the
// working tree as an uncompressed tar stream without the .git directory.
func (a *Adapter) Fetch(ctx context.Context, url, ref, dir string) (io.ReadCloser, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create clone dir: %w", err)
	}

	a.logger.Info("cloning export repository", "url", url, "dir", dir, "ref", ref)
	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: url})
	if err != nil {
		return nil, fmt.Errorf("failed to clone repo: %w", err)
	}

	if ref != "" {
		if err := checkout(repo, ref); err != nil {
			return nil, err
		}
	}

	tar, err := archive.TarWithOptions(dir, &archive.TarOptions{
		ExcludePatterns: []string{".git"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create export tar: %w", err)
	}
	return tar, nil
}

// checkout resolves ref as a branch, tag or commit and checks it out.
func checkout(repo *git.Repository, ref string) error {
	hash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return fmt.Errorf("failed to resolve ref %q: %w", ref, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: *hash}); err != nil {
		return fmt.Errorf("git checkout failed: %w", err)
	}
	return nil
}
