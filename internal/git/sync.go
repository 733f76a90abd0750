// Package git keeps local clones of an organization's repositories in step with the remote.
// Commands run through the git CLI; the resulting clones are inspected with go-git.
package git

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/naka-gawa/github-gitlog/internal/apperr"
	"github.com/naka-gawa/github-gitlog/internal/domain"
)

// DefaultBaseURL is the HTTPS prefix repositories are cloned from.
const DefaultBaseURL = "https://github.com"

const remoteName = "origin"

// Syncer brings a single repository clone to parity with its remote.
type Syncer interface {
	Sync(ctx context.Context, org, repo, localRoot string) (domain.SyncState, error)
}

// Synchronizer is the concrete implementation of the Syncer interface.
type Synchronizer struct {
	executor CommandExecutor
	baseURL  string
	token    string
	logger   *log.Logger
}

// NewSynchronizer creates a Synchronizer. An empty baseURL means DefaultBaseURL and an
// empty token clones anonymously.
func NewSynchronizer(executor CommandExecutor, baseURL, token string, logger *log.Logger) *Synchronizer {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Synchronizer{
		executor: executor,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		token:    token,
		logger:   logger,
	}
}

// Sync clones repo under localRoot when no local clone exists, otherwise fetches every
// remote branch. Fetching never merges or rewrites local history. A directory that is not
// a git repository is replaced by a fresh clone, and a clone that fails part way is removed
// so the next run starts over.
func (s *Synchronizer) Sync(ctx context.Context, org, repo, localRoot string) (domain.SyncState, error) {
	dir := filepath.Join(localRoot, repo)

	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		_, openErr := gogit.PlainOpen(dir)
		if openErr == nil {
			s.logger.Printf("  %s exists locally, fetching", repo)
			if err := s.fetch(ctx, dir); err != nil {
				return "", apperr.New(apperr.KindSync, "fetch "+repo, err)
			}
			return domain.SyncStateExisting, nil
		}
		if !errors.Is(openErr, gogit.ErrRepositoryNotExists) {
			return "", apperr.New(apperr.KindSync, "open "+repo, openErr)
		}
		s.logger.Printf("  %s is not a git repository, cloning again", dir)
		if err := os.RemoveAll(dir); err != nil {
			return "", apperr.New(apperr.KindSync, "sync "+repo, fmt.Errorf("failed to remove %s: %w", dir, err))
		}
	case err == nil:
		return "", apperr.Newf(apperr.KindSync, "sync "+repo, "%s exists and is not a directory", dir)
	case !errors.Is(err, os.ErrNotExist):
		return "", apperr.New(apperr.KindSync, "sync "+repo, err)
	}

	if err := os.MkdirAll(localRoot, 0o755); err != nil {
		return "", apperr.New(apperr.KindSync, "sync "+repo, fmt.Errorf("failed to create %s: %w", localRoot, err))
	}
	s.logger.Printf("  %s is new, cloning", repo)
	if err := s.clone(ctx, org, repo, dir); err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			s.logger.Printf("  failed to remove partial clone %s: %v", dir, rmErr)
		}
		return "", apperr.New(apperr.KindSync, "clone "+repo, err)
	}
	return domain.SyncStateNew, nil
}

func (s *Synchronizer) clone(ctx context.Context, org, repo, dir string) error {
	url := fmt.Sprintf("%s/%s/%s.git", s.baseURL, org, repo)
	if _, err := s.executor.Run(ctx, "", s.withAuth("clone", "--quiet", url, dir)...); err != nil {
		return err
	}

	branches, err := untrackedRemoteBranches(dir)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		s.logger.Printf("  %s has no commits yet", repo)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to inspect clone of %s: %w", repo, err)
	}

	for _, branch := range branches {
		s.logger.Printf("  tracking %s/%s", remoteName, branch)
		if _, err := s.executor.Run(ctx, dir, "branch", "--track", branch, remoteName+"/"+branch); err != nil {
			return err
		}
	}

	_, err = s.executor.Run(ctx, dir, s.withAuth("pull", "--all", "--quiet")...)
	return err
}

func (s *Synchronizer) fetch(ctx context.Context, dir string) error {
	_, err := s.executor.Run(ctx, dir, s.withAuth("fetch", "--all", "--quiet")...)
	return err
}

// withAuth prefixes args with a per-command authorization header so the token is never
// persisted in the clone's configuration.
func (s *Synchronizer) withAuth(args ...string) []string {
	if s.token == "" {
		return args
	}
	cred := base64.StdEncoding.EncodeToString([]byte("x-access-token:" + s.token))
	return append([]string{"-c", "http.extraHeader=Authorization: Basic " + cred}, args...)
}

// AuthSecrets returns the strings that must be redacted from command errors for token.
func AuthSecrets(token string) []string {
	if token == "" {
		return nil
	}
	return []string{token, base64.StdEncoding.EncodeToString([]byte("x-access-token:" + token))}
}

// untrackedRemoteBranches lists remote branches of the clone at dir that have no local
// branch yet, excluding the symbolic HEAD and the checked out default branch.
// It returns plumbing.ErrReferenceNotFound for a clone without commits.
func untrackedRemoteBranches(dir string) ([]string, error) {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if err != nil {
		return nil, err
	}

	local := map[string]bool{head.Name().Short(): true}
	branches, err := repo.Branches()
	if err != nil {
		return nil, err
	}
	if err := branches.ForEach(func(ref *plumbing.Reference) error {
		local[ref.Name().Short()] = true
		return nil
	}); err != nil {
		return nil, err
	}

	refs, err := repo.References()
	if err != nil {
		return nil, err
	}
	var untracked []string
	prefix := remoteName + "/"
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if !ref.Name().IsRemote() || ref.Type() == plumbing.SymbolicReference {
			return nil
		}
		short := ref.Name().Short()
		if !strings.HasPrefix(short, prefix) {
			return nil
		}
		branch := strings.TrimPrefix(short, prefix)
		if branch == "HEAD" || local[branch] {
			return nil
		}
		untracked = append(untracked, branch)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(untracked)
	return untracked, nil
}
