package git

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/github-gitlog/internal/apperr"
	"github.com/naka-gawa/github-gitlog/internal/domain"
)

const fakeHash = "0123456789abcdef0123456789abcdef01234567"

// fakeClone lays out what `git clone` leaves behind: a checked out main branch and
// remote-tracking refs for every branch on origin.
func fakeClone(t *testing.T, dir string, remoteBranches ...string) {
	t.Helper()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	hash := plumbing.NewHash(fakeHash)
	require.NoError(t, repo.Storer.SetReference(plumbing.NewHashReference("refs/heads/main", hash)))
	require.NoError(t, repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, "refs/heads/main")))
	require.NoError(t, repo.Storer.SetReference(plumbing.NewSymbolicReference("refs/remotes/origin/HEAD", "refs/remotes/origin/main")))
	for _, b := range append([]string{"main"}, remoteBranches...) {
		require.NoError(t, repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewRemoteReferenceName("origin", b), hash)))
	}
}

func newTestSynchronizer(executor CommandExecutor, token string) *Synchronizer {
	return NewSynchronizer(executor, "https://example.test", token, log.New(io.Discard, "", 0))
}

// cloningExecutor returns a mock whose clone call creates a fake clone at the target path.
func cloningExecutor(t *testing.T, remoteBranches ...string) *MockCommandExecutor {
	executor := NewMockCommandExecutor()
	executor.RunFn = func(ctx context.Context, dir string, args ...string) (string, error) {
		if op, rest := operationOf(args); op == "clone" {
			fakeClone(t, rest[len(rest)-1], remoteBranches...)
		}
		return "", nil
	}
	return executor
}

func TestSynchronizer_Sync_CloneWhenAbsent(t *testing.T) {
	root := t.TempDir()
	executor := cloningExecutor(t, "dev", "feature/login")
	syncer := newTestSynchronizer(executor, "s3cret")

	state, err := syncer.Sync(context.Background(), "acme", "alpha", root)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStateNew, state)
	assert.Equal(t, []string{"clone", "branch", "branch", "pull"}, executor.Operations())

	clone := executor.Calls[0]
	assert.Equal(t, "https://example.test/acme/alpha.git", clone.Args[len(clone.Args)-2])
	assert.Equal(t, filepath.Join(root, "alpha"), clone.Args[len(clone.Args)-1])
	assert.Equal(t, "-c", clone.Args[0])
	assert.True(t, strings.HasPrefix(clone.Args[1], "http.extraHeader=Authorization: Basic "))
	for _, a := range clone.Args {
		assert.NotContains(t, a, "s3cret", "token must not appear in plain text")
	}

	assert.Equal(t, []string{"branch", "--track", "dev", "origin/dev"}, executor.Calls[1].Args)
	assert.Equal(t, []string{"branch", "--track", "feature/login", "origin/feature/login"}, executor.Calls[2].Args)
	assert.Equal(t, filepath.Join(root, "alpha"), executor.Calls[3].Dir)
}

func TestSynchronizer_Sync_FetchWhenPresent(t *testing.T) {
	root := t.TempDir()
	fakeClone(t, filepath.Join(root, "beta"))
	executor := NewMockCommandExecutor()
	syncer := newTestSynchronizer(executor, "")

	state, err := syncer.Sync(context.Background(), "acme", "beta", root)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStateExisting, state)
	require.Len(t, executor.Calls, 1)
	assert.Equal(t, []string{"fetch", "--all", "--quiet"}, executor.Calls[0].Args)
	assert.Equal(t, filepath.Join(root, "beta"), executor.Calls[0].Dir)
}

func TestSynchronizer_Sync_Idempotent(t *testing.T) {
	root := t.TempDir()
	executor := cloningExecutor(t, "dev")
	syncer := newTestSynchronizer(executor, "tok")

	first, err := syncer.Sync(context.Background(), "acme", "alpha", root)
	require.NoError(t, err)
	second, err := syncer.Sync(context.Background(), "acme", "alpha", root)
	require.NoError(t, err)
	third, err := syncer.Sync(context.Background(), "acme", "alpha", root)
	require.NoError(t, err)

	assert.Equal(t, domain.SyncStateNew, first)
	assert.Equal(t, domain.SyncStateExisting, second)
	assert.Equal(t, domain.SyncStateExisting, third)
	assert.Equal(t, []string{"clone", "branch", "pull", "fetch", "fetch"}, executor.Operations())

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no duplicate local directory")
}

func TestSynchronizer_Sync_SkipsBranchesAlreadyTracked(t *testing.T) {
	root := t.TempDir()
	executor := NewMockCommandExecutor()
	executor.RunFn = func(ctx context.Context, dir string, args ...string) (string, error) {
		if op, rest := operationOf(args); op == "clone" {
			target := rest[len(rest)-1]
			fakeClone(t, target, "dev", "release")
			repo, err := gogit.PlainOpen(target)
			require.NoError(t, err)
			require.NoError(t, repo.Storer.SetReference(plumbing.NewHashReference("refs/heads/dev", plumbing.NewHash(fakeHash))))
		}
		return "", nil
	}

	_, err := newTestSynchronizer(executor, "").Sync(context.Background(), "acme", "alpha", root)
	require.NoError(t, err)
	assert.Equal(t, []string{"clone", "branch", "pull"}, executor.Operations())
	assert.Equal(t, []string{"branch", "--track", "release", "origin/release"}, executor.Calls[1].Args)
}

func TestSynchronizer_Sync_EmptyRemote(t *testing.T) {
	root := t.TempDir()
	executor := NewMockCommandExecutor()
	executor.RunFn = func(ctx context.Context, dir string, args ...string) (string, error) {
		if op, rest := operationOf(args); op == "clone" {
			_, err := gogit.PlainInit(rest[len(rest)-1], false)
			require.NoError(t, err)
		}
		return "", nil
	}

	state, err := newTestSynchronizer(executor, "").Sync(context.Background(), "acme", "empty", root)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStateNew, state)
	assert.Equal(t, []string{"clone"}, executor.Operations())
}

func TestSynchronizer_Sync_Errors(t *testing.T) {
	testCases := []struct {
		name        string
		prepare     func(t *testing.T, root string)
		failOn      string
		expectedMsg string
	}{
		{
			name:        "clone failure is a sync error",
			failOn:      "clone",
			expectedMsg: "clone alpha",
		},
		{
			name: "fetch failure is a sync error",
			prepare: func(t *testing.T, root string) {
				fakeClone(t, filepath.Join(root, "alpha"))
			},
			failOn:      "fetch",
			expectedMsg: "fetch alpha",
		},
		{
			name: "a file in place of the clone is a sync error",
			prepare: func(t *testing.T, root string) {
				require.NoError(t, os.WriteFile(filepath.Join(root, "alpha"), []byte("x"), 0o644))
			},
			expectedMsg: "is not a directory",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			if tc.prepare != nil {
				tc.prepare(t, root)
			}
			executor := NewMockCommandExecutor()
			executor.RunFn = func(ctx context.Context, dir string, args ...string) (string, error) {
				if op, _ := operationOf(args); op == tc.failOn {
					return "", &GitError{Operation: op, Err: ErrGitOperationFailed, Output: "fatal: repository not found"}
				}
				return "", nil
			}

			_, err := newTestSynchronizer(executor, "").Sync(context.Background(), "acme", "alpha", root)
			require.Error(t, err)
			assert.Equal(t, apperr.KindSync, apperr.KindOf(err))
			assert.Contains(t, err.Error(), tc.expectedMsg)
			if tc.failOn != "" {
				assert.True(t, errors.Is(err, ErrGitOperationFailed))
			}
		})
	}
}

func TestSynchronizer_Sync_ReclonesDirectoryWithoutRepository(t *testing.T) {
	root := t.TempDir()
	junk := filepath.Join(root, "beta", "junk")
	require.NoError(t, os.MkdirAll(filepath.Dir(junk), 0o755))
	require.NoError(t, os.WriteFile(junk, []byte("x"), 0o644))
	executor := cloningExecutor(t)

	state, err := newTestSynchronizer(executor, "").Sync(context.Background(), "acme", "beta", root)

	require.NoError(t, err)
	assert.Equal(t, domain.SyncStateNew, state)
	assert.Equal(t, []string{"clone", "pull"}, executor.Operations())
	assert.NoFileExists(t, junk)
	_, err = gogit.PlainOpen(filepath.Join(root, "beta"))
	assert.NoError(t, err)
}

func TestSynchronizer_Sync_FailedCloneIsRemoved(t *testing.T) {
	testCases := []struct {
		name   string
		failOn string
	}{
		{name: "clone interrupted after writing files", failOn: "clone"},
		{name: "branch tracking fails", failOn: "branch"},
		{name: "pull fails", failOn: "pull"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			executor := NewMockCommandExecutor()
			executor.RunFn = func(ctx context.Context, dir string, args ...string) (string, error) {
				op, rest := operationOf(args)
				if op == "clone" {
					fakeClone(t, rest[len(rest)-1], "dev")
				}
				if op == tc.failOn {
					return "", &GitError{Operation: op, Err: ErrGitOperationFailed}
				}
				return "", nil
			}
			syncer := newTestSynchronizer(executor, "")

			_, err := syncer.Sync(context.Background(), "acme", "alpha", root)
			require.Error(t, err)
			assert.Equal(t, apperr.KindSync, apperr.KindOf(err))
			assert.NoDirExists(t, filepath.Join(root, "alpha"))

			// The next run starts from a clean clone.
			executor.RunFn = func(ctx context.Context, dir string, args ...string) (string, error) {
				if op, rest := operationOf(args); op == "clone" {
					fakeClone(t, rest[len(rest)-1], "dev")
				}
				return "", nil
			}
			state, err := syncer.Sync(context.Background(), "acme", "alpha", root)
			require.NoError(t, err)
			assert.Equal(t, domain.SyncStateNew, state)
		})
	}
}

// runGit runs the git CLI in dir with a fixed identity.
func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	base := []string{"-c", "user.name=jane doe", "-c", "user.email=jane@example.com", "-c", "commit.gpgsign=false", "-c", "init.defaultBranch=main"}
	cmd := exec.Command("git", append(base, args...)...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

func TestSynchronizer_Sync_LocalRemote(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not installed")
	}
	base := t.TempDir()
	work := filepath.Join(base, "work")
	require.NoError(t, os.MkdirAll(work, 0o755))
	runGit(t, work, "init", "--quiet")
	runGit(t, work, "commit", "--quiet", "--allow-empty", "-m", "initial commit")
	runGit(t, work, "checkout", "--quiet", "-b", "dev")
	runGit(t, work, "commit", "--quiet", "--allow-empty", "-m", "dev work")
	runGit(t, work, "checkout", "--quiet", "main")
	remotes := filepath.Join(base, "remote", "acme")
	require.NoError(t, os.MkdirAll(remotes, 0o755))
	runGit(t, base, "clone", "--quiet", "--bare", work, filepath.Join(remotes, "alpha.git"))

	root := filepath.Join(base, "repos", "acme")
	syncer := NewSynchronizer(NewExecExecutor(), "file://"+filepath.Join(base, "remote"), "", log.New(io.Discard, "", 0))

	state, err := syncer.Sync(context.Background(), "acme", "alpha", root)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStateNew, state)

	repo, err := gogit.PlainOpen(filepath.Join(root, "alpha"))
	require.NoError(t, err)
	branches, err := repo.Branches()
	require.NoError(t, err)
	var local []string
	require.NoError(t, branches.ForEach(func(ref *plumbing.Reference) error {
		local = append(local, ref.Name().Short())
		return nil
	}))
	assert.ElementsMatch(t, []string{"main", "dev"}, local)

	runGit(t, work, "commit", "--quiet", "--allow-empty", "-m", "later work")
	runGit(t, work, "push", "--quiet", filepath.Join(remotes, "alpha.git"), "main")

	state, err = syncer.Sync(context.Background(), "acme", "alpha", root)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStateExisting, state)
	workRepo, err := gogit.PlainOpen(work)
	require.NoError(t, err)
	workHead, err := workRepo.Head()
	require.NoError(t, err)
	fetched, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", "main"), true)
	require.NoError(t, err)
	assert.Equal(t, workHead.Hash(), fetched.Hash(), "fetch brings in new remote commits")
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
