package git

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/silvadanilo/keep-git-in-sync/pkg/vcs"
)

var (
	// TimeoutCommands defines the max execution time for git commands
	TimeoutCommands = 60 * time.Second

	// MergeHeadFile is the file git keeps while a merge awaits resolution
	MergeHeadFile = "MERGE_HEAD"
)

var appFs = afero.NewOsFs()

type logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Opener opens local git checkouts as vcs.Repository
type Opener struct {
	Logger  logger
	Timeout time.Duration
}

// NewOpener instantiate a git repositories Opener. A zero timeout
// means TimeoutCommands.
func NewOpener(log logger, timeout time.Duration) *Opener {
	if timeout <= 0 {
		timeout = TimeoutCommands
	}
	return &Opener{
		Logger:  log,
		Timeout: timeout,
	}
}

// Open opens the non-bare repository whose working tree root is path.
func (o *Opener) Open(path string) (vcs.Repository, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't find %s absolute path", path)
	}

	repo, err := gogit.PlainOpen(root)
	if err != nil {
		return nil, errors.Wrapf(vcs.ErrNotRepository, "%s: %v", root, err)
	}

	if _, err = repo.Worktree(); err != nil {
		return nil, errors.Wrapf(vcs.ErrNotRepository, "%s: %v", root, err)
	}

	gitDir, err := resolveGitDir(root)
	if err != nil {
		return nil, errors.Wrapf(vcs.ErrNotRepository, "%s: %v", root, err)
	}

	o.Logger.Debugf("Opened git repository %s (git dir %s)", root, gitDir)

	return &Repository{
		logger:  o.Logger,
		root:    root,
		gitDir:  gitDir,
		timeout: o.Timeout,
	}, nil
}

// resolveGitDir follows "gitdir: <path>" files used by worktrees and submodules
func resolveGitDir(root string) (string, error) {
	dotgit := filepath.Join(root, vcs.MetadataDir)

	isDir, err := afero.IsDir(appFs, dotgit)
	if err != nil {
		return "", err
	}
	if isDir {
		return dotgit, nil
	}

	content, err := afero.ReadFile(appFs, dotgit)
	if err != nil {
		return "", err
	}

	line := strings.TrimSpace(string(content))
	if !strings.HasPrefix(line, "gitdir:") {
		return "", errors.Errorf("unexpected %s content", dotgit)
	}

	dir := strings.TrimSpace(strings.TrimPrefix(line, "gitdir:"))
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}

	return filepath.Clean(dir), nil
}

// Repository is a local git checkout. The go-git handle is re-opened for
// each operation, so objects and packs written by the git command in the
// meantime are always visible.
type Repository struct {
	logger  logger
	root    string
	gitDir  string
	timeout time.Duration
}

// Root returns the working tree absolute path
func (r *Repository) Root() string {
	return r.root
}

func (r *Repository) open() (*gogit.Repository, error) {
	repo, err := gogit.PlainOpen(r.root)
	if err != nil {
		return nil, errors.Wrapf(vcs.ErrNotRepository, "%s: %v", r.root, err)
	}
	return repo, nil
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// cmdError carries a failed git command output
type cmdError struct {
	args   []string
	err    error
	stdout string
	stderr string
}

func (e *cmdError) Error() string {
	return "git " + e.args[0] + " failed with code " + e.err.Error() + ": " +
		strings.TrimSpace(e.stderr+" "+e.stdout)
}

func (e *cmdError) Unwrap() error {
	return e.err
}

// Git runs the git command in the working tree and returns its stdout
func (r *Repository) Git(ctx context.Context, args ...string) (string, error) {
	return r.gitEnv(ctx, nil, args...)
}

func (r *Repository) gitEnv(ctx context.Context, env []string, args ...string) (string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...) // #nosec
	cmd.Dir = r.root
	cmd.Env = append(os.Environ(),
		"GIT_DIR="+r.gitDir,
		"GIT_WORK_TREE="+r.root,
		"GIT_TERMINAL_PROMPT=0",
		"LC_ALL=C",
	)
	cmd.Env = append(cmd.Env, env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return stdout.String(), &cmdError{args: args, err: err, stdout: stdout.String(), stderr: stderr.String()}
	}

	return stdout.String(), nil
}

// Status lists the paths git status reports, in porcelain format.
func (r *Repository) Status(ctx context.Context, opts vcs.StatusOptions) ([]string, error) {
	untracked := "no"
	if opts.IncludeUntracked {
		untracked = "normal"
		if opts.RecurseUntrackedDirs {
			untracked = "all"
		}
	}

	submodules := "none"
	if opts.ExcludeSubmodules {
		submodules = "all"
	}

	out, err := r.Git(ctx, "status", "--porcelain", "-z",
		"--untracked-files="+untracked, "--ignore-submodules="+submodules)
	if err != nil {
		return nil, errors.Wrapf(err, "status of %s", r.root)
	}

	return parsePorcelain(out), nil
}

// parsePorcelain decodes "git status --porcelain -z" output. Renames and
// copies are followed by their source path, which we skip.
func parsePorcelain(out string) []string {
	var paths []string

	scanner := bufio.NewScanner(strings.NewReader(out))
	scanner.Split(splitNul)
	skipNext := false
	for scanner.Scan() {
		entry := scanner.Text()
		if skipNext {
			skipNext = false
			continue
		}

		if len(entry) < 4 {
			continue
		}

		if entry[0] == 'R' || entry[0] == 'C' {
			skipNext = true
		}
		paths = append(paths, entry[3:])
	}

	return paths
}

func splitNul(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// StageAll is "git add -A": new, modified and deleted files all go to the index
func (r *Repository) StageAll(ctx context.Context) error {
	if _, err := r.Git(ctx, "add", "-A"); err != nil {
		return errors.Wrapf(vcs.ErrObjectWrite, "staging %s: %v", r.root, err)
	}
	return nil
}

// MergeInProgress tells whether git holds a MERGE_HEAD
func (r *Repository) MergeInProgress(ctx context.Context) (bool, error) {
	exists, err := afero.Exists(appFs, filepath.Join(r.gitDir, MergeHeadFile))
	if err != nil {
		return false, errors.Wrapf(err, "checking %s for a pending merge", r.root)
	}
	return exists, nil
}
