// Package fake provides an in-memory vcs.Repository, with remotes living in
// a shared in-memory Network. It models commits as full file snapshots,
// which is enough to exercise commit, fast-forward, three-way merge,
// conflicts and push rejection without touching the disk.
package fake

import (
	"context"
	"crypto/sha1" // #nosec
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/silvadanilo/keep-git-in-sync/pkg/vcs"
)

// DefaultBranch is the branch fake repositories are created on
const DefaultBranch = "master"

var seq uint64

// Commit is an immutable snapshot.
type Commit struct {
	Hash    vcs.Hash
	Parents []vcs.Hash
	Message string
	Files   map[string]string
}

func newCommit(parents []vcs.Hash, message string, files map[string]string) *Commit {
	h := sha1.New() // #nosec
	fmt.Fprintf(h, "%d\x00%s\x00", atomic.AddUint64(&seq, 1), message)
	for _, p := range parents {
		fmt.Fprintf(h, "%s\x00", p)
	}
	for _, name := range sortedKeys(files) {
		fmt.Fprintf(h, "%s\x00%s\x00", name, files[name])
	}

	return &Commit{
		Hash:    vcs.Hash(hex.EncodeToString(h.Sum(nil))),
		Parents: parents,
		Message: message,
		Files:   copyFiles(files),
	}
}

// Network maps urls to in-memory remotes.
type Network struct {
	mu      sync.Mutex
	remotes map[string]*Remote
}

// NewNetwork creates an empty Network
func NewNetwork() *Network {
	return &Network{remotes: make(map[string]*Remote)}
}

// Remote returns the remote served at url, creating it if needed
func (n *Network) Remote(url string) *Remote {
	n.mu.Lock()
	defer n.mu.Unlock()
	r, ok := n.remotes[url]
	if !ok {
		r = &Remote{commits: make(map[vcs.Hash]*Commit), branches: make(map[string]vcs.Hash)}
		n.remotes[url] = r
	}
	return r
}

func (n *Network) lookup(url string) (*Remote, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	r, ok := n.remotes[url]
	return r, ok
}

// Remote is a bare in-memory repository.
type Remote struct {
	mu       sync.Mutex
	commits  map[vcs.Hash]*Commit
	branches map[string]vcs.Hash
	offline  bool
	pushes   int
}

// SetOffline makes every fetch and push against this remote fail
func (r *Remote) SetOffline(offline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offline = offline
}

// Tip returns the commit branch points to on the remote
func (r *Remote) Tip(branch string) vcs.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.branches[branch]
}

// Pushes counts the successful pushes received
func (r *Remote) Pushes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pushes
}

// Repo is an in-memory non-bare repository.
type Repo struct {
	mu        sync.Mutex
	root      string
	branch    string
	network   *Network
	commits   map[vcs.Hash]*Commit
	refs      map[string]vcs.Hash
	remotes   map[string]string
	index     map[string]string
	worktree  map[string]string
	nested    []string
	identity  bool
	mergeHead vcs.Hash
	failures  map[string]error
	calls     []string
}

// New creates an empty repository rooted at root, with a commit identity.
func New(root string, network *Network) *Repo {
	if network == nil {
		network = NewNetwork()
	}
	return &Repo{
		root:     root,
		branch:   DefaultBranch,
		network:  network,
		commits:  make(map[vcs.Hash]*Commit),
		refs:     make(map[string]vcs.Hash),
		remotes:  make(map[string]string),
		index:    make(map[string]string),
		worktree: make(map[string]string),
		identity: true,
		failures: make(map[string]error),
	}
}

// Clone creates a repository tracking branch from the remote at url.
func Clone(root string, network *Network, remote, url, branch string) (*Repo, error) {
	r := New(root, network)
	r.branch = branch
	ctx := context.Background()
	if err := r.EnsureRemote(ctx, remote, url); err != nil {
		return nil, err
	}

	tip, err := r.Fetch(ctx, remote, branch)
	if err != nil {
		return nil, err
	}

	if !tip.IsZero() {
		r.checkout(tip)
	}

	return r, nil
}

// Seed creates a root commit out of files and checks it out.
func (r *Repo) Seed(files map[string]string) vcs.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := newCommit(nil, "initial commit", files)
	r.commits[c.Hash] = c
	r.checkout(c.Hash)
	return c.Hash
}

// Checkout switches to branch, creating it at the current commit when it
// doesn't exist
func (r *Repo) Checkout(branch string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	head := r.refs[r.branchRef()]
	r.branch = branch
	if _, ok := r.refs[r.branchRef()]; !ok && !head.IsZero() {
		r.refs[r.branchRef()] = head
	}
	if tip := r.refs[r.branchRef()]; !tip.IsZero() {
		r.checkout(tip)
	}
}

// WriteFile changes a working tree file
func (r *Repo) WriteFile(name, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.worktree[name] = content
}

// RemoveFile deletes a working tree file
func (r *Repo) RemoveFile(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.worktree, name)
}

// File reads a working tree file
func (r *Repo) File(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	content, ok := r.worktree[name]
	return content, ok
}

// AddNested declares a nested repository (submodule) at dir
func (r *Repo) AddNested(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nested = append(r.nested, dir)
}

// SetIdentity toggles the configured commit identity
func (r *Repo) SetIdentity(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identity = ok
}

// FailOn makes the named operation (as recorded by Calls) return err
func (r *Repo) FailOn(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failures, op)
		return
	}
	r.failures[op] = err
}

// AbortMerge clears a conflicted merge, restoring HEAD's files
func (r *Repo) AbortMerge() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mergeHead = ""
	if head := r.refs[r.branchRef()]; !head.IsZero() {
		r.checkout(head)
	}
}

// ResolveMerge commits the working tree as the conclusion of a conflicted
// merge, the way a user would after fixing the conflict markers
func (r *Repo) ResolveMerge(message string) vcs.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	head := r.refs[r.branchRef()]
	c := newCommit([]vcs.Hash{head, r.mergeHead}, message, r.worktree)
	r.commits[c.Hash] = c
	r.mergeHead = ""
	r.checkout(c.Hash)
	return c.Hash
}

// Calls returns the names of the operations invoked so far
func (r *Repo) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// CommitObject returns a known commit
func (r *Repo) CommitObject(h vcs.Hash) (*Commit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.commits[h]
	return c, ok
}

// Root implements vcs.Repository
func (r *Repo) Root() string {
	return r.root
}

// Status implements vcs.Repository
func (r *Repo) Status(ctx context.Context, opts vcs.StatusOptions) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("status"); err != nil {
		return nil, err
	}

	head := map[string]string{}
	if c, ok := r.commits[r.refs[r.branchRef()]]; ok {
		head = c.Files
	}

	var changed []string
	for _, name := range sortedKeys(union(head, r.index, r.worktree)) {
		if opts.ExcludeSubmodules && r.isNested(name) {
			continue
		}

		h, inHead := head[name]
		i, inIndex := r.index[name]
		w, inTree := r.worktree[name]
		tracked := inHead || inIndex
		if !tracked && !opts.IncludeUntracked {
			continue
		}

		if inHead != inIndex || inIndex != inTree || h != i || i != w {
			changed = append(changed, name)
		}
	}

	return changed, nil
}

// StageAll implements vcs.Repository
func (r *Repo) StageAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("stage"); err != nil {
		return err
	}
	r.index = copyFiles(r.worktree)
	return nil
}

// Commit implements vcs.Repository
func (r *Repo) Commit(ctx context.Context, message string) (vcs.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("commit"); err != nil {
		return "", fmt.Errorf("%w: %v", vcs.ErrObjectWrite, err)
	}

	if !r.identity {
		return "", vcs.ErrIdentityMissing
	}

	head := r.refs[r.branchRef()]
	if head.IsZero() {
		return "", vcs.ErrNoParent
	}

	c := newCommit([]vcs.Hash{head}, message, r.index)
	r.commits[c.Hash] = c
	r.refs[r.branchRef()] = c.Hash
	return c.Hash, nil
}

// Head implements vcs.Repository
func (r *Repo) Head(ctx context.Context) (vcs.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	head := r.refs[r.branchRef()]
	if head.IsZero() {
		return "", vcs.ErrNoParent
	}
	return head, nil
}

// Branch implements vcs.Repository
func (r *Repo) Branch(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.branch, nil
}

// EnsureRemote implements vcs.Repository
func (r *Repo) EnsureRemote(ctx context.Context, name, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("ensure-remote"); err != nil {
		return err
	}

	if _, ok := r.remotes[name]; ok {
		return nil
	}

	if url == "" {
		return fmt.Errorf("%w: remote %q doesn't exist and no url was provided", vcs.ErrRemoteMisconfigured, name)
	}

	r.remotes[name] = url
	return nil
}

// Fetch implements vcs.Repository
func (r *Repo) Fetch(ctx context.Context, remote, branch string) (vcs.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("fetch"); err != nil {
		return "", fmt.Errorf("%w: %v", vcs.ErrNetwork, err)
	}

	rem, err := r.dial(remote)
	if err != nil {
		return "", err
	}

	rem.mu.Lock()
	defer rem.mu.Unlock()
	for h, c := range rem.commits {
		r.commits[h] = c
	}

	tip := rem.branches[branch]
	ref := fmt.Sprintf("refs/remotes/%s/%s", remote, branch)
	if tip.IsZero() {
		delete(r.refs, ref)
	} else {
		r.refs[ref] = tip
	}

	return tip, nil
}

// MergeAnalysis implements vcs.Repository
func (r *Repo) MergeAnalysis(ctx context.Context, local, remote vcs.Hash) (vcs.MergeAnalysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "analysis")

	switch {
	case remote.IsZero() || local == remote || r.isAncestor(remote, local):
		return vcs.UpToDate, nil
	case local.IsZero() || r.isAncestor(local, remote):
		return vcs.FastForward, nil
	case r.mergeBase(local, remote).IsZero():
		return vcs.Unmergeable, nil
	}

	return vcs.Normal, nil
}

// FastForward implements vcs.Repository
func (r *Repo) FastForward(ctx context.Context, tip vcs.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("fast-forward"); err != nil {
		return err
	}

	if _, ok := r.commits[tip]; !ok {
		return fmt.Errorf("unknown commit %s", tip)
	}

	r.checkout(tip)
	return nil
}

// Merge implements vcs.Repository
func (r *Repo) Merge(ctx context.Context, local, remote vcs.Hash, message string) (vcs.MergeOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("merge"); err != nil {
		return vcs.MergeOutcome{}, err
	}

	ours, ok := r.commits[local]
	if !ok {
		return vcs.MergeOutcome{}, fmt.Errorf("unknown commit %s", local)
	}
	theirs, ok := r.commits[remote]
	if !ok {
		return vcs.MergeOutcome{}, fmt.Errorf("unknown commit %s", remote)
	}

	base := map[string]string{}
	if c, ok := r.commits[r.mergeBase(local, remote)]; ok {
		base = c.Files
	}

	merged, conflicts := threeWay(base, ours.Files, theirs.Files, string(remote))
	if len(conflicts) > 0 {
		r.worktree = merged
		r.mergeHead = remote
		return vcs.MergeOutcome{Conflicts: conflicts}, nil
	}

	c := newCommit([]vcs.Hash{local, remote}, message, merged)
	r.commits[c.Hash] = c
	r.checkout(c.Hash)
	return vcs.MergeOutcome{Commit: c.Hash}, nil
}

// MergeInProgress implements vcs.Repository
func (r *Repo) MergeInProgress(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.mergeHead.IsZero(), nil
}

// Push implements vcs.Repository
func (r *Repo) Push(ctx context.Context, remote, refspec string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("push"); err != nil {
		return fmt.Errorf("%w: %v", vcs.ErrNetwork, err)
	}

	parts := strings.SplitN(strings.TrimPrefix(refspec, "+"), ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid refspec %q", refspec)
	}
	src, dst := r.refs[parts[0]], strings.TrimPrefix(parts[1], "refs/heads/")
	if src.IsZero() {
		return fmt.Errorf("nothing to push at %s", parts[0])
	}

	rem, err := r.dial(remote)
	if err != nil {
		return err
	}

	rem.mu.Lock()
	defer rem.mu.Unlock()
	current := rem.branches[dst]
	if current == src {
		return nil
	}
	if !current.IsZero() && !r.isAncestor(current, src) {
		return fmt.Errorf("%w: %s", vcs.ErrNonFastForwardRejected, dst)
	}

	for h, c := range r.commits {
		rem.commits[h] = c
	}
	rem.branches[dst] = src
	rem.pushes++
	return nil
}

func (r *Repo) enter(op string) error {
	r.calls = append(r.calls, op)
	return r.failures[op]
}

func (r *Repo) dial(remote string) (*Remote, error) {
	url, ok := r.remotes[remote]
	if !ok {
		return nil, fmt.Errorf("%w: no remote named %q", vcs.ErrRemoteMisconfigured, remote)
	}

	rem, ok := r.network.lookup(url)
	if !ok {
		return nil, fmt.Errorf("%w: %s: repository not found", vcs.ErrNetwork, url)
	}

	rem.mu.Lock()
	offline := rem.offline
	rem.mu.Unlock()
	if offline {
		return nil, fmt.Errorf("%w: %s: connection refused", vcs.ErrNetwork, url)
	}

	return rem, nil
}

func (r *Repo) branchRef() string {
	return "refs/heads/" + r.branch
}

func (r *Repo) checkout(h vcs.Hash) {
	r.refs[r.branchRef()] = h
	files := r.commits[h].Files
	r.index = copyFiles(files)
	r.worktree = copyFiles(files)
}

func (r *Repo) isNested(name string) bool {
	for _, dir := range r.nested {
		if name == dir || strings.HasPrefix(name, dir+"/") {
			return true
		}
	}
	return false
}

// ancestors returns h and all its ancestors with their distance to h
func (r *Repo) ancestors(h vcs.Hash) map[vcs.Hash]int {
	seen := map[vcs.Hash]int{}
	queue := []vcs.Hash{h}
	seen[h] = 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		c, ok := r.commits[cur]
		if !ok {
			continue
		}
		for _, p := range c.Parents {
			if _, ok := seen[p]; !ok {
				seen[p] = seen[cur] + 1
				queue = append(queue, p)
			}
		}
	}
	return seen
}

func (r *Repo) isAncestor(ancestor, of vcs.Hash) bool {
	_, ok := r.ancestors(of)[ancestor]
	return ok
}

func (r *Repo) mergeBase(a, b vcs.Hash) vcs.Hash {
	fromA := r.ancestors(a)
	var best vcs.Hash
	bestDist := -1
	for h, dist := range r.ancestors(b) {
		if _, ok := fromA[h]; !ok {
			continue
		}
		if bestDist < 0 || dist < bestDist || (dist == bestDist && h < best) {
			best, bestDist = h, dist
		}
	}
	return best
}

func threeWay(base, ours, theirs map[string]string, theirName string) (map[string]string, []string) {
	merged := make(map[string]string)
	var conflicts []string

	for _, name := range sortedKeys(union(base, ours, theirs)) {
		b, inBase := base[name]
		o, inOurs := ours[name]
		t, inTheirs := theirs[name]

		switch {
		case inOurs == inTheirs && o == t:
			if inOurs {
				merged[name] = o
			}
		case inOurs == inBase && o == b:
			if inTheirs {
				merged[name] = t
			}
		case inTheirs == inBase && t == b:
			if inOurs {
				merged[name] = o
			}
		default:
			conflicts = append(conflicts, name)
			merged[name] = fmt.Sprintf("<<<<<<< HEAD\n%s=======\n%s>>>>>>> %s\n", o, t, theirName)
		}
	}

	return merged, conflicts
}

func union(maps ...map[string]string) map[string]string {
	all := make(map[string]string)
	for _, m := range maps {
		for k := range m {
			all[k] = ""
		}
	}
	return all
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyFiles(files map[string]string) map[string]string {
	c := make(map[string]string, len(files))
	for k, v := range files {
		c[k] = v
	}
	return c
}
