// Package registry holds the set of watched repositories, opened once at
// startup from the configured directory list.
package registry

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"github.com/silvadanilo/keep-git-in-sync/pkg/vcs"
)

var appFs = afero.NewOsFs()

type logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Entry is a watched repository
type Entry struct {
	Root string
	Repo vcs.Repository
}

// Registry maps working tree roots to opened repositories. It is built once
// and read only afterwards, so it is safe for concurrent use.
type Registry struct {
	entries map[string]Entry
	roots   []string
	skipped error
}

// New opens every candidate path that is an existing directory holding a
// repository. Other paths are logged and skipped.
func New(log logger, opener vcs.Opener, paths []string) *Registry {
	r := &Registry{entries: make(map[string]Entry)}

	for _, path := range paths {
		root, err := filepath.Abs(filepath.Clean(path))
		if err != nil {
			r.skip(log, path, err)
			continue
		}

		if _, ok := r.entries[root]; ok {
			continue
		}

		isDir, err := afero.IsDir(appFs, root)
		if err != nil || !isDir {
			r.skip(log, root, fmt.Errorf("not a directory"))
			continue
		}

		repo, err := opener.Open(root)
		if err != nil {
			r.skip(log, root, err)
			continue
		}

		r.entries[root] = Entry{Root: root, Repo: repo}
		r.roots = append(r.roots, root)
		log.Infof("Watching repository %s", root)
	}

	sort.Strings(r.roots)
	return r
}

func (r *Registry) skip(log logger, path string, err error) {
	log.Warnf("Ignoring %s: %v", path, err)
	r.skipped = multierror.Append(r.skipped, fmt.Errorf("%s: %v", path, err))
}

// Lookup returns the repository registered at root
func (r *Registry) Lookup(root string) (vcs.Repository, bool) {
	e, ok := r.entries[root]
	return e.Repo, ok
}

// Roots returns the registered roots, sorted
func (r *Registry) Roots() []string {
	return append([]string(nil), r.roots...)
}

// Entries returns the registered repositories, sorted by root
func (r *Registry) Entries() []Entry {
	entries := make([]Entry, 0, len(r.roots))
	for _, root := range r.roots {
		entries = append(entries, r.entries[root])
	}
	return entries
}

// Len returns the number of registered repositories
func (r *Registry) Len() int {
	return len(r.roots)
}

// Skipped aggregates the reasons candidate paths were dropped, or nil
func (r *Registry) Skipped() error {
	return r.skipped
}
