// Package router maps filesystem change paths to the watched repository
// owning them.
package router

import (
	"path/filepath"
	"strings"

	"github.com/silvadanilo/keep-git-in-sync/pkg/event"
	"github.com/silvadanilo/keep-git-in-sync/pkg/vcs"
)

// Registry is the set of watched repositories
type Registry interface {
	Roots() []string
	Lookup(root string) (vcs.Repository, bool)
}

// Router routes changes to repositories
type Router struct {
	registry Registry
}

// New returns a Router over the registry's roots
func New(reg Registry) *Router {
	return &Router{registry: reg}
}

// Route returns the repository with the longest root containing the
// change path. Changes to repositories metadata never route.
func (r *Router) Route(change event.Change) (vcs.Repository, bool) {
	root, ok := r.Owner(change.Path)
	if !ok {
		return nil, false
	}
	return r.registry.Lookup(root)
}

// Owner returns the root owning path
func (r *Router) Owner(path string) (string, bool) {
	path = filepath.Clean(path)
	if IsMetadata(path) {
		return "", false
	}

	best := ""
	// roots are sorted, so equally long matches resolve to the first one
	for _, root := range r.registry.Roots() {
		if !contains(root, path) {
			continue
		}
		if len(root) > len(best) {
			best = root
		}
	}

	return best, best != ""
}

// IsMetadata tells whether any component of path is a repository
// metadata directory
func IsMetadata(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == vcs.MetadataDir {
			return true
		}
	}
	return false
}

// contains is a path component aware prefix test: /a/bc isn't under /a/b
func contains(root, path string) bool {
	if path == root {
		return true
	}
	if !strings.HasPrefix(path, root) {
		return false
	}
	return strings.HasSuffix(root, string(filepath.Separator)) ||
		path[len(root)] == filepath.Separator
}
