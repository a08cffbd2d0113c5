// Package git implements the vcs.Repository capability on local git
// checkouts.
//
// Reference, ancestry and transport operations (open, HEAD, identity, merge
// analysis, remotes, fetch and push) go through go-git. Working tree
// operations that go-git doesn't do faithfully (status with submodules
// ignored, "add -A", commits of the index, fast-forward checkouts and
// three-way merges with conflict markers) shell out to the git command,
// which must be in $PATH.
package git
