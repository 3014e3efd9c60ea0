// Package filter implements include/exclude glob filtering over the
// manifest's file list, following a standard include/exclude composition
// law: a path is kept if it matches some include pattern (or no include
// patterns are given) and matches no exclude pattern. Shell-glob semantics
// (*, ?, [...]) are required, and no glob library (gobwas/glob,
// bmatcuk/doublestar, or similar) appears anywhere in the pack this module
// draws on, so path/filepath.Match is the grounded choice: it implements
// exactly this grammar with no invented dependency.
package filter

import "path/filepath"

// Set holds the include and exclude pattern lists for one filtering pass.
type Set struct {
	Include []string
	Exclude []string
}

// Keep implements the composition law verbatim:
// keep(p) = (I = ∅ ∨ ∃i∈I: match(i,p)) ∧ ¬∃e∈E: match(e,p)
func (s Set) Keep(path string) bool {
	if len(s.Include) > 0 && !anyMatch(s.Include, path) {
		return false
	}
	if anyMatch(s.Exclude, path) {
		return false
	}
	return true
}

func anyMatch(patterns []string, path string) bool {
	for _, p := range patterns {
		if ok, err := filepath.Match(p, path); err == nil && ok {
			return true
		}
	}
	return false
}
