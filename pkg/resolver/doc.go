// Package resolver computes effective permission sets from role assignments.
// Resolution is the slow path behind a cache miss: it loads the user's active
// assignments, unions the cached-or-fetched bundle of each distinct role, and
// returns the result within a 150ms budget.
package resolver
