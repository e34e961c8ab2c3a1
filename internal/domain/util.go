package domain

import "sort"

// sortedUnique returns the unique elements of xs sorted lexically, used
// wherever the spec requires deterministic sibling ordering (§4.2 "siblings
// in name order").
func sortedUnique(xs []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	sort.Strings(out)
	return out
}
