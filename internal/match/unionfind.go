package match

import "sort"

// UnionFind groups names transitively: if A~B and B~C then A, B, C land
// in one group even when sim(A, C) falls below the threshold. Chaining
// through an intermediate near-duplicate is an explicit policy of the
// dedup engine, covered by its own test.
type UnionFind struct {
	parent map[string]string
}

// NewUnionFind creates an empty union-find over strings.
func NewUnionFind() *UnionFind {
	return &UnionFind{parent: make(map[string]string)}
}

// Add registers x as its own group if unseen.
func (u *UnionFind) Add(x string) {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
	}
}

// Find returns the representative of x's group, adding x if unseen.
// Path compression keeps lookups near-constant.
func (u *UnionFind) Find(x string) string {
	u.Add(x)
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[x] != root {
		u.parent[x], x = root, u.parent[x]
	}
	return root
}

// Union merges the groups of a and b.
func (u *UnionFind) Union(a, b string) {
	ra, rb := u.Find(a), u.Find(b)
	if ra == rb {
		return
	}
	// Smaller representative wins so grouping is independent of union
	// order; group determinism must not depend on call sequence.
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}

// Groups returns every group as a sorted slice of members, keyed by
// representative.
func (u *UnionFind) Groups() map[string][]string {
	groups := make(map[string][]string)
	for x := range u.parent {
		root := u.Find(x)
		groups[root] = append(groups[root], x)
	}
	for root := range groups {
		sort.Strings(groups[root])
	}
	return groups
}
