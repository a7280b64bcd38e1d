package utils

import "fmt"

// OffsetGroup is the algebra of the offsets carried on union-find links.
// Offsets combine commutatively, which holds for transform ids built from
// independent periodic generators.
type OffsetGroup interface {
	Identity() int
	Add(a, b int) int
	Inverse(id int) int
}

// OffsetUnionFind groups labels that are copies of one entity under a rigid
// transform. Each label x carries an offset relative to its parent p such
// that pos(x) = T[off](pos(p)). The root of every group is its smallest
// label.
type OffsetUnionFind struct {
	group  OffsetGroup
	parent map[int]int
	offset map[int]int
}

func NewOffsetUnionFind(group OffsetGroup) *OffsetUnionFind {
	return &OffsetUnionFind{
		group:  group,
		parent: make(map[int]int),
		offset: make(map[int]int),
	}
}

// Add registers x as its own group if it is not known yet.
func (uf *OffsetUnionFind) Add(x int) {
	if _, ok := uf.parent[x]; !ok {
		uf.parent[x] = x
		uf.offset[x] = uf.group.Identity()
	}
}

func (uf *OffsetUnionFind) Len() int { return len(uf.parent) }

// Find returns the root of x and the offset with pos(x) = T[off](pos(root)).
func (uf *OffsetUnionFind) Find(x int) (root, off int) {
	uf.Add(x)
	p := uf.parent[x]
	if p == x {
		return x, uf.offset[x]
	}
	root, pOff := uf.Find(p)
	off = uf.group.Add(uf.offset[x], pOff)
	uf.parent[x], uf.offset[x] = root, off
	return
}

// Union records pos(a) = T[w](pos(b)). A link that contradicts the offsets
// already known for the group returns an error.
func (uf *OffsetUnionFind) Union(a, b, w int) error {
	ra, oa := uf.Find(a)
	rb, ob := uf.Find(b)
	g := uf.group
	// pos(ra) = T[-oa + w + ob](pos(rb))
	rel := g.Add(g.Add(g.Inverse(oa), w), ob)
	switch {
	case ra == rb:
		if rel != g.Identity() {
			return fmt.Errorf("inconsistent transform linking %d and %d", a, b)
		}
	case ra < rb:
		uf.parent[rb], uf.offset[rb] = ra, g.Inverse(rel)
	default:
		uf.parent[ra], uf.offset[ra] = rb, rel
	}
	return nil
}

// Groups returns the members of every group with more than one label,
// keyed by root.
func (uf *OffsetUnionFind) Groups() map[int][]int {
	groups := make(map[int][]int)
	for x := range uf.parent {
		root, _ := uf.Find(x)
		groups[root] = append(groups[root], x)
	}
	for root, members := range groups {
		if len(members) < 2 {
			delete(groups, root)
		}
	}
	return groups
}
