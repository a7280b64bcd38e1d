package synctools

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/notargets/meshcomm/addressing"
	"github.com/notargets/meshcomm/distribute"
	"github.com/notargets/meshcomm/mesh"
	"github.com/notargets/meshcomm/parallel"
	"github.com/notargets/meshcomm/transform"
	"github.com/notargets/meshcomm/utils"
)

// groupKey names a coupled entity the same way on every rank: by its
// master point, or for an edge by the masters of both end points and the
// transform between their frames.
type groupKey struct {
	M0, M1, Rel int
}

func (k groupKey) compare(o groupKey) int {
	return cmp.Or(cmp.Compare(k.M0, o.M0), cmp.Compare(k.M1, o.M1), cmp.Compare(k.Rel, o.Rel))
}

// member is one copy of a group: the entity label on rank Proc, seen from
// the group's frame through the transform Off.
type member struct {
	Proc, Entity, Off int
}

// Groups numbers the coupled copies of one entity kind. Each group lives
// in a slot of a directory rank, the rank owning the group's master point
// in a block split of the global points. Synchronisation gathers every
// copy into the slot, folding them in the master frame, and scatters the
// result back.
type Groups struct {
	// Local entities on coupled patches, ascending
	Entities []int
	// Compact position of every entry of Entities in Map, -1 for entities
	// without other copies
	Compact []int
	Map     *distribute.Map
	// Number of groups over all ranks
	NGlobal int

	index map[int]int // entity label -> position in Entities
	key   []groupKey
	off   []int // transform from the group frame to the local copy
	dir   []int
	slot  []int

	members [][]member // per slot held here
	set     *transform.Set
}

// Index returns the position of entity in Entities, -1 if not coupled.
func (g *Groups) Index(entity int) int {
	if k, ok := g.index[entity]; ok {
		return k
	}
	return -1
}

// NSlots is the number of groups this rank is directory of.
func (g *Groups) NSlots() int { return len(g.members) }

// Master returns the master point label of the group of a local entity
// (the first end point for edges) and the transform id from the master
// frame to the local copy.
func (g *Groups) Master(entity int) (master, off int) {
	k := g.Index(entity)
	if k < 0 {
		return -1, -1
	}
	return g.key[k].M0, g.off[k]
}

type copyMsg struct {
	Key         groupKey
	Entity, Off int
}

func newGroups(c parallel.Comm, m *mesh.Mesh, entities []int, keys []groupKey, offs []int) (*Groups, error) {
	var (
		me     = c.Rank()
		nProcs = c.Size()
		set    = transformSet(m)
		bm     = utils.NewBlockMap(nProcs, max(m.GlobalPointCount(), 1))
		send   = make([][]copyMsg, nProcs)
		g      = &Groups{
			Entities: entities,
			Compact:  make([]int, len(entities)),
			index:    make(map[int]int, len(entities)),
			key:      keys,
			off:      offs,
			dir:      make([]int, len(entities)),
			slot:     make([]int, len(entities)),
			set:      set,
		}
		localErr error
	)
	for k, e := range entities {
		g.index[e] = k
		d := bm.Owner(keys[k].M0)
		if d < 0 {
			localErr = fmt.Errorf("rank %d: master point %d outside the %d global points",
				me, keys[k].M0, bm.MaxIndex)
			break
		}
		g.dir[k] = d
		send[d] = append(send[d], copyMsg{Key: keys[k], Entity: e, Off: offs[k]})
	}
	if err := agree(c, localErr); err != nil {
		return nil, err
	}
	recv, err := parallel.AllToAll(c, send)
	if err != nil {
		return nil, err
	}

	// Directory: number the groups with more than one copy in key order
	groups := make(map[groupKey][]member)
	for src, msgs := range recv {
		for _, msg := range msgs {
			groups[msg.Key] = append(groups[msg.Key], member{Proc: src, Entity: msg.Entity, Off: msg.Off})
		}
	}
	sorted := make([]groupKey, 0, len(groups))
	for key := range groups {
		sorted = append(sorted, key)
	}
	slices.SortFunc(sorted, groupKey.compare)
	slotOf := make(map[groupKey]int)
	for _, key := range sorted {
		if len(groups[key]) > 1 {
			slotOf[key] = len(g.members)
			g.members = append(g.members, groups[key])
		}
	}
	reply := make([][]int, nProcs)
	for src, msgs := range recv {
		reply[src] = make([]int, len(msgs))
		for i, msg := range msgs {
			if s, ok := slotOf[msg.Key]; ok {
				reply[src][i] = s
			} else {
				reply[src][i] = -1
			}
		}
	}
	slots, err := parallel.AllToAll(c, reply)
	if err != nil {
		return nil, err
	}

	var (
		next = make([]int, nProcs)
		refs = make([][]addressing.Ref, len(entities))
	)
	for k := range entities {
		d := g.dir[k]
		g.slot[k] = slots[d][next[d]]
		next[d]++
		if g.slot[k] < 0 {
			refs[k] = []addressing.Ref{addressing.NullRef}
			continue
		}
		refs[k] = []addressing.Ref{{Proc: d, Index: g.slot[k], Transform: offs[k]}}
	}
	gi, err := addressing.NewGlobalIndex(c, len(g.members))
	if err != nil {
		return nil, err
	}
	g.NGlobal = gi.Size()
	res := addressing.BuildTransformed(gi, me, refs, set.Identity())
	if g.Map, err = distribute.NewMapFromAddressing(c, res); err != nil {
		return nil, err
	}
	for k := range entities {
		g.Compact[k] = res.Compact[k][0]
	}
	return g, nil
}

// GlobalPoints returns the groups of the points on coupled patches. Points
// shared across processor patches have the same global label on every
// rank, cyclic point pairs link labels across periodic boundaries, so a
// point on several coupled patches, or shared with a rank it has no face
// in common with, ends up in a single group.
func GlobalPoints(c parallel.Comm, m *mesh.Mesh) (*Groups, error) {
	return mesh.Demand(m, "synctools.points", func() (*Groups, error) {
		g, err := newGlobalPoints(c, m)
		if err != nil {
			return nil, fmt.Errorf("global points: %w", err)
		}
		return g, nil
	})
}

func newGlobalPoints(c parallel.Comm, m *mesh.Mesh) (*Groups, error) {
	set := transformSet(m)
	all, err := parallel.AllGatherSlices(c, m.CyclicPointPairs)
	if err != nil {
		return nil, err
	}
	// Every rank sees the same pairs in the same order, so a broken
	// periodic pairing fails identically everywhere
	var (
		uf   = utils.NewOffsetUnionFind(set)
		seen = make(map[mesh.PointPair]bool)
	)
	for _, pairs := range all {
		for _, pp := range pairs {
			if seen[pp] {
				continue
			}
			seen[pp] = true
			if err = uf.Union(pp.A, pp.B, pp.Transform); err != nil {
				return nil, err
			}
		}
	}
	var (
		points = m.CoupledPoints()
		keys   = make([]groupKey, len(points))
		offs   = make([]int, len(points))
	)
	for k, pt := range points {
		master, off := uf.Find(m.GlobalPoint(pt))
		keys[k] = groupKey{M0: master, M1: -1}
		offs[k] = off
	}
	return newGroups(c, m, points, keys, offs)
}

// GlobalEdges returns the groups of the edges of coupled patch faces. Two
// edges are copies when their end points are copies seen through one
// common transform.
func GlobalEdges(c parallel.Comm, m *mesh.Mesh) (*Groups, error) {
	return mesh.Demand(m, "synctools.edges", func() (*Groups, error) {
		g, err := newGlobalEdges(c, m)
		if err != nil {
			return nil, fmt.Errorf("global edges: %w", err)
		}
		return g, nil
	})
}

// UseMode switches the face, point and edge maps of m to mode, building
// them first when needed.
func UseMode(c parallel.Comm, m *mesh.Mesh, mode distribute.Mode) error {
	fc, err := CoupledFaces(c, m)
	if err != nil {
		return err
	}
	pg, err := GlobalPoints(c, m)
	if err != nil {
		return err
	}
	eg, err := GlobalEdges(c, m)
	if err != nil {
		return err
	}
	for _, dm := range []*distribute.Map{fc.Map, pg.Map, eg.Map} {
		if err = dm.SetMode(c, mode); err != nil {
			return err
		}
	}
	return nil
}

func newGlobalEdges(c parallel.Comm, m *mesh.Mesh) (*Groups, error) {
	pg, err := GlobalPoints(c, m)
	if err != nil {
		return nil, err
	}
	var (
		set     = transformSet(m)
		onPatch = make(map[int]struct{})
		meshEdg = m.Edges()
	)
	for pi, p := range m.Patches {
		if !p.Coupled() {
			continue
		}
		for _, e := range m.PatchEdges(pi) {
			onPatch[e] = struct{}{}
		}
	}
	edges := make([]int, 0, len(onPatch))
	for e := range onPatch {
		edges = append(edges, e)
	}
	slices.Sort(edges)
	var (
		keys = make([]groupKey, len(edges))
		offs = make([]int, len(edges))
	)
	for k, e := range edges {
		var (
			pts    = meshEdg[e].Points()
			ka, kb = pg.Index(pts[0]), pg.Index(pts[1])
		)
		if ka < 0 || kb < 0 {
			panic(fmt.Sprintf("rank %d: coupled edge %v has an uncoupled end point", c.Rank(), meshEdg[e]))
		}
		var (
			ma, oa = pg.key[ka].M0, pg.off[ka]
			mb, ob = pg.key[kb].M0, pg.off[kb]
			rel    = set.Sub(ob, oa)
		)
		keys[k], offs[k] = groupKey{M0: ma, M1: mb, Rel: rel}, oa
		if ma > mb || (ma == mb && set.Inverse(rel) < rel) {
			keys[k], offs[k] = groupKey{M0: mb, M1: ma, Rel: set.Inverse(rel)}, ob
		}
	}
	return newGroups(c, m, edges, keys, offs)
}
