package synctools

import (
	"maps"
	"slices"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/meshcomm/distribute"
	"github.com/notargets/meshcomm/mesh"
	"github.com/notargets/meshcomm/parallel"
	"github.com/notargets/meshcomm/transform"
	"github.com/notargets/meshcomm/types"
)

// entryOp applies top to the set entries only.
func entryOp[T any](top transform.Op[T]) transform.Op[entry[T]] {
	return func(tr transform.Transform, forward bool, fld []entry[T]) {
		var (
			vals []T
			at   []int
		)
		for i, e := range fld {
			if e.Set {
				vals = append(vals, e.V)
				at = append(at, i)
			}
		}
		top(tr, forward, vals)
		for k, i := range at {
			fld[i].V = vals[k]
		}
	}
}

// syncList gathers every copy into its directory slot, folding in the
// group frame, then scatters the result back to the copies.
func syncList[T any](c parallel.Comm, g *Groups, fld []T, cop CombineOp[T], top transform.Op[T]) ([]T, error) {
	construct := make([]entry[T], g.Map.ConstructSize)
	for k, e := range g.Entities {
		if s := g.Compact[k]; s >= 0 {
			construct[s] = cop.fold(construct[s], entry[T]{Set: true, V: fld[e]})
		}
	}
	etop := entryOp(top)
	gathered, err := distribute.ReverseDistributeCombineTransformed(c, g.Map, g.set,
		g.NSlots(), entry[T]{}, construct, etop, cop.fold)
	if err != nil {
		return nil, err
	}
	scattered, err := distribute.DistributeTransformed(c, g.Map, g.set, gathered, etop)
	if err != nil {
		return nil, err
	}
	out := slices.Clone(fld)
	for k, e := range g.Entities {
		if s := g.Compact[k]; s >= 0 && scattered[s].Set {
			out[e] = scattered[s].V
		}
	}
	return out, nil
}

type slotValue[T any] struct {
	Slot  int
	Value T
}

type entityValue[T any] struct {
	Entity, Off int
	Value       T
}

// syncMap is syncList for a sparse subset of the entities. Copies missing
// from values receive the combined value of their group.
func syncMap[T any](c parallel.Comm, g *Groups, values map[int]T, cop CombineOp[T],
	top transform.Op[T]) (map[int]T, error) {
	var (
		nProcs = c.Size()
		send   = make([][]slotValue[T], nProcs)
	)
	for _, e := range slices.Sorted(maps.Keys(values)) {
		k := g.Index(e)
		if k < 0 || g.slot[k] < 0 {
			continue
		}
		v := []T{values[e]}
		top(g.set.Transform(g.off[k]), false, v)
		send[g.dir[k]] = append(send[g.dir[k]], slotValue[T]{Slot: g.slot[k], Value: v[0]})
	}
	recv, err := parallel.AllToAll(c, send)
	if err != nil {
		return nil, err
	}
	combined := make([]entry[T], g.NSlots())
	for _, msgs := range recv {
		for _, msg := range msgs {
			combined[msg.Slot] = cop.fold(combined[msg.Slot], entry[T]{Set: true, V: msg.Value})
		}
	}
	reply := make([][]entityValue[T], nProcs)
	for s, e := range combined {
		if !e.Set {
			continue
		}
		for _, mb := range g.members[s] {
			reply[mb.Proc] = append(reply[mb.Proc], entityValue[T]{Entity: mb.Entity, Off: mb.Off, Value: e.V})
		}
	}
	back, err := parallel.AllToAll(c, reply)
	if err != nil {
		return nil, err
	}
	out := maps.Clone(values)
	if out == nil {
		out = make(map[int]T)
	}
	for _, msgs := range back {
		for _, msg := range msgs {
			v := []T{msg.Value}
			top(g.set.Transform(msg.Off), true, v)
			out[msg.Entity] = v[0]
		}
	}
	return out, nil
}

// SyncPointList combines the values of all copies of every coupled point.
// Values crossing a transformed coupling are mapped with top; points not
// on a coupled patch are untouched.
func SyncPointList[T any](c parallel.Comm, m *mesh.Mesh, fld []T, cop CombineOp[T],
	top transform.Op[T]) ([]T, error) {
	checkLen("point", len(fld), m.NPoints())
	g, err := GlobalPoints(c, m)
	if err != nil {
		return nil, err
	}
	return syncList(c, g, fld, cop, top)
}

// SyncPointPositions makes the coordinates of all copies of a coupled
// point agree, up to the periodic transforms between them.
func SyncPointPositions(c parallel.Comm, m *mesh.Mesh, pts []r3.Vec, cop CombineOp[r3.Vec]) ([]r3.Vec, error) {
	return SyncPointList(c, m, pts, cop, transform.PositionOp)
}

// SyncPointMap synchronises values of a subset of points keyed by local
// point label.
func SyncPointMap[T any](c parallel.Comm, m *mesh.Mesh, values map[int]T, cop CombineOp[T],
	top transform.Op[T]) (map[int]T, error) {
	g, err := GlobalPoints(c, m)
	if err != nil {
		return nil, err
	}
	return syncMap(c, g, values, cop, top)
}

// SyncEdgeList combines the values of all copies of every edge of a
// coupled patch, fld is indexed like mesh.Edges. Values are taken as
// independent of the edge direction.
func SyncEdgeList[T any](c parallel.Comm, m *mesh.Mesh, fld []T, cop CombineOp[T],
	top transform.Op[T]) ([]T, error) {
	checkLen("edge", len(fld), len(m.Edges()))
	g, err := GlobalEdges(c, m)
	if err != nil {
		return nil, err
	}
	return syncList(c, g, fld, cop, top)
}

// SyncEdgeMap synchronises values of a subset of edges keyed by their end
// points.
func SyncEdgeMap[T any](c parallel.Comm, m *mesh.Mesh, values map[types.EdgeKey]T, cop CombineOp[T],
	top transform.Op[T]) (map[types.EdgeKey]T, error) {
	g, err := GlobalEdges(c, m)
	if err != nil {
		return nil, err
	}
	var (
		edges   = m.Edges()
		byLabel = make(map[int]T, len(values))
	)
	for _, e := range g.Entities {
		if v, ok := values[edges[e]]; ok {
			byLabel[e] = v
		}
	}
	synced, err := syncMap(c, g, byLabel, cop, top)
	if err != nil {
		return nil, err
	}
	out := maps.Clone(values)
	if out == nil {
		out = make(map[types.EdgeKey]T)
	}
	for e, v := range synced {
		out[edges[e]] = v
	}
	return out, nil
}
