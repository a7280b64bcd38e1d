package addressing

import (
	"fmt"
	"sort"
)

// Ref refers to element Index (local numbering) of rank Proc, seen through
// the transform with id Transform.
type Ref struct {
	Proc, Index, Transform int
}

// NullRef marks an absent reference.
var NullRef = Ref{Proc: -1, Index: -1, Transform: -1}

func (r Ref) IsNull() bool { return r.Index < 0 }

// TransformGroup lists the transformed references of one transform id.
type TransformGroup struct {
	ID       int
	Elements [][]int // Per owning rank, distinct element indices
	Slots    [][]int // Compact position of every entry of Elements
}

// Result is the compact addressing of one rank.
type Result struct {
	// Compact holds the input reference lists rewritten to compact
	// positions, -1 preserved.
	Compact [][]int
	NLocal  int
	// Remote lists, per owning rank, the distinct untransformed remote
	// elements. Remote[proc][k] sits at compact slot RemoteStart[proc]+k.
	Remote      [][]int
	RemoteStart []int
	// Transformed references, one group per transform id in ascending id
	// order, occupying [TransformStart[t], TransformStart[t+1]).
	Transforms     []TransformGroup
	TransformStart []int
	ConstructSize  int
}

// Build compacts lists of global element indices. References to own
// elements resolve to their local index.
func Build(gi *GlobalIndex, myProc int, refs [][]int) *Result {
	lrefs := make([][]Ref, len(refs))
	for i, list := range refs {
		lrefs[i] = make([]Ref, len(list))
		for j, g := range list {
			if g < 0 {
				lrefs[i][j] = NullRef
				continue
			}
			proc := gi.WhichProc(g)
			lrefs[i][j] = Ref{Proc: proc, Index: g - gi.Offset(proc)}
		}
	}
	return BuildTransformed(gi, myProc, lrefs, 0)
}

// BuildTransformed compacts lists of possibly transformed references.
// References carrying the identity transform are plain: own elements
// resolve to their local index, remote ones share one slot per element.
// Transformed references, own elements included, share one slot per
// (rank, element, transform) after all plain remote slots.
func BuildTransformed(gi *GlobalIndex, myProc int, refs [][]Ref, identity int) *Result {
	var (
		nProcs   = gi.NProcs()
		nLocal   = gi.LocalSize(myProc)
		plain    = make([]map[int]int, nProcs)
		byTrans  = make(map[int][]map[int]int)
		isPlain  = func(r Ref) bool { return r.Transform == identity }
		newProcs = func() []map[int]int {
			m := make([]map[int]int, nProcs)
			for p := range m {
				m[p] = make(map[int]int)
			}
			return m
		}
	)
	for p := range plain {
		plain[p] = make(map[int]int)
	}
	for _, list := range refs {
		for _, r := range list {
			if r.IsNull() {
				continue
			}
			if r.Proc < 0 || r.Proc >= nProcs || r.Index >= gi.LocalSize(r.Proc) {
				panic(fmt.Sprintf("rank %d: reference %+v outside global index", myProc, r))
			}
			switch {
			case isPlain(r) && r.Proc == myProc:
			case isPlain(r):
				plain[r.Proc][r.Index] = -1
			default:
				if _, ok := byTrans[r.Transform]; !ok {
					byTrans[r.Transform] = newProcs()
				}
				byTrans[r.Transform][r.Proc][r.Index] = -1
			}
		}
	}

	res := &Result{
		Compact:     make([][]int, len(refs)),
		NLocal:      nLocal,
		Remote:      make([][]int, nProcs),
		RemoteStart: make([]int, nProcs+1),
	}
	// Slots are assigned in rank order, elements ascending within a rank
	slot := nLocal
	assign := func(set map[int]int) (elems, slots []int) {
		elems = make([]int, 0, len(set))
		for idx := range set {
			elems = append(elems, idx)
		}
		sort.Ints(elems)
		slots = make([]int, len(elems))
		for k, idx := range elems {
			set[idx] = slot
			slots[k] = slot
			slot++
		}
		return
	}
	for p := 0; p < nProcs; p++ {
		res.RemoteStart[p] = slot
		res.Remote[p], _ = assign(plain[p])
	}
	res.RemoteStart[nProcs] = slot

	ids := make([]int, 0, len(byTrans))
	for id := range byTrans {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		res.TransformStart = append(res.TransformStart, slot)
		group := TransformGroup{
			ID:       id,
			Elements: make([][]int, nProcs),
			Slots:    make([][]int, nProcs),
		}
		for p := 0; p < nProcs; p++ {
			group.Elements[p], group.Slots[p] = assign(byTrans[id][p])
		}
		res.Transforms = append(res.Transforms, group)
	}
	res.TransformStart = append(res.TransformStart, slot)
	res.ConstructSize = slot

	for i, list := range refs {
		compact := make([]int, len(list))
		for j, r := range list {
			switch {
			case r.IsNull():
				compact[j] = -1
			case isPlain(r) && r.Proc == myProc:
				compact[j] = r.Index
			case isPlain(r):
				compact[j] = plain[r.Proc][r.Index]
			default:
				compact[j] = byTrans[r.Transform][r.Proc][r.Index]
			}
		}
		res.Compact[i] = compact
	}
	return res
}

// NRemote is the number of remote slots, transformed ones included.
func (r *Result) NRemote() int { return r.ConstructSize - r.NLocal }
