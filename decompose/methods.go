package decompose

import (
	"fmt"
	"log"
	"sort"
	"sync"

	metis "github.com/notargets/go-metis"

	"github.com/notargets/meshcomm/mesh"
	"github.com/notargets/meshcomm/types"
	"github.com/notargets/meshcomm/utils"
)

// Method assigns every cell of an undecomposed mesh to a rank.
type Method interface {
	Name() string
	CellToProc(m *mesh.Mesh, nProcs int) ([]int, error)
}

// Options configures the decomposition methods.
type Options struct {
	// Splits per direction for the simple method, the product must equal
	// the number of ranks. Zero means split along x only.
	Splits [3]int
	// Objective of the metis method, "cut" or "vol"
	Objective       string
	ImbalanceFactor float32
}

func DefaultOptions() Options {
	return Options{
		Objective:       "vol", // minimize communication volume
		ImbalanceFactor: 1.05,
	}
}

type Constructor func(opts Options) Method

var (
	registryMu sync.Mutex
	registry   = make(map[string]Constructor)
)

// Register adds a method constructor under name.
func Register(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("decomposition method %q registered twice", name))
	}
	registry[name] = ctor
}

var registerDefaults sync.Once

// RegisterDefaults registers the built in methods, it is safe to call more
// than once.
func RegisterDefaults() {
	registerDefaults.Do(func() {
		Register("simple", func(opts Options) Method { return &simple{splits: opts.Splits} })
		Register("block", func(Options) Method { return block{} })
		Register("roundrobin", func(Options) Method { return roundRobin{} })
		Register("metis", func(opts Options) Method { return &metisMethod{opts: opts} })
	})
}

// New returns the registered method called name.
func New(name string, opts Options) (Method, error) {
	registryMu.Lock()
	ctor, ok := registry[name]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown decomposition method %q, have %v", name, Names())
	}
	return ctor(opts), nil
}

// Names lists the registered methods.
func Names() (names []string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

// block gives every rank a contiguous range of cell labels.
type block struct{}

func (block) Name() string { return "block" }

func (block) CellToProc(m *mesh.Mesh, nProcs int) ([]int, error) {
	bm := utils.NewBlockMap(nProcs, m.NCells)
	cellToProc := make([]int, m.NCells)
	for c := range cellToProc {
		cellToProc[c] = bm.Owner(c)
	}
	return cellToProc, nil
}

type roundRobin struct{}

func (roundRobin) Name() string { return "roundrobin" }

func (roundRobin) CellToProc(m *mesh.Mesh, nProcs int) ([]int, error) {
	cellToProc := make([]int, m.NCells)
	for c := range cellToProc {
		cellToProc[c] = c % nProcs
	}
	return cellToProc, nil
}

// simple splits the cells geometrically, first along x into Splits[0]
// slabs of equal cell count, each slab along y, then along z.
type simple struct {
	splits [3]int
}

func (s *simple) Name() string { return "simple" }

func (s *simple) CellToProc(m *mesh.Mesh, nProcs int) ([]int, error) {
	splits := s.splits
	if splits == [3]int{} {
		splits = [3]int{nProcs, 1, 1}
	}
	if splits[0]*splits[1]*splits[2] != nProcs {
		return nil, fmt.Errorf("simple splits %v do not give %d ranks", splits, nProcs)
	}
	var (
		cc         = m.CellCentres()
		cellToProc = make([]int, m.NCells)
		coord      = func(c, axis int) float64 {
			switch axis {
			case 0:
				return cc[c].X
			case 1:
				return cc[c].Y
			}
			return cc[c].Z
		}
		split func(cells []int, axis, base int)
	)
	split = func(cells []int, axis, base int) {
		if axis == 3 {
			for _, c := range cells {
				cellToProc[c] = base
			}
			return
		}
		sort.SliceStable(cells, func(i, j int) bool {
			return coord(cells[i], axis) < coord(cells[j], axis)
		})
		stride := 1
		for a := axis + 1; a < 3; a++ {
			stride *= splits[a]
		}
		bm := utils.NewBlockMap(splits[axis], len(cells))
		for n := 0; n < splits[axis]; n++ {
			lo, hi := bm.Range(n)
			split(cells[lo:hi], axis+1, base+n*stride)
		}
	}
	cells := make([]int, m.NCells)
	for c := range cells {
		cells[c] = c
	}
	split(cells, 0, 0)
	return cellToProc, nil
}

type metisMethod struct {
	opts Options
}

func (mm *metisMethod) Name() string { return "metis" }

// CellToProc partitions the cell graph, cells joined by internal and cyclic
// faces, weighting every edge by the number of face points.
func (mm *metisMethod) CellToProc(m *mesh.Mesh, nProcs int) ([]int, error) {
	cellToProc := make([]int, m.NCells)
	if nProcs == 1 {
		return cellToProc, nil
	}
	log.Printf("Partitioning mesh with %d cells into %d parts", m.NCells, nProcs)
	xadj, adjncy, adjwgt := buildCellGraph(m)

	// Set METIS options
	opts := make([]int32, metis.NoOptions)
	if err := metis.SetDefaultOptions(opts); err != nil {
		return nil, fmt.Errorf("failed to set METIS options: %w", err)
	}
	if mm.opts.Objective == "cut" {
		opts[metis.OptionObjType] = metis.ObjTypeCut
	} else {
		opts[metis.OptionObjType] = metis.ObjTypeVol
	}
	imbalance := mm.opts.ImbalanceFactor
	if imbalance <= 1 {
		imbalance = DefaultOptions().ImbalanceFactor
	}
	ubvec := []float32{imbalance}

	part, objval, err := metis.PartGraphKwayWeighted(
		xadj, adjncy, nil, adjwgt,
		int32(nProcs), nil, ubvec, opts,
	)
	if err != nil {
		return nil, fmt.Errorf("METIS partitioning failed: %w", err)
	}
	log.Printf("  Objective value: %d", objval)
	for c := range cellToProc {
		cellToProc[c] = int(part[c])
	}
	return cellToProc, nil
}

// buildCellGraph converts the face addressing to METIS CSR format. Cells
// sharing several faces get one edge carrying the summed weight.
func buildCellGraph(m *mesh.Mesh) (xadj, adjncy, adjwgt []int32) {
	adjacency := make([]map[int]int32, m.NCells)
	for c := range adjacency {
		adjacency[c] = make(map[int]int32)
	}
	connect := func(a, b, weight int) {
		if a == b {
			return
		}
		adjacency[a][b] += int32(weight)
		adjacency[b][a] += int32(weight)
	}
	for f, n := range m.Neighbour {
		connect(m.Owner[f], n, len(m.Faces[f]))
	}
	for _, patch := range m.Patches {
		if patch.Kind != types.PatchCyclic || !patch.Owner {
			continue
		}
		partner := m.Patches[patch.NeighbPatch]
		for i := 0; i < patch.Size; i++ {
			f := patch.Start + i
			connect(m.Owner[f], m.Owner[partner.Start+i], len(m.Faces[f]))
		}
	}
	xadj = make([]int32, m.NCells+1)
	for c, nbrs := range adjacency {
		keys := make([]int, 0, len(nbrs))
		for nbr := range nbrs {
			keys = append(keys, nbr)
		}
		sort.Ints(keys)
		for _, nbr := range keys {
			adjncy = append(adjncy, int32(nbr))
			adjwgt = append(adjwgt, nbrs[nbr])
		}
		xadj[c+1] = int32(len(adjncy))
	}
	return
}
