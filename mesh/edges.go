package mesh

import "github.com/notargets/meshcomm/types"

type edgeAddressing struct {
	edges     []types.EdgeKey
	faceEdges [][]int
}

// Edges returns every edge of the mesh in order of first appearance while
// walking the faces, keyed by local point labels.
func (m *Mesh) Edges() []types.EdgeKey { return m.edgeAddressing().edges }

// FaceEdges returns, for every face, the edges between consecutive points.
// Edge i of a face joins face point i to face point i+1.
func (m *Mesh) FaceEdges() [][]int { return m.edgeAddressing().faceEdges }

func (m *Mesh) edgeAddressing() *edgeAddressing {
	ea, _ := Demand(m, "edges", func() (*edgeAddressing, error) {
		var (
			ea    = &edgeAddressing{faceEdges: make([][]int, m.NFaces())}
			index = make(map[types.EdgeKey]int)
		)
		for f, face := range m.Faces {
			fe := make([]int, len(face))
			for i, pt := range face {
				key := types.NewEdgeKey(pt, face[(i+1)%len(face)])
				e, ok := index[key]
				if !ok {
					e = len(ea.edges)
					index[key] = e
					ea.edges = append(ea.edges, key)
				}
				fe[i] = e
			}
			ea.faceEdges[f] = fe
		}
		return ea, nil
	})
	return ea
}

// PatchEdges returns the sorted distinct edges of the patch faces.
func (m *Mesh) PatchEdges(patchi int) []int {
	var (
		p    = m.Patches[patchi]
		fe   = m.FaceEdges()
		seen = make(map[int]struct{})
	)
	for f := p.Start; f < p.Start+p.Size; f++ {
		for _, e := range fe[f] {
			seen[e] = struct{}{}
		}
	}
	return sortedKeys(seen)
}
