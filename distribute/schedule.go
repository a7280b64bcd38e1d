package distribute

import (
	"fmt"

	"github.com/james-bowman/sparse"

	"github.com/notargets/meshcomm/parallel"
)

// Schedule orders the pairwise exchanges of a map into rounds in which no
// rank takes part twice, found by greedy colouring of the edges of the
// communication graph. Within a round the lower rank sends first.
type Schedule struct {
	Rounds [][][2]int
}

// NewSchedule is collective: every rank passes its send counts per rank.
func NewSchedule(c parallel.Comm, sendCounts []int) (*Schedule, error) {
	rows, err := parallel.AllGatherSlices(c, sendCounts)
	if err != nil {
		return nil, fmt.Errorf("schedule: %w", err)
	}
	nProcs := c.Size()
	graph := sparse.NewDOK(nProcs, nProcs)
	for p, row := range rows {
		for q, n := range row {
			if n > 0 && p != q {
				graph.Set(p, q, float64(n))
			}
		}
	}
	return ColourSchedule(graph), nil
}

// ColourSchedule schedules the communication graph whose entry (p,q) is
// the volume p sends to q.
func ColourSchedule(graph *sparse.DOK) *Schedule {
	var (
		nProcs, _ = graph.Dims()
		busy      []map[int]bool // per round, ranks already exchanging
		s         = &Schedule{}
	)
	for p := 0; p < nProcs; p++ {
		for q := p + 1; q < nProcs; q++ {
			if graph.At(p, q) == 0 && graph.At(q, p) == 0 {
				continue
			}
			round := 0
			for ; round < len(busy); round++ {
				if !busy[round][p] && !busy[round][q] {
					break
				}
			}
			if round == len(busy) {
				busy = append(busy, make(map[int]bool))
				s.Rounds = append(s.Rounds, nil)
			}
			busy[round][p], busy[round][q] = true, true
			s.Rounds[round] = append(s.Rounds[round], [2]int{p, q})
		}
	}
	return s
}

// Partners returns the partner of rank in every round, -1 when idle.
func (s *Schedule) Partners(rank int) []int {
	partners := make([]int, len(s.Rounds))
	for r, pairs := range s.Rounds {
		partners[r] = -1
		for _, pair := range pairs {
			switch rank {
			case pair[0]:
				partners[r] = pair[1]
			case pair[1]:
				partners[r] = pair[0]
			}
		}
	}
	return partners
}
