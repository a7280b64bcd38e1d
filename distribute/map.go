// Package distribute moves per element values between ranks. A Map says,
// for every rank P, which local elements to send to P (SubMap[P]) and where
// the values received from P land (ConstructMap[P]). Maps are validated
// collectively when they are built: a malformed map is an addressing bug
// and never reaches an exchange.
package distribute

import (
	"errors"
	"fmt"

	"github.com/notargets/meshcomm/parallel"
)

// Mode selects the communication pattern of an exchange.
type Mode uint8

const (
	// NonBlocking posts every send, then drains every receive.
	NonBlocking Mode = iota
	// Scheduled walks a precomputed sequence of pairwise exchanges.
	Scheduled
)

func (m Mode) String() string {
	return [...]string{"nonblocking", "scheduled"}[m]
}

// ParseMode reads the name printed by Mode.String.
func ParseMode(name string) (Mode, error) {
	switch name {
	case "", "nonblocking":
		return NonBlocking, nil
	case "scheduled":
		return Scheduled, nil
	}
	return NonBlocking, fmt.Errorf("unknown communication mode %q", name)
}

// Map is one rank's distribution map.
type Map struct {
	// Size of the distributed array
	ConstructSize int
	// Length of the data sent from, -1 when unknown and not checked
	SourceSize    int
	SubMap        [][]int
	ConstructMap  [][]int
	// With flips, map entries are packed indices, see PackIndex.
	SubHasFlip       bool
	ConstructHasFlip bool
	// Construct positions needing a transform after receipt, one list per
	// transform id. For maps built from compact addressing every list is
	// the contiguous range [TransformStart[t], TransformStart[t+1]).
	TransformIDs      []int
	TransformElements [][]int
	TransformStart    []int

	Mode     Mode
	schedule *Schedule
}

// Option configures NewMap.
type Option func(m *Map)

func WithMode(mode Mode) Option {
	return func(m *Map) { m.Mode = mode }
}

// WithSourceSize bounds the sub map indices by the length of the data
// every exchange will send from.
func WithSourceSize(n int) Option {
	return func(m *Map) { m.SourceSize = n }
}

func WithFlips(sub, construct bool) Option {
	return func(m *Map) {
		m.SubHasFlip, m.ConstructHasFlip = sub, construct
	}
}

// WithTransforms marks the construct positions elements[t] as copies seen
// through the transform ids[t].
func WithTransforms(ids []int, elements [][]int) Option {
	return func(m *Map) {
		m.TransformIDs, m.TransformElements = ids, elements
	}
}

// TopologyError reports mismatched or malformed distribution maps, naming
// the two ranks involved and the counts they disagree on.
type TopologyError struct {
	Proc, Neighbour  int
	What             string
	Expected, Actual int
}

func (e *TopologyError) Error() string {
	return fmt.Sprintf("distribution map of rank %d with rank %d: %s: expected %d, have %d",
		e.Proc, e.Neighbour, e.What, e.Expected, e.Actual)
}

// IsTopologyError reports whether err carries a *TopologyError.
func IsTopologyError(err error) bool {
	var te *TopologyError
	return errors.As(err, &te)
}

// NewMap builds and validates a map. It is collective: every rank exchanges
// its send counts, and if any rank finds a mismatch all ranks return the
// same error, the first one in rank order.
func NewMap(c parallel.Comm, constructSize int, subMap, constructMap [][]int, opts ...Option) (*Map, error) {
	m := &Map{
		ConstructSize: constructSize,
		SourceSize:    -1,
		SubMap:        subMap,
		ConstructMap:  constructMap,
	}
	for _, opt := range opts {
		opt(m)
	}
	localErr := m.checkLocal(c)

	var sendCounts []int
	if localErr == nil {
		sendCounts = make([]int, c.Size())
		for p, sub := range m.SubMap {
			sendCounts[p] = len(sub)
		}
	} else {
		// Keep the collective pattern going with a well formed message
		sendCounts = make([]int, c.Size())
	}
	counts, err := parallel.AllToAll(c, sendCounts)
	if err != nil {
		return nil, err
	}
	if localErr == nil {
		for p, n := range counts {
			if n != len(m.ConstructMap[p]) {
				localErr = &TopologyError{Proc: c.Rank(), Neighbour: p,
					What: "receive count", Expected: n, Actual: len(m.ConstructMap[p])}
				break
			}
		}
	}
	errs, err := parallel.AllGather(c, localErr)
	if err != nil {
		return nil, err
	}
	for _, e := range errs {
		if e != nil {
			return nil, fmt.Errorf("invalid distribution map: %w", e)
		}
	}
	if m.Mode == Scheduled {
		if m.schedule, err = NewSchedule(c, sendCounts); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustNewMap is NewMap for maps whose validity is an invariant of the
// caller, it panics on error.
func MustNewMap(c parallel.Comm, constructSize int, subMap, constructMap [][]int, opts ...Option) *Map {
	m, err := NewMap(c, constructSize, subMap, constructMap, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// SetMode switches the exchange pattern of a built map. Switching to
// Scheduled colours the communication graph, which is collective.
func (m *Map) SetMode(c parallel.Comm, mode Mode) (err error) {
	if mode == Scheduled && m.schedule == nil {
		sendCounts := make([]int, c.Size())
		for p, sub := range m.SubMap {
			sendCounts[p] = len(sub)
		}
		if m.schedule, err = NewSchedule(c, sendCounts); err != nil {
			return
		}
	}
	m.Mode = mode
	return
}

func (m *Map) checkLocal(c parallel.Comm) *TopologyError {
	var (
		me     = c.Rank()
		nProcs = c.Size()
	)
	if len(m.SubMap) != nProcs {
		return &TopologyError{Proc: me, Neighbour: me, What: "sub map ranks",
			Expected: nProcs, Actual: len(m.SubMap)}
	}
	if len(m.ConstructMap) != nProcs {
		return &TopologyError{Proc: me, Neighbour: me, What: "construct map ranks",
			Expected: nProcs, Actual: len(m.ConstructMap)}
	}
	for p := 0; p < nProcs; p++ {
		for _, packed := range m.SubMap[p] {
			idx := m.unpack(packed, m.SubHasFlip)
			if idx < 0 {
				return &TopologyError{Proc: me, Neighbour: p, What: "sub map index",
					Expected: 0, Actual: idx}
			}
			if m.SourceSize >= 0 && idx >= m.SourceSize {
				return &TopologyError{Proc: me, Neighbour: p, What: "sub map index",
					Expected: m.SourceSize, Actual: idx}
			}
		}
		for _, packed := range m.ConstructMap[p] {
			if idx := m.unpack(packed, m.ConstructHasFlip); idx < 0 || idx >= m.ConstructSize {
				return &TopologyError{Proc: me, Neighbour: p, What: "construct map index",
					Expected: m.ConstructSize, Actual: idx}
			}
		}
	}
	if len(m.TransformIDs) != len(m.TransformElements) {
		return &TopologyError{Proc: me, Neighbour: me, What: "transform element lists",
			Expected: len(m.TransformIDs), Actual: len(m.TransformElements)}
	}
	for _, elems := range m.TransformElements {
		for _, idx := range elems {
			if idx < 0 || idx >= m.ConstructSize {
				return &TopologyError{Proc: me, Neighbour: me, What: "transform element",
					Expected: m.ConstructSize, Actual: idx}
			}
		}
	}
	return nil
}

func (m *Map) unpack(packed int, hasFlip bool) int {
	if !hasFlip {
		return packed
	}
	idx, _ := UnpackIndex(packed)
	return idx
}

// Schedule returns the pairwise exchange order, nil for non-blocking maps.
func (m *Map) Schedule() *Schedule { return m.schedule }

// PackIndex encodes an index and its flip flag as index+1, negated when
// flipped.
func PackIndex(index int, flip bool) int {
	if flip {
		return -(index + 1)
	}
	return index + 1
}

func UnpackIndex(packed int) (index int, flip bool) {
	if packed < 0 {
		return -packed - 1, true
	}
	return packed - 1, false
}
