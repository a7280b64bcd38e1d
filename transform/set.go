package transform

import (
	"fmt"
)

const (
	// MaxGenerators is the number of independent periodic transforms a Set
	// can combine.
	MaxGenerators = 3
	// Each generator appears at most maxPower times in either direction
	// inside one composite transform.
	maxPower = 2
	base     = 2*maxPower + 1
)

// Set is the registry of transforms reachable by combining a mesh's
// independent periodic transforms (its generators). A composite transform is
// addressed by an integer id encoding how many times each generator is
// applied, so ids add like vectors and the inverse of an id is its negation.
//
// The Set is immutable once built and shared by every rank of a
// decomposition; patches refer to it by id.
type Set struct {
	gens       []Transform
	transforms []Transform
}

func NewSet(gens ...Transform) *Set {
	if len(gens) > MaxGenerators {
		panic(fmt.Sprintf("at most %d independent transforms supported, have %d",
			MaxGenerators, len(gens)))
	}
	s := &Set{gens: gens}
	n := 1
	for range gens {
		n *= base
	}
	s.transforms = make([]Transform, n)
	for id := 0; id < n; id++ {
		tr := NewIdentity()
		for g, p := range s.Decode(id) {
			step := gens[g]
			if p < 0 {
				step = step.Inverse()
				p = -p
			}
			for ; p > 0; p-- {
				tr = step.Compose(tr)
			}
		}
		s.transforms[id] = tr
	}
	return s
}

func (s *Set) NGenerators() int { return len(s.gens) }

// Len is the number of addressable ids.
func (s *Set) Len() int { return len(s.transforms) }

// Identity returns the id with every generator power zero.
func (s *Set) Identity() int {
	return s.Encode(make([]int, len(s.gens)))
}

func (s *Set) Encode(powers []int) (id int) {
	if len(powers) != len(s.gens) {
		panic(fmt.Sprintf("need %d generator powers, have %d", len(s.gens), len(powers)))
	}
	mult := 1
	for _, p := range powers {
		if p < -maxPower || p > maxPower {
			panic(fmt.Sprintf("generator power %d outside [%d,%d]", p, -maxPower, maxPower))
		}
		id += (p + maxPower) * mult
		mult *= base
	}
	return
}

func (s *Set) Decode(id int) (powers []int) {
	s.check(id)
	powers = make([]int, len(s.gens))
	for g := range powers {
		powers[g] = id%base - maxPower
		id /= base
	}
	return
}

// Generator returns the id of generator g applied sign times.
func (s *Set) Generator(g, sign int) int {
	p := make([]int, len(s.gens))
	p[g] = sign
	return s.Encode(p)
}

// Add returns the id of applying a and b.
func (s *Set) Add(a, b int) int {
	pa, pb := s.Decode(a), s.Decode(b)
	for g := range pa {
		pa[g] += pb[g]
	}
	return s.Encode(pa)
}

func (s *Set) Inverse(id int) int {
	p := s.Decode(id)
	for g := range p {
		p[g] = -p[g]
	}
	return s.Encode(p)
}

// Sub returns the id of a followed by the inverse of b.
func (s *Set) Sub(a, b int) int {
	return s.Add(a, s.Inverse(b))
}

func (s *Set) IsIdentity(id int) bool {
	return id == s.Identity()
}

func (s *Set) Transform(id int) Transform {
	s.check(id)
	return s.transforms[id]
}

// IsRotational reports whether id moves directional quantities.
func (s *Set) IsRotational(id int) bool {
	return s.Transform(id).HasRotation()
}

func (s *Set) check(id int) {
	if id < 0 || id >= len(s.transforms) {
		panic(fmt.Sprintf("transform id %d not in set of %d", id, len(s.transforms)))
	}
}
