package trials

import (
	"math/rand/v2"

	"github.com/banshee-data/hextile/internal/hexgrid"
)

// OffsetSampler draws lattice phase offsets. Run calls Sample sequentially
// from a single goroutine.
type OffsetSampler interface {
	Sample(size float64) hexgrid.Offset
}

// UniformSampler draws offsets uniformly from [0, 1.5·size) × [0, √3·size),
// one full period of the lattice in each direction.
type UniformSampler struct {
	rng *rand.Rand
}

// NewUniformSampler returns a sampler whose sequence is fixed by seed.
func NewUniformSampler(seed uint64) *UniformSampler {
	return &UniformSampler{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Sample implements OffsetSampler.
func (s *UniformSampler) Sample(size float64) hexgrid.Offset {
	return hexgrid.Offset{
		X: s.rng.Float64() * hexgrid.PeriodX(size),
		Y: s.rng.Float64() * hexgrid.PeriodY(size),
	}
}

// FixedSampler replays a fixed list of offsets, cycling when exhausted.
// Useful for reproducing a recorded run.
type FixedSampler struct {
	Offsets []hexgrid.Offset
	next    int
}

// Sample implements OffsetSampler.
func (s *FixedSampler) Sample(float64) hexgrid.Offset {
	if len(s.Offsets) == 0 {
		return hexgrid.Offset{}
	}
	o := s.Offsets[s.next%len(s.Offsets)]
	s.next++
	return o
}
