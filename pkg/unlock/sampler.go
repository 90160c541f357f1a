package unlock

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// Sampler produces the simulated smile quality. The controller calls it on
// every resample.
type Sampler interface {
	Sample() Quality
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func() Quality

func (f SamplerFunc) Sample() Quality { return f() }

// RandomSampler draws uniformly from Qualities.
type RandomSampler struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomSampler returns a RandomSampler seeded with seed.
func NewRandomSampler(seed uint64) *RandomSampler {
	return &RandomSampler{
		rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (s *RandomSampler) Sample() Quality {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Qualities[s.rnd.IntN(len(Qualities))]
}

// FixedSampler always reports the same quality.
type FixedSampler Quality

func (f FixedSampler) Sample() Quality { return Quality(f) }

// SequenceSampler replays a fixed list of qualities. Once the list is
// exhausted the last value repeats; an empty list yields QualityNone.
type SequenceSampler struct {
	mu  sync.Mutex
	seq []Quality
	pos int
}

func NewSequenceSampler(seq ...Quality) *SequenceSampler {
	return &SequenceSampler{seq: seq}
}

func (s *SequenceSampler) Sample() Quality {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.seq) == 0 {
		return QualityNone
	}
	q := s.seq[s.pos]
	if s.pos < len(s.seq)-1 {
		s.pos++
	}
	return q
}

// NewSamplerByName builds a sampler from its config name: "random" or the
// name of a Quality for a fixed sampler.
func NewSamplerByName(name string, seed uint64) (Sampler, error) {
	if name == "" || name == "random" {
		return NewRandomSampler(seed), nil
	}
	q, err := ParseQuality(name)
	if err != nil {
		return nil, fmt.Errorf("invalid sampler: %w", err)
	}
	return FixedSampler(q), nil
}
