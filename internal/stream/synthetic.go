package stream

import (
	"math/rand"

	"github.com/visiona/stemd/internal/types"
)

// SyntheticConfig sizes a generated stream.
type SyntheticConfig struct {
	Blocks  int
	Images  int // images per block
	Rows    int
	Columns int
	Seed    int64
}

// Synthetic generates a deterministic block stream in memory: sequential
// image numbers from 1 and pseudo-random 12-bit samples. It lets the
// pipeline run without instrument data.
type Synthetic struct {
	cfg     SyntheticConfig
	rng     *rand.Rand
	emitted int
	next    uint32
}

// NewSynthetic creates a generator source. The same seed yields the same
// stream.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	return &Synthetic{
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(cfg.Seed)),
		next: 1,
	}
}

// Next returns the next generated block, or the zero Block once the
// configured count is exhausted.
func (s *Synthetic) Next() (types.Block, error) {
	if s.emitted >= s.cfg.Blocks {
		return types.Block{}, nil
	}

	h := types.Header{
		ImagesInBlock: uint32(s.cfg.Images),
		Rows:          uint32(s.cfg.Rows),
		Columns:       uint32(s.cfg.Columns),
		Version:       1,
		Timestamp:     uint32(s.emitted),
		ImageNumbers:  make([]uint32, s.cfg.Images),
	}
	for i := range h.ImageNumbers {
		h.ImageNumbers[i] = s.next
		s.next++
	}

	b := types.Block{Header: h, Data: make([]uint16, s.cfg.Rows*s.cfg.Columns*s.cfg.Images)}
	for i := range b.Data {
		b.Data[i] = uint16(s.rng.Intn(1 << 12))
	}

	s.emitted++
	return b, nil
}

// Close implements the source contract; a synthetic source holds no
// resources.
func (s *Synthetic) Close() error { return nil }
