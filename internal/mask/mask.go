package mask

import (
	"fmt"
	"math/rand"

	"github.com/danielpatrickdp/masked-tae/go-validator/internal/tensor"
)

// #region constructors

// New returns the global masking operator for sel.
func New(sel Selector, rng *rand.Rand) (Masker, error) {
	switch sel.Mode {
	case ModeNone:
		return Identity{}, nil
	case ModeParticle:
		return &ParticleMask{Width: ParticleWidth, rng: rng}, nil
	case ModeKinematic:
		if sel.Width <= 0 {
			return nil, fmt.Errorf("kinematic width %d: %w", sel.Width, ErrInvalidSelector)
		}
		return &KinematicMask{Width: sel.Width, rng: rng}, nil
	default:
		return nil, fmt.Errorf("mode %d: %w", sel.Mode, ErrInvalidSelector)
	}
}

// ForSlot returns the operator for one slot of a per-slot pass.
// A particle selector is specialised to hide exactly that slot; a kinematic
// selector ignores the slot index.
func ForSlot(sel Selector, slot int, rng *rand.Rand) (Masker, error) {
	if slot < 0 || slot >= tensor.NumSlots {
		return nil, fmt.Errorf("slot %d out of range [0, %d): %w", slot, tensor.NumSlots, ErrInvalidSelector)
	}
	if sel.Mode == ModeParticle {
		return SpecificParticleMask{Width: ParticleWidth, Slot: slot}, nil
	}
	return New(sel, rng)
}

// #endregion constructors

// #region identity

// Identity passes records through unchanged (as a copy).
type Identity struct{}

// Mask implements Masker.
func (Identity) Mask(in tensor.Records) tensor.Records {
	return in.Clone()
}

// #endregion identity

// #region particle

// ParticleMask hides the leading Width channels of one randomly drawn slot per record.
type ParticleMask struct {
	Width int
	rng   *rand.Rand
}

// Mask implements Masker.
func (m *ParticleMask) Mask(in tensor.Records) tensor.Records {
	return hideRandomSlot(in, m.Width, m.rng)
}

// SpecificParticleMask hides the leading Width channels of slot Slot in every record.
type SpecificParticleMask struct {
	Width int
	Slot  int
}

// Mask implements Masker.
func (m SpecificParticleMask) Mask(in tensor.Records) tensor.Records {
	out := in.Clone()
	if m.Slot >= in.Slots {
		return out
	}
	for b := 0; b < out.Batch; b++ {
		zeroPrefix(out.Slot(b, m.Slot), m.Width)
	}
	return out
}

// #endregion particle

// #region kinematic

// KinematicMask hides the first Width kinematic channels of one randomly drawn
// slot per record.
type KinematicMask struct {
	Width int
	rng   *rand.Rand
}

// Mask implements Masker.
func (m *KinematicMask) Mask(in tensor.Records) tensor.Records {
	return hideRandomSlot(in, m.Width, m.rng)
}

// #endregion kinematic

// #region helpers

func hideRandomSlot(in tensor.Records, width int, rng *rand.Rand) tensor.Records {
	out := in.Clone()
	for b := 0; b < out.Batch; b++ {
		s := 0
		if out.Slots > 1 {
			if rng != nil {
				s = rng.Intn(out.Slots)
			} else {
				s = rand.Intn(out.Slots)
			}
		}
		zeroPrefix(out.Slot(b, s), width)
	}
	return out
}

func zeroPrefix(v []float64, n int) {
	if n > len(v) {
		n = len(v)
	}
	for i := 0; i < n; i++ {
		v[i] = 0
	}
}

// #endregion helpers
