package mask

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/danielpatrickdp/masked-tae/go-validator/internal/tensor"
)

// #region constants

// ParticleWidth is the number of leading feature channels hidden by a particle mask.
const ParticleWidth = 4

// ErrInvalidSelector reports a selector that maps to no masking mode.
var ErrInvalidSelector = errors.New("invalid mask selector")

// #endregion constants

// #region selector

// Mode tags the masking rule a Selector stands for.
type Mode int

const (
	ModeNone      Mode = iota // no masking
	ModeParticle              // selector 0
	ModeKinematic             // selector > 0
)

// Selector is the masking-mode selector of a validation run.
type Selector struct {
	Mode  Mode
	Width int // kinematic submask width, only set for ModeKinematic
}

// None returns the pass-through selector.
func None() Selector { return Selector{Mode: ModeNone} }

// Particle returns the selector 0 (global particle mask).
func Particle() Selector { return Selector{Mode: ModeParticle, Width: ParticleWidth} }

// Kinematic returns a kinematic submask selector of width m.
func Kinematic(m int) Selector { return Selector{Mode: ModeKinematic, Width: m} }

// ParseSelector reads "none" (or ""), "0" or a positive integer.
func ParseSelector(s string) (Selector, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "none" {
		return None(), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Selector{}, fmt.Errorf("parse %q: %w", s, ErrInvalidSelector)
	}
	return FromInt(n)
}

// FromInt maps the numeric selector: 0 is the particle mask, n > 0 a kinematic one.
func FromInt(n int) (Selector, error) {
	switch {
	case n == 0:
		return Particle(), nil
	case n > 0:
		return Kinematic(n), nil
	default:
		return Selector{}, fmt.Errorf("selector %d: %w", n, ErrInvalidSelector)
	}
}

// String renders the selector in the form ParseSelector accepts.
func (s Selector) String() string {
	switch s.Mode {
	case ModeNone:
		return "none"
	case ModeParticle:
		return "0"
	default:
		return strconv.Itoa(s.Width)
	}
}

// Fits reports whether the selector can be applied to records with the given
// feature width. A kinematic width beyond it is a configuration error.
func (s Selector) Fits(features int) error {
	if s.Mode == ModeKinematic && s.Width > features {
		return fmt.Errorf("kinematic width %d exceeds %d features: %w", s.Width, features, ErrInvalidSelector)
	}
	return nil
}

// #endregion selector

// #region masker

// Masker transforms a record batch into its masked counterpart.
// Implementations return a new batch with the same shape and never modify the input.
type Masker interface {
	Mask(in tensor.Records) tensor.Records
}

// #endregion masker
