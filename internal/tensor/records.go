package tensor

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// #region constants

// NumSlots is the fixed number of particle slots carried by every record.
const NumSlots = 6

// ErrShapeMismatch reports tensors whose dimensions cannot be reconciled.
var ErrShapeMismatch = errors.New("shape mismatch")

// #endregion constants

// #region records

// Records is a dense (batch, slots, features) block of particle records,
// stored row-major so that one record occupies slots*features contiguous values.
type Records struct {
	Batch    int
	Slots    int
	Features int
	Data     []float64
}

// New allocates a zeroed (batch, slots, features) block.
func New(batch, slots, features int) Records {
	return Records{
		Batch:    batch,
		Slots:    slots,
		Features: features,
		Data:     make([]float64, batch*slots*features),
	}
}

// FromNested builds Records from a [batch][slot][feature] literal.
// Every record must have the same slot count and every slot the same width.
func FromNested(v [][][]float64) (Records, error) {
	if len(v) == 0 {
		return Records{}, fmt.Errorf("from nested: empty batch: %w", ErrShapeMismatch)
	}
	slots := len(v[0])
	if slots == 0 {
		return Records{}, fmt.Errorf("from nested: record has no slots: %w", ErrShapeMismatch)
	}
	features := len(v[0][0])
	r := New(len(v), slots, features)
	for b, rec := range v {
		if len(rec) != slots {
			return Records{}, fmt.Errorf("from nested: record %d has %d slots, want %d: %w", b, len(rec), slots, ErrShapeMismatch)
		}
		for s, feat := range rec {
			if len(feat) != features {
				return Records{}, fmt.Errorf("from nested: record %d slot %d has %d features, want %d: %w", b, s, len(feat), features, ErrShapeMismatch)
			}
			copy(r.Data[r.offset(b, s):], feat)
		}
	}
	return r, nil
}

// Nested returns a [batch][slot][feature] copy of the block.
func (r Records) Nested() [][][]float64 {
	out := make([][][]float64, r.Batch)
	for b := range out {
		out[b] = make([][]float64, r.Slots)
		for s := range out[b] {
			row := make([]float64, r.Features)
			copy(row, r.Slot(b, s))
			out[b][s] = row
		}
	}
	return out
}

func (r Records) offset(b, s int) int {
	return (b*r.Slots + s) * r.Features
}

// At returns the value at (b, s, f).
func (r Records) At(b, s, f int) float64 {
	return r.Data[r.offset(b, s)+f]
}

// Set writes v at (b, s, f).
func (r Records) Set(b, s, f int, v float64) {
	r.Data[r.offset(b, s)+f] = v
}

// Slot returns the feature vector of slot s in record b. The slice aliases r.
func (r Records) Slot(b, s int) []float64 {
	off := r.offset(b, s)
	return r.Data[off : off+r.Features]
}

// Clone returns a deep copy.
func (r Records) Clone() Records {
	c := r
	c.Data = make([]float64, len(r.Data))
	copy(c.Data, r.Data)
	return c
}

// Validate checks that Data is consistent with the declared dimensions.
func (r Records) Validate() error {
	if r.Batch <= 0 || r.Slots <= 0 || r.Features <= 0 {
		return fmt.Errorf("records (%d, %d, %d): %w", r.Batch, r.Slots, r.Features, ErrShapeMismatch)
	}
	if len(r.Data) != r.Batch*r.Slots*r.Features {
		return fmt.Errorf("records (%d, %d, %d) hold %d values: %w", r.Batch, r.Slots, r.Features, len(r.Data), ErrShapeMismatch)
	}
	return nil
}

// SameShape reports whether r and o have identical dimensions.
func (r Records) SameShape(o Records) bool {
	return r.Batch == o.Batch && r.Slots == o.Slots && r.Features == o.Features
}

// String renders the shape, e.g. "(2, 6, 4)".
func (r Records) String() string {
	return fmt.Sprintf("(%d, %d, %d)", r.Batch, r.Slots, r.Features)
}

// #endregion records

// #region reshape

// DropLastFeature returns a copy with the last feature column of every slot removed.
func (r Records) DropLastFeature() (Records, error) {
	if r.Features < 2 {
		return Records{}, fmt.Errorf("drop last feature of %s: %w", r, ErrShapeMismatch)
	}
	out := New(r.Batch, r.Slots, r.Features-1)
	for b := 0; b < r.Batch; b++ {
		for s := 0; s < r.Slots; s++ {
			copy(out.Slot(b, s), r.Slot(b, s)[:r.Features-1])
		}
	}
	return out, nil
}

// Flatten reshapes (batch, slots, features) into a (batch, slots*features) matrix.
// The matrix owns its own copy of the data.
func (r Records) Flatten() *mat.Dense {
	data := make([]float64, len(r.Data))
	copy(data, r.Data)
	return mat.NewDense(r.Batch, r.Slots*r.Features, data)
}

// CopySlot copies slot s of every record in src into dst.
func CopySlot(dst, src Records, s int) error {
	if dst.Batch != src.Batch || dst.Slots != src.Slots || dst.Features != src.Features {
		return fmt.Errorf("copy slot %d from %s into %s: %w", s, src, dst, ErrShapeMismatch)
	}
	if s < 0 || s >= dst.Slots {
		return fmt.Errorf("copy slot %d of %d: %w", s, dst.Slots, ErrShapeMismatch)
	}
	for b := 0; b < dst.Batch; b++ {
		copy(dst.Slot(b, s), src.Slot(b, s))
	}
	return nil
}

// Concat joins a and b along the feature axis, like cat(..., axis=1).
func Concat(a, b mat.Matrix) (*mat.Dense, error) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br {
		return nil, fmt.Errorf("concat (%d, %d) with (%d, %d): %w", ar, ac, br, bc, ErrShapeMismatch)
	}
	var out mat.Dense
	out.Augment(a, b)
	return &out, nil
}

// #endregion reshape
