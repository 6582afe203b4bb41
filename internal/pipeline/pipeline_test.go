package pipeline

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/danielpatrickdp/masked-tae/go-validator/internal/checkpoint"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/data"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/loss"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/mask"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/model"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/tensor"
	"gonum.org/v1/gonum/mat"
)

// #region fakes

type fakeAE struct {
	mode          model.Mode
	outputVars    int
	calls         []tensor.Records
	inferenceOnly []bool
	fn            func(in tensor.Records, outputVars int) tensor.Records
}

func (f *fakeAE) SetMode(m model.Mode) { f.mode = m }
func (f *fakeAE) Mode() model.Mode     { return f.mode }
func (f *fakeAE) StateDict() (checkpoint.Artifact, error) {
	return checkpoint.Artifact{Model: "fake_ae"}, nil
}

func (f *fakeAE) Reconstruct(ctx context.Context, in tensor.Records) (tensor.Records, error) {
	f.calls = append(f.calls, in.Clone())
	f.inferenceOnly = append(f.inferenceOnly, model.InferenceOnly(ctx))
	if f.fn != nil {
		return f.fn(in, f.outputVars), nil
	}
	return tensor.New(in.Batch, tensor.NumSlots, f.outputVars), nil
}

type fakeClf struct {
	mode   model.Mode
	inputs []*mat.Dense
	logit  float64
}

func (f *fakeClf) SetMode(m model.Mode) { f.mode = m }
func (f *fakeClf) Mode() model.Mode     { return f.mode }
func (f *fakeClf) StateDict() (checkpoint.Artifact, error) {
	return checkpoint.Artifact{Model: "fake_clf"}, nil
}

func (f *fakeClf) Classify(_ context.Context, x mat.Matrix) (mat.Matrix, error) {
	f.inputs = append(f.inputs, mat.DenseCopyOf(x))
	r, _ := x.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, f.logit)
	}
	return out, nil
}

// hiddenSlotMarker fills every output row with 1 + the index of the first
// fully-zeroed input slot (0 when nothing is hidden).
func hiddenSlotMarker(in tensor.Records, outputVars int) tensor.Records {
	out := tensor.New(in.Batch, tensor.NumSlots, outputVars)
	for b := 0; b < in.Batch; b++ {
		marker := 0.0
		for s := 0; s < in.Slots; s++ {
			zero := true
			for _, v := range in.Slot(b, s) {
				if v != 0 {
					zero = false
				}
			}
			if zero {
				marker = float64(s + 1)
				break
			}
		}
		for s := 0; s < tensor.NumSlots; s++ {
			for f := 0; f < outputVars; f++ {
				out.Set(b, s, f, marker)
			}
		}
	}
	return out
}

func onesBatch(batch, features int, labels ...float64) data.Batch {
	r := tensor.New(batch, tensor.NumSlots, features)
	for i := range r.Data {
		r.Data[i] = 1
	}
	return data.Batch{Inputs: r, Labels: labels}
}

// #endregion fakes

// #region kind-tests

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindAutoencoder, KindClassifierPartial, KindClassifierFull} {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	if _, err := ParseKind("classifier"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestKindFileNames(t *testing.T) {
	cases := map[Kind][2]string{
		KindAutoencoder:       {"tae_ckpt_config.json", "TAE_best_"},
		KindClassifierPartial: {"partial_ckpt_config.json", "Classifier_partial_best_"},
		KindClassifierFull:    {"full_ckpt_config.json", "Classifier_full_best_"},
	}
	for k, want := range cases {
		if k.ConfigFileName() != want[0] || k.ArtifactPrefix() != want[1] {
			t.Errorf("%s: got %q, %q", k, k.ConfigFileName(), k.ArtifactPrefix())
		}
	}
}

// #endregion kind-tests

// #region new-tests

func TestNewValidation(t *testing.T) {
	ae := &fakeAE{outputVars: 4}
	clf := &fakeClf{}
	base := Config{OutputVars: 4, Mask: mask.Particle(), Reconstruction: loss.MaskedMSE{}, Classification: loss.BCEWithLogits{}}

	if _, err := New(Kind(9), []model.Module{ae}, base); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("unknown kind: got %v", err)
	}
	if _, err := New(KindAutoencoder, []model.Module{ae, clf}, base); err == nil {
		t.Error("autoencoder with two models should fail")
	}
	if _, err := New(KindClassifierFull, []model.Module{ae}, base); err == nil {
		t.Error("classifier with one model should fail")
	}
	if _, err := New(KindClassifierPartial, []model.Module{clf, ae}, base); err == nil {
		t.Error("swapped model order should fail")
	}

	bad := base
	bad.OutputVars = 5
	if _, err := New(KindAutoencoder, []model.Module{ae}, bad); !errors.Is(err, loss.ErrUnsupportedWidth) {
		t.Errorf("width 5: expected ErrUnsupportedWidth, got %v", err)
	}

	noCrit := base
	noCrit.Classification = nil
	if _, err := New(KindClassifierPartial, []model.Module{ae, clf}, noCrit); err == nil {
		t.Error("missing classification criterion should fail")
	}
}

// #endregion new-tests

// #region autoencoder-tests

type recordingCriterion struct {
	zeroPadded [][]int
	targetCols []int
	value      float64
}

func (c *recordingCriterion) ComputeLoss(outputs, targets mat.Matrix, zeroPadded []int) (float64, error) {
	_, oc := outputs.Dims()
	_, tc := targets.Dims()
	if oc != tc {
		return 0, tensor.ErrShapeMismatch
	}
	c.zeroPadded = append(c.zeroPadded, zeroPadded)
	c.targetCols = append(c.targetCols, tc)
	return c.value, nil
}

func TestAutoencoderZeroPaddingByWidth(t *testing.T) {
	for _, tc := range []struct {
		width int
		want  []int
	}{
		{3, []int{4}},
		{4, []int{3, 5, 7}},
	} {
		crit := &recordingCriterion{value: 1}
		ae := &fakeAE{outputVars: tc.width}
		p, err := New(KindAutoencoder, []model.Module{ae}, Config{
			OutputVars: tc.width, Mask: mask.Particle(), Rand: rand.New(rand.NewSource(1)), Reconstruction: crit,
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if _, err := p.RunEpoch(context.Background(), data.NewSliceLoader(onesBatch(2, 4))); err != nil {
			t.Fatalf("width %d: RunEpoch: %v", tc.width, err)
		}
		got := crit.zeroPadded[0]
		if len(got) != len(tc.want) {
			t.Fatalf("width %d: zero padded = %v, want %v", tc.width, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("width %d: zero padded = %v, want %v", tc.width, got, tc.want)
			}
		}
		if crit.targetCols[0] != tensor.NumSlots*tc.width {
			t.Errorf("width %d: target has %d columns", tc.width, crit.targetCols[0])
		}
	}
}

func TestAutoencoderMasksAndUsesEvalMode(t *testing.T) {
	ae := &fakeAE{outputVars: 4}
	p, _ := New(KindAutoencoder, []model.Module{ae}, Config{
		OutputVars: 4, Mask: mask.Particle(), Rand: rand.New(rand.NewSource(2)), Reconstruction: loss.MaskedMSE{},
	})
	if _, err := p.RunEpoch(context.Background(), data.NewSliceLoader(onesBatch(3, 4))); err != nil {
		t.Fatalf("RunEpoch: %v", err)
	}
	if ae.mode != model.ModeEval {
		t.Error("autoencoder not put into eval mode")
	}
	if len(ae.calls) != 1 || !ae.inferenceOnly[0] {
		t.Fatalf("expected one inference-only call, got %d", len(ae.calls))
	}
	zeros := 0
	for _, v := range ae.calls[0].Data {
		if v == 0 {
			zeros++
		}
	}
	if zeros != 3*mask.ParticleWidth {
		t.Errorf("expected one hidden slot per record (%d zeros), got %d", 3*mask.ParticleWidth, zeros)
	}
	if p.Artifact() != model.Module(ae) {
		t.Error("autoencoder pipeline must checkpoint the autoencoder")
	}
}

func TestAutoencoderNoMaskUsesRawInput(t *testing.T) {
	ae := &fakeAE{outputVars: 4}
	p, _ := New(KindAutoencoder, []model.Module{ae}, Config{
		OutputVars: 4, Mask: mask.None(), Reconstruction: loss.MaskedMSE{},
	})
	if _, err := p.RunEpoch(context.Background(), data.NewSliceLoader(onesBatch(2, 4))); err != nil {
		t.Fatalf("RunEpoch: %v", err)
	}
	for _, v := range ae.calls[0].Data {
		if v != 1 {
			t.Fatal("no-mask selector must feed the unmasked batch")
		}
	}
}

func TestAutoencoderMeanOverBatches(t *testing.T) {
	// Identity reconstruction of the unmasked input is lossless.
	ae, _ := model.IdentityAutoencoder(4, 4)
	p, _ := New(KindAutoencoder, []model.Module{ae}, Config{
		OutputVars: 4, Mask: mask.None(), Reconstruction: loss.MaskedMSE{},
	})
	mean, err := p.RunEpoch(context.Background(), data.NewSliceLoader(onesBatch(2, 4), onesBatch(1, 4)))
	if err != nil {
		t.Fatalf("RunEpoch: %v", err)
	}
	if mean != 0 {
		t.Errorf("identity reconstruction of unmasked input should cost 0, got %v", mean)
	}
}

func TestAutoencoderShapeMismatchAborts(t *testing.T) {
	ae := &fakeAE{outputVars: 3} // model emits width 3 while the run expects 4
	p, _ := New(KindAutoencoder, []model.Module{ae}, Config{
		OutputVars: 4, Mask: mask.Particle(), Reconstruction: loss.MaskedMSE{},
	})
	_, err := p.RunEpoch(context.Background(), data.NewSliceLoader(onesBatch(2, 4), onesBatch(2, 4)))
	if !errors.Is(err, tensor.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	if len(ae.calls) != 1 {
		t.Errorf("pass should stop at the first failing batch, made %d calls", len(ae.calls))
	}
}

func TestKinematicWidthBeyondFeaturesRejected(t *testing.T) {
	ae := &fakeAE{outputVars: 4}
	p, err := New(KindAutoencoder, []model.Module{ae}, Config{
		OutputVars: 4, Mask: mask.Kinematic(9), Reconstruction: loss.MaskedMSE{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.RunEpoch(context.Background(), data.NewSliceLoader(onesBatch(2, 4)))
	if !errors.Is(err, mask.ErrInvalidSelector) {
		t.Fatalf("expected ErrInvalidSelector, got %v", err)
	}
	if len(ae.calls) != 0 {
		t.Errorf("autoencoder ran %d times on a rejected selector", len(ae.calls))
	}
}

func TestEmptyLoaderRejected(t *testing.T) {
	ae := &fakeAE{outputVars: 4}
	p, _ := New(KindAutoencoder, []model.Module{ae}, Config{
		OutputVars: 4, Mask: mask.Particle(), Reconstruction: loss.MaskedMSE{},
	})
	if _, err := p.RunEpoch(context.Background(), data.NewSliceLoader()); !errors.Is(err, loss.ErrEmptyPass) {
		t.Errorf("expected ErrEmptyPass, got %v", err)
	}
}

// #endregion autoencoder-tests

// #region classifier-tests

func TestPartialConcatenatesOutputAndMaskedInput(t *testing.T) {
	ae := &fakeAE{outputVars: 3, fn: func(in tensor.Records, w int) tensor.Records {
		out := tensor.New(in.Batch, tensor.NumSlots, w)
		for i := range out.Data {
			out.Data[i] = 7
		}
		return out
	}}
	clf := &fakeClf{logit: 0}
	p, err := New(KindClassifierPartial, []model.Module{ae, clf}, Config{
		OutputVars: 3, Mask: mask.Particle(), Rand: rand.New(rand.NewSource(4)), Classification: loss.BCEWithLogits{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mean, err := p.RunEpoch(context.Background(), data.NewSliceLoader(onesBatch(2, 4, 0, 1)))
	if err != nil {
		t.Fatalf("RunEpoch: %v", err)
	}
	if math.Abs(mean-math.Ln2) > 1e-12 {
		t.Errorf("mean = %v, want ln 2", mean)
	}

	x := clf.inputs[0]
	r, c := x.Dims()
	if r != 2 || c != tensor.NumSlots*3+tensor.NumSlots*4 {
		t.Fatalf("classifier input dims (%d, %d)", r, c)
	}
	for j := 0; j < tensor.NumSlots*3; j++ {
		if x.At(0, j) != 7 {
			t.Fatalf("column %d should hold autoencoder output", j)
		}
	}
	zeros := 0
	for j := tensor.NumSlots * 3; j < c; j++ {
		if x.At(0, j) == 0 {
			zeros++
		}
	}
	if zeros != mask.ParticleWidth {
		t.Errorf("second half should be the masked input, found %d zeros", zeros)
	}
	if ae.mode != model.ModeEval || clf.mode != model.ModeEval {
		t.Error("both models must be in eval mode")
	}
	if p.Artifact() != model.Module(clf) {
		t.Error("classifier pipelines checkpoint the classifier")
	}
}

func TestClassifierRequiresLabels(t *testing.T) {
	p, _ := New(KindClassifierPartial, []model.Module{&fakeAE{outputVars: 4}, &fakeClf{}}, Config{
		OutputVars: 4, Mask: mask.None(), Classification: loss.BCEWithLogits{},
	})
	_, err := p.RunEpoch(context.Background(), data.NewSliceLoader(onesBatch(2, 4)))
	if !errors.Is(err, tensor.ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch for missing labels, got %v", err)
	}
}

func TestFullKeepsSlotSpecificRows(t *testing.T) {
	ae := &fakeAE{outputVars: 4, fn: hiddenSlotMarker}
	clf := &fakeClf{}
	p, err := New(KindClassifierFull, []model.Module{ae, clf}, Config{
		OutputVars: 4, Mask: mask.Particle(), Classification: loss.BCEWithLogits{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.RunEpoch(context.Background(), data.NewSliceLoader(onesBatch(2, 4, 1, 0))); err != nil {
		t.Fatalf("RunEpoch: %v", err)
	}

	if len(ae.calls) != tensor.NumSlots {
		t.Fatalf("expected %d autoencoder passes, got %d", tensor.NumSlots, len(ae.calls))
	}
	// Pass i must have been masked for slot i.
	for i, in := range ae.calls {
		for b := 0; b < in.Batch; b++ {
			if in.At(b, i, 0) != 0 {
				t.Fatalf("pass %d did not hide slot %d", i, i)
			}
		}
	}

	x := clf.inputs[0]
	_, c := x.Dims()
	if c != tensor.NumSlots*4*2 {
		t.Fatalf("classifier input has %d columns", c)
	}
	for b := 0; b < 2; b++ {
		for s := 0; s < tensor.NumSlots; s++ {
			for f := 0; f < 4; f++ {
				if got := x.At(b, s*4+f); got != float64(s+1) {
					t.Fatalf("accumulator row %d = %v, want %v", s, got, s+1)
				}
			}
		}
		// Rows differ between slots: masking is not degenerate.
		if x.At(b, 0) == x.At(b, 4) {
			t.Error("accumulator rows for slots 0 and 1 are identical")
		}
		// Second half is the unmasked input.
		for j := tensor.NumSlots * 4; j < c; j++ {
			if x.At(b, j) != 1 {
				t.Fatalf("column %d should hold the unmasked input", j)
			}
		}
	}
}

func TestFullWithoutMaskRunsSixPasses(t *testing.T) {
	ae := &fakeAE{outputVars: 3}
	p, _ := New(KindClassifierFull, []model.Module{ae, &fakeClf{}}, Config{
		OutputVars: 3, Mask: mask.None(), Classification: loss.BCEWithLogits{},
	})
	if _, err := p.RunEpoch(context.Background(), data.NewSliceLoader(onesBatch(1, 4, 1))); err != nil {
		t.Fatalf("RunEpoch: %v", err)
	}
	if len(ae.calls) != tensor.NumSlots {
		t.Errorf("expected %d passes, got %d", tensor.NumSlots, len(ae.calls))
	}
}

// #endregion classifier-tests
