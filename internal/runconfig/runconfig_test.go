package runconfig

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseModelName(t *testing.T) {
	cfg, err := ParseModelName("TAE_dm128_nh8_nl4_lr0.0001_bs256")
	if err != nil {
		t.Fatalf("ParseModelName: %v", err)
	}
	want := map[string]any{
		"model_name": "TAE_dm128_nh8_nl4_lr0.0001_bs256",
		"model":      "TAE",
		"d_model":    128,
		"num_heads":  8,
		"num_layers": 4,
		"lr":         0.0001,
		"batch_size": 256,
	}
	if len(cfg.Fields) != len(want) {
		t.Fatalf("fields = %v, want %v", cfg.Fields, want)
	}
	for k, v := range want {
		if cfg.Fields[k] != v {
			t.Errorf("field %s = %v (%T), want %v (%T)", k, cfg.Fields[k], cfg.Fields[k], v, v)
		}
	}
	if cfg.ResumeEpoch != nil {
		t.Error("fresh config should carry no resume epoch")
	}
}

func TestParseModelNameUnknownKeyKept(t *testing.T) {
	cfg, err := ParseModelName("Classifier_alpha2_wd1e-4")
	if err != nil {
		t.Fatalf("ParseModelName: %v", err)
	}
	if cfg.Fields["alpha"] != 2 {
		t.Errorf("alpha = %v", cfg.Fields["alpha"])
	}
	if cfg.Fields["wd"] != 1e-4 {
		t.Errorf("wd = %v", cfg.Fields["wd"])
	}
}

func TestParseModelNameMalformed(t *testing.T) {
	for _, name := range []string{
		"",
		"_dm128",
		"TAE__dm128",
		"TAE_128",
		"TAE_dm",
		"TAE_dmabc1x",
		"TAE_dm128_dm64",
		"../escape",
		"TAE/dm128",
	} {
		if _, err := ParseModelName(name); !errors.Is(err, ErrMalformedName) {
			t.Errorf("ParseModelName(%q): expected ErrMalformedName, got %v", name, err)
		}
	}
}

func TestMarshalIncludesResumeEpoch(t *testing.T) {
	cfg := RunConfig{Fields: map[string]any{"model": "TAE"}}
	cfg.SetResumeEpoch(3)
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m[ResumeEpochKey] != float64(3) {
		t.Errorf("resume_epoch = %v, want 3", m[ResumeEpochKey])
	}
	if _, ok := cfg.Fields[ResumeEpochKey]; ok {
		t.Error("marshal must not mutate Fields")
	}
}

func TestSaveUsesFourSpaceIndent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tae_ckpt_config.json")
	cfg := RunConfig{Fields: map[string]any{"model": "TAE"}}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "\n    \"model\": \"TAE\"") {
		t.Errorf("expected 4-space indented output, got:\n%s", data)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	cfg, _ := ParseModelName("TAE_dm64")
	cfg.SetResumeEpoch(7)
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ResumeEpoch == nil || *got.ResumeEpoch != 7 {
		t.Fatalf("resume epoch = %v, want 7", got.ResumeEpoch)
	}
	if got.Fields["d_model"] != float64(64) {
		t.Errorf("d_model = %v", got.Fields["d_model"])
	}
	if _, ok := got.Fields[ResumeEpochKey]; ok {
		t.Error("resume_epoch should not remain in Fields")
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped ErrNotExist, got %v", err)
	}
}

func TestLoadRejectsFractionalEpoch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	os.WriteFile(path, []byte(`{"resume_epoch": 1.5}`), 0o644)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for fractional resume_epoch")
	}
}

func TestCloneIndependent(t *testing.T) {
	cfg := RunConfig{Fields: map[string]any{"a": 1}}
	cfg.SetResumeEpoch(1)
	c := cfg.Clone()
	c.Fields["a"] = 2
	c.SetResumeEpoch(5)
	if cfg.Fields["a"] != 1 || *cfg.ResumeEpoch != 1 {
		t.Error("clone shares state with original")
	}
}

func TestSaveKeepsParseOrderWithResumeEpochLast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	cfg, err := ParseModelName("TAE_nl4_dm128_lr0.001")
	if err != nil {
		t.Fatalf("ParseModelName: %v", err)
	}
	cfg.SetResumeEpoch(2)
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	want := "{\n" +
		"    \"model_name\": \"TAE_nl4_dm128_lr0.001\",\n" +
		"    \"model\": \"TAE\",\n" +
		"    \"num_layers\": 4,\n" +
		"    \"d_model\": 128,\n" +
		"    \"lr\": 0.001,\n" +
		"    \"resume_epoch\": 2\n" +
		"}"
	data, _ := os.ReadFile(path)
	if string(data) != want {
		t.Fatalf("saved config:\n%s\nwant:\n%s", data, want)
	}

	// A load and a second save must reproduce the same bytes.
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got.SetResumeEpoch(3)
	if err := Save(path, got); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != strings.Replace(want, "\"resume_epoch\": 2", "\"resume_epoch\": 3", 1) {
		t.Errorf("resaved config lost key order:\n%s", data)
	}
}

func TestKeysAppendsUnorderedFieldsSorted(t *testing.T) {
	cfg, _ := ParseModelName("TAE_dm8")
	cfg.Fields["zeta"] = 1
	cfg.Fields["alpha"] = 2
	got := cfg.Keys()
	want := []string{"model_name", "model", "d_model", "alpha", "zeta"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
}
