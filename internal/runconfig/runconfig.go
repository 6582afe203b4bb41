package runconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/danielpatrickdp/masked-tae/go-validator/internal/fsutil"
)

// ErrMalformedName reports a run name that does not follow <family>_<key><value>_...
var ErrMalformedName = errors.New("malformed run name")

// #region abbreviations

// abbreviations expands the short hyperparameter keys used in run names.
var abbreviations = map[string]string{
	"dm":   "d_model",
	"nh":   "num_heads",
	"nl":   "num_layers",
	"ff":   "d_ff",
	"do":   "dropout",
	"lr":   "lr",
	"bs":   "batch_size",
	"ne":   "num_epochs",
	"ov":   "output_vars",
	"mask": "mask",
	"seed": "seed",
}

// #endregion abbreviations

// #region parse

// ParseModelName turns a run name such as "TAE_dm128_nh8_nl4_lr0.0001_bs256"
// into a configuration. The first token is the model family, every further token
// is an alphabetic key immediately followed by a number.
func ParseModelName(name string) (RunConfig, error) {
	if strings.TrimSpace(name) == "" {
		return RunConfig{}, fmt.Errorf("empty name: %w", ErrMalformedName)
	}
	if strings.ContainsAny(name, `/\ `) || strings.Contains(name, "..") {
		return RunConfig{}, fmt.Errorf("%q is not a valid directory name: %w", name, ErrMalformedName)
	}

	tokens := strings.Split(name, "_")
	if tokens[0] == "" {
		return RunConfig{}, fmt.Errorf("%q: missing model family: %w", name, ErrMalformedName)
	}
	var cfg RunConfig
	cfg.Set("model_name", name)
	cfg.Set("model", tokens[0])

	for _, tok := range tokens[1:] {
		key, value, err := splitToken(tok)
		if err != nil {
			return RunConfig{}, fmt.Errorf("%q: %v: %w", name, err, ErrMalformedName)
		}
		if full, ok := abbreviations[key]; ok {
			key = full
		}
		if _, dup := cfg.Fields[key]; dup {
			return RunConfig{}, fmt.Errorf("%q: duplicate key %q: %w", name, key, ErrMalformedName)
		}
		cfg.Set(key, value)
	}
	return cfg, nil
}

func splitToken(tok string) (string, any, error) {
	if tok == "" {
		return "", nil, fmt.Errorf("empty token")
	}
	i := strings.IndexFunc(tok, func(r rune) bool { return !unicode.IsLetter(r) })
	if i <= 0 {
		return "", nil, fmt.Errorf("token %q has no key or no value", tok)
	}
	key, raw := strings.ToLower(tok[:i]), tok[i:]
	if n, err := strconv.Atoi(raw); err == nil {
		return key, n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return "", nil, fmt.Errorf("token %q: value %q is not numeric", tok, raw)
	}
	return key, f, nil
}

// #endregion parse

// #region persistence

// Save writes cfg as a 4-space indented JSON object, replacing path.
func Save(path string, cfg RunConfig) error {
	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return fmt.Errorf("encode run config: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write run config %s: %w", path, err)
	}
	return nil
}

// Load reads a run config written by Save.
func Load(path string) (RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, fmt.Errorf("read run config %s: %w", path, err)
	}
	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, fmt.Errorf("decode run config %s: %w", path, err)
	}
	return cfg, nil
}

// #endregion persistence
