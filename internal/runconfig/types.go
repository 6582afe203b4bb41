package runconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// #region run-config

// ResumeEpochKey is the field recording the last validated epoch.
const ResumeEpochKey = "resume_epoch"

// RunConfig is the key-value record derived from a run name, plus the epoch
// the run can be resumed from. It serializes as one flat JSON object whose keys
// keep the order they were parsed or read in, with resume_epoch last.
type RunConfig struct {
	Fields      map[string]any
	ResumeEpoch *int

	order []string
}

// Set assigns a field, appending new keys to the serialization order.
func (c *RunConfig) Set(key string, value any) {
	if c.Fields == nil {
		c.Fields = make(map[string]any)
	}
	if _, ok := c.Fields[key]; !ok {
		c.order = append(c.order, key)
	}
	c.Fields[key] = value
}

// SetResumeEpoch records epoch as the resume point.
func (c *RunConfig) SetResumeEpoch(epoch int) {
	c.ResumeEpoch = &epoch
}

// Keys returns the field names in serialization order. Keys added to Fields
// directly follow the ordered ones, sorted.
func (c RunConfig) Keys() []string {
	keys := make([]string, 0, len(c.Fields))
	seen := make(map[string]bool, len(c.order))
	for _, k := range c.order {
		if _, ok := c.Fields[k]; ok && !seen[k] && k != ResumeEpochKey {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range c.Fields {
		if !seen[k] && k != ResumeEpochKey {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// Clone returns a copy that shares no maps with c.
func (c RunConfig) Clone() RunConfig {
	out := RunConfig{
		Fields: make(map[string]any, len(c.Fields)),
		order:  append([]string(nil), c.order...),
	}
	for k, v := range c.Fields {
		out.Fields[k] = v
	}
	if c.ResumeEpoch != nil {
		out.SetResumeEpoch(*c.ResumeEpoch)
	}
	return out
}

// MarshalJSON flattens Fields and resume_epoch into a single object.
func (c RunConfig) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	write := func(key string, value any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		v, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		return nil
	}
	for _, k := range c.Keys() {
		if err := write(k, c.Fields[k]); err != nil {
			return nil, err
		}
	}
	if c.ResumeEpoch != nil {
		if err := write(ResumeEpochKey, *c.ResumeEpoch); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON splits resume_epoch back out of the flat object and keeps the
// file's key order.
func (c *RunConfig) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("run config: expected object, got %v", tok)
	}

	*c = RunConfig{Fields: make(map[string]any)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("run config: expected key, got %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("run config field %s: %w", key, err)
		}
		if key != ResumeEpochKey {
			c.Set(key, value)
			continue
		}
		f, ok := value.(float64)
		if !ok || f != float64(int(f)) {
			return fmt.Errorf("%s: expected integer, got %v", ResumeEpochKey, value)
		}
		c.SetResumeEpoch(int(f))
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// #endregion run-config
