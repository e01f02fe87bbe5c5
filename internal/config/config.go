// Package config loads experiment configurations.
//
// A configuration is a tree of YAML mappings. Mappings that select an
// implementation carry a `type` key; the remaining keys are its arguments:
//
//	optimizer:
//	  type: AdamW
//	  lr: 5.0e-4
//	  weight_decay: 0.05
//
// Files may inherit from other files through `_base_` (a path or a list of
// paths relative to the file). Bases are merged in order and the file
// itself is merged last; nested mappings merge recursively unless the
// overriding mapping sets `_delete_: true`, in which case it replaces the
// inherited value.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig reports a value of the wrong type or an invalid structure.
var ErrInvalidConfig = errors.New("invalid config")

const (
	baseKey   = "_base_"
	deleteKey = "_delete_"
)

// Config is one mapping of a configuration tree.
type Config map[string]any

// FromMap wraps a plain map, normalizing nested maps and slices.
func FromMap(m map[string]any) Config {
	return normalize(m).(Config)
}

// ParseBytes parses a YAML document without `_base_` resolution.
func ParseBytes(data []byte) (Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if raw == nil {
		return Config{}, nil
	}
	return FromMap(raw), nil
}

// Load reads path and resolves its `_base_` chain.
func Load(path string) (Config, error) {
	return load(path, map[string]bool{})
}

func load(path string, visiting map[string]bool) (Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if visiting[abs] {
		return nil, fmt.Errorf("%w: circular _base_ reference to %s", ErrInvalidConfig, path)
	}
	visiting[abs] = true
	defer delete(visiting, abs)

	//nolint:gosec // G304: config paths come from the user by design
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	bases, err := cfg.Strings(baseKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	delete(cfg, baseKey)

	merged := Config{}
	for _, base := range bases {
		if !filepath.IsAbs(base) {
			base = filepath.Join(filepath.Dir(abs), base)
		}
		bc, err := load(base, visiting)
		if err != nil {
			return nil, err
		}
		merged = Merge(merged, bc)
	}
	return Merge(merged, cfg), nil
}

// Merge returns a deep copy of base with override merged on top.
func Merge(base, override Config) Config {
	out := base.Clone()
	for k, v := range override {
		if sub, ok := v.(Config); ok {
			if sub.deleteFlag() {
				out[k] = sub.withoutDelete()
				continue
			}
			if existing, ok := out[k].(Config); ok {
				out[k] = Merge(existing, sub)
				continue
			}
			out[k] = sub.withoutDelete()
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

func (c Config) deleteFlag() bool {
	b, ok := c[deleteKey].(bool)
	return ok && b
}

func (c Config) withoutDelete() Config {
	out := c.Clone()
	delete(out, deleteKey)
	return out
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Config:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func normalize(v any) any {
	switch t := v.(type) {
	case Config:
		out := make(Config, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(Config, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case map[any]any:
		out := make(Config, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case []Config:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	default:
		return v
	}
}

// Keys returns the keys in sorted order.
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key is present and not null.
func (c Config) Has(key string) bool {
	v, ok := c[key]
	return ok && v != nil
}

// Dump renders the config as YAML.
func (c Config) Dump() ([]byte, error) {
	return yaml.Marshal(plain(c))
}

// Decode fills out (a pointer to a struct with yaml tags) from the config.
// Fields absent from the config keep their current values.
func (c Config) Decode(out any) error {
	data, err := c.Dump()
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func plain(v any) any {
	switch t := v.(type) {
	case Config:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = plain(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}
