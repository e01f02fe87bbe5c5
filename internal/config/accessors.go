package config

import (
	"fmt"
)

func typeError(key string, want string, got any) error {
	return fmt.Errorf("%w: %q must be %s, got %T (%v)", ErrInvalidConfig, key, want, got, got)
}

// Type returns the `type` key.
func (c Config) Type() (string, error) {
	v, ok := c["type"]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: missing \"type\" key", ErrInvalidConfig)
	}
	s, ok := v.(string)
	if !ok {
		return "", typeError("type", "a string", v)
	}
	return s, nil
}

// String returns key as a string, or def when absent.
func (c Config) String(key, def string) (string, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", typeError(key, "a string", v)
	}
	return s, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Float returns key as a number, or def when absent.
func (c Config) Float(key string, def float64) (float64, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return def, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, typeError(key, "a number", v)
	}
	return f, nil
}

// Int returns key as an integer, or def when absent.
func (c Config) Int(key string, def int) (int, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return def, nil
	}
	f, ok := toFloat(v)
	if !ok || f != float64(int(f)) {
		return 0, typeError(key, "an integer", v)
	}
	return int(f), nil
}

// Bool returns key as a boolean, or def when absent.
func (c Config) Bool(key string, def bool) (bool, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, typeError(key, "a boolean", v)
	}
	return b, nil
}

// Floats returns key as a list of numbers. A scalar becomes a one-element
// list. def is returned when the key is absent.
func (c Config) Floats(key string, def ...float64) ([]float64, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return def, nil
	}
	if f, ok := toFloat(v); ok {
		return []float64{f}, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, typeError(key, "a number or a list of numbers", v)
	}
	out := make([]float64, len(list))
	for i, e := range list {
		f, ok := toFloat(e)
		if !ok {
			return nil, typeError(fmt.Sprintf("%s[%d]", key, i), "a number", e)
		}
		out[i] = f
	}
	return out, nil
}

// Ints returns key as a list of integers. A scalar becomes a one-element list.
func (c Config) Ints(key string, def ...int) ([]int, error) {
	fs, err := c.Floats(key)
	if err != nil {
		return nil, err
	}
	if fs == nil {
		return def, nil
	}
	out := make([]int, len(fs))
	for i, f := range fs {
		if f != float64(int(f)) {
			return nil, typeError(fmt.Sprintf("%s[%d]", key, i), "an integer", f)
		}
		out[i] = int(f)
	}
	return out, nil
}

// Strings returns key as a list of strings. A scalar string becomes a
// one-element list; an absent key yields nil.
func (c Config) Strings(key string) ([]string, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		return []string{s}, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, typeError(key, "a string or a list of strings", v)
	}
	out := make([]string, len(list))
	for i, e := range list {
		s, ok := e.(string)
		if !ok {
			return nil, typeError(fmt.Sprintf("%s[%d]", key, i), "a string", e)
		}
		out[i] = s
	}
	return out, nil
}

// IsList reports whether key holds a list.
func (c Config) IsList(key string) bool {
	_, ok := c[key].([]any)
	return ok
}

// Sub returns the nested mapping under key, or nil when absent.
func (c Config) Sub(key string) (Config, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return nil, nil
	}
	sub, ok := v.(Config)
	if !ok {
		return nil, typeError(key, "a mapping", v)
	}
	return sub, nil
}

// Subs returns key as a list of mappings. A single mapping becomes a
// one-element list.
func (c Config) Subs(key string) ([]Config, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return nil, nil
	}
	if sub, ok := v.(Config); ok {
		return []Config{sub}, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, typeError(key, "a mapping or a list of mappings", v)
	}
	out := make([]Config, len(list))
	for i, e := range list {
		sub, ok := e.(Config)
		if !ok {
			return nil, typeError(fmt.Sprintf("%s[%d]", key, i), "a mapping", e)
		}
		out[i] = sub
	}
	return out, nil
}

// Fields reads several keys with a sticky error, so constructors can read
// all their arguments and check once:
//
//	f := cfg.Fields()
//	lr := f.Float("lr", 1e-3)
//	betas := f.Floats("betas", 0.9, 0.999)
//	if err := f.Err(); err != nil {
//	    return nil, err
//	}
type Fields struct {
	cfg Config
	err error
}

// Fields returns a sticky-error reader over c.
func (c Config) Fields() *Fields {
	return &Fields{cfg: c}
}

func (f *Fields) keep(err error) {
	if f.err == nil && err != nil {
		f.err = err
	}
}

// Err returns the first error encountered.
func (f *Fields) Err() error { return f.err }

// Has reports whether key is set.
func (f *Fields) Has(key string) bool { return f.cfg.Has(key) }

// IsList reports whether key holds a list.
func (f *Fields) IsList(key string) bool { return f.cfg.IsList(key) }

// String reads a string.
func (f *Fields) String(key, def string) string {
	v, err := f.cfg.String(key, def)
	f.keep(err)
	return v
}

// Float reads a number.
func (f *Fields) Float(key string, def float64) float64 {
	v, err := f.cfg.Float(key, def)
	f.keep(err)
	return v
}

// Float32 reads a number as float32.
func (f *Fields) Float32(key string, def float32) float32 {
	return float32(f.Float(key, float64(def)))
}

// Int reads an integer.
func (f *Fields) Int(key string, def int) int {
	v, err := f.cfg.Int(key, def)
	f.keep(err)
	return v
}

// Bool reads a boolean.
func (f *Fields) Bool(key string, def bool) bool {
	v, err := f.cfg.Bool(key, def)
	f.keep(err)
	return v
}

// Floats reads a number list.
func (f *Fields) Floats(key string, def ...float64) []float64 {
	v, err := f.cfg.Floats(key, def...)
	f.keep(err)
	return v
}

// Ints reads an integer list.
func (f *Fields) Ints(key string, def ...int) []int {
	v, err := f.cfg.Ints(key, def...)
	f.keep(err)
	return v
}

// Strings reads a string list.
func (f *Fields) Strings(key string) []string {
	v, err := f.cfg.Strings(key)
	f.keep(err)
	return v
}

// Sub reads a nested mapping.
func (f *Fields) Sub(key string) Config {
	v, err := f.cfg.Sub(key)
	f.keep(err)
	return v
}

// Subs reads a list of mappings.
func (f *Fields) Subs(key string) []Config {
	v, err := f.cfg.Subs(key)
	f.keep(err)
	return v
}

// Betas reads a pair of coefficients, e.g. betas: [0.9, 0.999].
func (f *Fields) Betas(key string, b1, b2 float64) [2]float32 {
	v := f.Floats(key, b1, b2)
	if len(v) != 2 {
		f.keep(fmt.Errorf("%w: %q must have 2 elements, got %d", ErrInvalidConfig, key, len(v)))
		return [2]float32{float32(b1), float32(b2)}
	}
	return [2]float32{float32(v[0]), float32(v[1])}
}
