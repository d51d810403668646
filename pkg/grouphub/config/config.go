package config

import (
	"time"
)

// Config is a decoded configuration document with forgiving typed lookups.
// Every accessor returns its fallback when the key is absent or holds a
// value of another type.
type Config struct {
	data map[string]any
}

// New wraps data. A nil map behaves as an empty document.
func New(data map[string]any) Config {
	if data == nil {
		data = map[string]any{}
	}
	return Config{data: data}
}

// Has reports whether key is present, whatever its value.
func (c Config) Has(key string) bool {
	_, ok := c.data[key]
	return ok
}

// Section returns the nested document under key.
func (c Config) Section(key string) Config {
	switch v := c.data[key].(type) {
	case map[string]any:
		return New(v)
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, val := range v {
			if s, ok := k.(string); ok {
				m[s] = val
			}
		}
		return New(m)
	default:
		return New(nil)
	}
}

func lookup[T any](c Config, key string) (T, bool) {
	v, ok := c.data[key].(T)
	return v, ok
}

// String returns the string at key.
func (c Config) String(key, fallback string) string {
	if s, ok := lookup[string](c, key); ok {
		return s
	}
	return fallback
}

// Bool returns the boolean at key.
func (c Config) Bool(key string, fallback bool) bool {
	if b, ok := lookup[bool](c, key); ok {
		return b
	}
	return fallback
}

// Int returns the integer at key. JSON numbers decode as float64 and are
// accepted when whole.
func (c Config) Int(key string, fallback int) int {
	switch v := c.data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if n := int(v); float64(n) == v {
			return n
		}
	}
	return fallback
}

// Duration returns the duration at key, written either as a
// time.ParseDuration string ("90s", "5m") or as a number of seconds.
func (c Config) Duration(key string, fallback time.Duration) time.Duration {
	switch v := c.data[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return fallback
}
