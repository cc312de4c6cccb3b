package lazyrag

import "math"

// Well-known configuration keys. Every server config carries KeyType and
// KeyName; everything else is backend-specific and opaque to the registry.
const (
	KeyType = "type"
	KeyName = "name"
)

// Config is the open configuration mapping produced by Server.Dump and
// consumed by Registry.Load. Values are plain YAML/JSON-compatible types.
type Config map[string]any

// String returns a required string field. Absent or non-string values
// produce a ConfigError; identity fields are never defaulted.
func (c Config) String(key string) (string, error) {
	v, ok := c[key]
	if !ok {
		return "", NewConfigError(key, "is required")
	}
	s, ok := v.(string)
	if !ok {
		return "", NewConfigError(key, "must be a string")
	}
	return s, nil
}

// StringOr returns an optional string field, or def when absent.
// A present value of the wrong shape is still an error.
func (c Config) StringOr(key, def string) (string, error) {
	v, ok := c[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", NewConfigError(key, "must be a string")
	}
	return s, nil
}

// Int returns an optional integer field, or def when absent. YAML and JSON
// decoders deliver numbers as int, int64, uint64 or float64; lossless
// values of any of those shapes are accepted.
func (c Config) Int(key string, def int) (int, error) {
	v, ok := c[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		if n > math.MaxInt {
			return 0, NewConfigError(key, "integer out of range")
		}
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, NewConfigError(key, "must be an integer")
		}
		return int(n), nil
	default:
		return 0, NewConfigError(key, "must be an integer")
	}
}

// StringSlice returns an optional list-of-strings field; absent means nil.
// YAML decodes sequences as []any, so both shapes are accepted.
func (c Config) StringSlice(key string) ([]string, error) {
	v, ok := c[key]
	if !ok {
		return nil, nil
	}
	switch vs := v.(type) {
	case []string:
		out := make([]string, len(vs))
		copy(out, vs)
		return out, nil
	case []any:
		out := make([]string, 0, len(vs))
		for _, e := range vs {
			s, ok := e.(string)
			if !ok {
				return nil, NewConfigError(key, "must be a list of strings")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, NewConfigError(key, "must be a list of strings")
	}
}

// Identity reads the required type and name fields.
func (c Config) Identity() (typeTag, name string, err error) {
	if typeTag, err = c.String(KeyType); err != nil {
		return "", "", err
	}
	if name, err = c.String(KeyName); err != nil {
		return "", "", err
	}
	return typeTag, name, nil
}

// Clone returns a shallow copy so callers can mutate without aliasing.
func (c Config) Clone() Config {
	if c == nil {
		return nil
	}
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
