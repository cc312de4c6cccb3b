package lazyrag

import (
	"errors"
	"testing"
)

func TestConfigString(t *testing.T) {
	cfg := Config{"name": "s1", "num": 3}

	s, err := cfg.String("name")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != "s1" {
		t.Errorf("expected s1, got %q", s)
	}

	if _, err = cfg.String("missing"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for missing key, got %v", err)
	}
	var ce *ConfigError
	if _, err = cfg.String("num"); !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError for wrong shape, got %v", err)
	}
	if ce.Key != "num" {
		t.Errorf("expected key num in error, got %q", ce.Key)
	}
}

func TestConfigStringOr(t *testing.T) {
	cfg := Config{"set": "v", "bad": 1}

	if v, err := cfg.StringOr("absent", "def"); err != nil || v != "def" {
		t.Errorf("expected def, got %q (%v)", v, err)
	}
	if v, err := cfg.StringOr("set", "def"); err != nil || v != "v" {
		t.Errorf("expected v, got %q (%v)", v, err)
	}
	if _, err := cfg.StringOr("bad", "def"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestConfigInt(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    int
		wantErr bool
	}{
		{"int", 7, 7, false},
		{"int64", int64(7), 7, false},
		{"uint64", uint64(7), 7, false},
		{"float64 whole", float64(7), 7, false},
		{"float64 fraction", 7.5, 0, true},
		{"string", "7", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{"topk": tc.value}
			got, err := cfg.Int("topk", 10)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %d, got %d", tc.want, got)
			}
		})
	}

	if got, err := (Config{}).Int("topk", 10); err != nil || got != 10 {
		t.Errorf("expected default 10, got %d (%v)", got, err)
	}
}

func TestConfigStringSlice(t *testing.T) {
	cfg := Config{
		"strings": []string{"a", "b"},
		"anys":    []any{"a", "b"},
		"mixed":   []any{"a", 1},
		"scalar":  "a",
	}

	for _, key := range []string{"strings", "anys"} {
		got, err := cfg.StringSlice(key)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", key, err)
		}
		if len(got) != 2 || got[0] != "a" || got[1] != "b" {
			t.Errorf("%s: expected [a b], got %v", key, got)
		}
	}

	if got, err := cfg.StringSlice("absent"); err != nil || got != nil {
		t.Errorf("expected nil for absent key, got %v (%v)", got, err)
	}
	for _, key := range []string{"mixed", "scalar"} {
		if _, err := cfg.StringSlice(key); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", key, err)
		}
	}
}

func TestConfigIdentity(t *testing.T) {
	typeTag, name, err := Config{"type": "bm25", "name": "s1"}.Identity()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if typeTag != "bm25" || name != "s1" {
		t.Errorf("expected bm25/s1, got %s/%s", typeTag, name)
	}

	if _, _, err = (Config{"type": "bm25"}).Identity(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for missing name, got %v", err)
	}
	if _, _, err = (Config{"name": "s1"}).Identity(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for missing type, got %v", err)
	}
}

func TestConfigClone(t *testing.T) {
	cfg := Config{"type": "echo", "name": "s1"}
	clone := cfg.Clone()
	clone["name"] = "s2"
	if cfg["name"] != "s1" {
		t.Error("clone must not alias the original")
	}
	if Config(nil).Clone() != nil {
		t.Error("nil clone must stay nil")
	}
}
