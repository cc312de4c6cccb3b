package db

import (
	"errors"
	"strings"
	"testing"
)

func TestIndexBuilder(t *testing.T) {
	def, err := NewIndex("docs").
		Prefix("doc:").
		Text("content").
		Tag("doc_id").
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if def.Name != "docs" || def.StorageType != StorageHash {
		t.Errorf("def = %+v", def)
	}
	if len(def.Prefixes) != 1 || def.Prefixes[0] != "doc:" {
		t.Errorf("prefixes = %v", def.Prefixes)
	}
	if len(def.Fields) != 2 {
		t.Fatalf("fields = %v", def.Fields)
	}
	if def.Fields[0].Type != IndexFieldText || def.Fields[1].Type != IndexFieldTag {
		t.Errorf("field types = %v", def.Fields)
	}
}

func TestIndexBuilderTagWithOpts(t *testing.T) {
	def, err := NewIndex("docs").
		TagWithOpts("doc_id", "|", true).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	f := def.Fields[0]
	if f.TagSeparator != "|" || !f.TagCaseSensitive {
		t.Errorf("tag opts = %+v", f)
	}
}

func TestIndexDefinitionValidate(t *testing.T) {
	cases := []struct {
		name    string
		def     IndexDefinition
		wantErr string
	}{
		{
			name:    "missing name",
			def:     IndexDefinition{Fields: []IndexField{{Name: "content"}}},
			wantErr: "name is required",
		},
		{
			name:    "invalid name",
			def:     IndexDefinition{Name: "bad name!", Fields: []IndexField{{Name: "content"}}},
			wantErr: "invalid characters",
		},
		{
			name:    "no fields",
			def:     IndexDefinition{Name: "docs"},
			wantErr: "at least one field",
		},
		{
			name: "unnamed field",
			def:  IndexDefinition{Name: "docs", Fields: []IndexField{{}}},
			wantErr: "field name is required",
		},
		{
			name: "duplicate field",
			def: IndexDefinition{Name: "docs", Fields: []IndexField{
				{Name: "content"}, {Name: "content"},
			}},
			wantErr: "duplicate field",
		},
		{
			name: "valid",
			def: IndexDefinition{Name: "ns:docs-1", Fields: []IndexField{
				{Name: "content"},
			}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.def.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestIndexDefinitionString(t *testing.T) {
	def := NewIndex("docs").Prefix("doc:").Text("content").Tag("doc_id").MustBuild()
	got := def.String()
	want := "FT.CREATE docs ON HASH PREFIX doc: SCHEMA content TEXT doc_id TAG"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestMustBuildPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for invalid definition")
		}
	}()
	NewIndex("").MustBuild()
}

func TestErrorWrapping(t *testing.T) {
	inner := errors.New("timeout")
	err := &Error{Op: OpSearch, Err: inner}
	if err.Error() != "FT.SEARCH: timeout" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("expected Unwrap to reach the inner error")
	}
}

func TestIsValidIdentifier(t *testing.T) {
	valid := []string{"docs", "ns:docs", "a-b_c:1", "A9"}
	invalid := []string{"", "bad name", "semi;colon", "star*", "日本語"}
	for _, s := range valid {
		if !isValidIdentifier(s) {
			t.Errorf("isValidIdentifier(%q) = false, want true", s)
		}
	}
	for _, s := range invalid {
		if isValidIdentifier(s) {
			t.Errorf("isValidIdentifier(%q) = true, want false", s)
		}
	}
}
