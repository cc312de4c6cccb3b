package lazyrag

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestWorkflowFileRoundTrip(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("echo", echoFactory); err != nil {
		t.Fatalf("register: %v", err)
	}

	w := NewWorkflow()
	if err := w.Add(&echoServer{name: "s1"}, "alpha"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := w.Add(&echoServer{name: "s2"}, "beta", WithFromNodes("s1"), WithTopK(3)); err != nil {
		t.Fatalf("add: %v", err)
	}

	path := filepath.Join(t.TempDir(), "workflow.yaml")
	if err := SaveWorkflowFile(path, w); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored, err := LoadWorkflowFile(reg, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(restored.nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(restored.nodes))
	}
	n := restored.nodes[1]
	if n.ServerName != "s2" || n.Query != "beta" || n.TopK != 3 ||
		len(n.FromNodes) != 1 || n.FromNodes[0] != "s1" {
		t.Errorf("restored node = %+v", n)
	}

	if _, err := restored.Run(context.Background()); err != nil {
		t.Errorf("restored run: %v", err)
	}
}

func TestLoadWorkflowFileEnvExpansion(t *testing.T) {
	t.Setenv("WORKFLOW_QUERY", "from env")
	os.Unsetenv("WORKFLOW_TOPK")

	raw := `
type: workflow
servers:
  - type: echo
    name: s1
nodes:
  - type: search
    name: n1
    server: s1
    query: ${WORKFLOW_QUERY}
    topk: ${WORKFLOW_TOPK:-7}
`
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	reg := NewRegistry()
	_ = reg.Register("echo", echoFactory)

	w, err := LoadWorkflowFile(reg, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	n := w.nodes[0]
	if n.Query != "from env" {
		t.Errorf("query = %q, want expansion from environment", n.Query)
	}
	if n.TopK != 7 {
		t.Errorf("topk = %d, want fallback 7", n.TopK)
	}
}

func TestLoadWorkflowFileMissing(t *testing.T) {
	reg := NewRegistry()
	if _, err := LoadWorkflowFile(reg, filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("LAZYRAG_HOST", "redis.local")

	cases := []struct {
		in, want string
	}{
		{"addr: ${LAZYRAG_HOST}", "addr: redis.local"},
		{"addr: ${LAZYRAG_MISSING:-localhost}", "addr: localhost"},
		{"addr: ${LAZYRAG_MISSING}", "addr: "},
		{"plain text", "plain text"},
	}
	for _, tc := range cases {
		if got := string(expandEnvVars([]byte(tc.in))); got != tc.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
