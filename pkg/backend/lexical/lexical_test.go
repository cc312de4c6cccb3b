package lexical

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	lazyrag "github.com/n-kats/lazy-rag"
)

// mapSource serves fixed document bodies and counts fetches.
type mapSource struct {
	mu      sync.Mutex
	docs    map[string]string
	fetches map[string]int
}

func newMapSource(docs map[string]string) *mapSource {
	return &mapSource{docs: docs, fetches: make(map[string]int)}
}

func (m *mapSource) Fetch(_ context.Context, docID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches[docID]++
	body, ok := m.docs[docID]
	if !ok {
		return "", fmt.Errorf("no document %q", docID)
	}
	return body, nil
}

func (m *mapSource) fetchCount(docID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches[docID]
}

var corpus = map[string]string{
	"d1": "the quick brown fox jumps over the lazy dog",
	"d2": "a lazy afternoon by the river",
	"d3": "quick quick quick repetition matters",
	"d4": "completely unrelated text about databases",
}

func prepared(t *testing.T, ids ...string) (*Server, *mapSource) {
	t.Helper()
	src := newMapSource(corpus)
	srv, err := New("lex", WithSource(src))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := srv.Ensure(context.Background(), ids, nil); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	return srv, src
}

func TestNewRequiresName(t *testing.T) {
	if _, err := New(""); !errors.Is(err, lazyrag.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestEnsureAndSearch(t *testing.T) {
	srv, _ := prepared(t, "d1", "d2", "d3", "d4")

	hits, err := srv.Search(context.Background(), "quick fox", lazyrag.SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected hits")
	}
	if hits[0].DocID != "d1" {
		t.Errorf("top hit = %q, want d1 (matches both terms)", hits[0].DocID)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("hits out of order at %d: %v", i, hits)
		}
	}
	for _, h := range hits {
		if h.DocID == "d4" {
			t.Errorf("d4 matches no term, must not appear: %v", hits)
		}
	}
}

func TestEnsureIdempotent(t *testing.T) {
	srv, src := prepared(t, "d1", "d2")

	before, err := srv.Search(context.Background(), "lazy", lazyrag.SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if err := srv.Ensure(context.Background(), []string{"d1", "d2"}, nil); err != nil {
		t.Fatalf("re-ensure: %v", err)
	}
	if n := src.fetchCount("d1"); n != 1 {
		t.Errorf("d1 fetched %d times, want 1", n)
	}

	after, err := srv.Search(context.Background(), "lazy", lazyrag.SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if fmt.Sprint(before) != fmt.Sprint(after) {
		t.Errorf("results changed after re-ensure:\n%v\n%v", before, after)
	}
}

func TestEnsureWithoutSource(t *testing.T) {
	srv, err := New("lex")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := srv.Ensure(context.Background(), []string{"d1"}, nil); !errors.Is(err, lazyrag.ErrNoSource) {
		t.Errorf("expected ErrNoSource, got %v", err)
	}
	// No ids to ensure means the source is never needed.
	if err := srv.Ensure(context.Background(), nil, nil); err != nil {
		t.Errorf("empty ensure: %v", err)
	}
}

func TestEnsureFetchError(t *testing.T) {
	srv, _ := prepared(t)
	err := srv.Ensure(context.Background(), []string{"ghost"}, nil)
	if err == nil {
		t.Fatal("expected fetch error")
	}
}

func TestSearchCandidates(t *testing.T) {
	srv, _ := prepared(t, "d1", "d2", "d3")
	ctx := context.Background()

	hits, err := srv.Search(ctx, "lazy", lazyrag.SearchOptions{Candidates: []string{"d2"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].DocID != "d2" {
		t.Fatalf("expected only d2, got %v", hits)
	}

	// Empty non-nil candidates restrict to nothing.
	hits, err = srv.Search(ctx, "lazy", lazyrag.SearchOptions{Candidates: []string{}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits for empty candidate set, got %v", hits)
	}

	// Candidates never indexed simply contribute nothing.
	hits, err = srv.Search(ctx, "lazy", lazyrag.SearchOptions{Candidates: []string{"ghost"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits for unknown candidate, got %v", hits)
	}
}

func TestSearchTopK(t *testing.T) {
	srv, _ := prepared(t, "d1", "d2", "d3")
	ctx := context.Background()

	hits, err := srv.Search(ctx, "the quick lazy", lazyrag.SearchOptions{TopK: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) > 2 {
		t.Errorf("expected at most 2 hits, got %v", hits)
	}

	if _, err := srv.Search(ctx, "x", lazyrag.SearchOptions{TopK: -2}); !errors.Is(err, lazyrag.ErrInvalidTopK) {
		t.Errorf("expected ErrInvalidTopK, got %v", err)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	srv, err := New("lex")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	hits, err := srv.Search(context.Background(), "anything", lazyrag.SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %v", hits)
	}
}

func TestSearchDeterministicTies(t *testing.T) {
	src := newMapSource(map[string]string{
		"b": "same words here",
		"a": "same words here",
		"c": "same words here",
	})
	srv, err := New("lex", WithSource(src))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := srv.Ensure(context.Background(), []string{"b", "a", "c"}, nil); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	for i := 0; i < 5; i++ {
		hits, err := srv.Search(context.Background(), "same words", lazyrag.SearchOptions{})
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		got := make([]string, len(hits))
		for j, h := range hits {
			got[j] = h.DocID
		}
		if fmt.Sprint(got) != "[a b c]" {
			t.Fatalf("tie order = %v, want [a b c]", got)
		}
	}
}

func TestConcurrentEnsureThenSearch(t *testing.T) {
	src := newMapSource(corpus)
	srv, err := New("lex", WithSource(src))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	var wg sync.WaitGroup
	for _, id := range []string{"d1", "d2", "d3", "d4"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Ensure(context.Background(), []string{id}, nil); err != nil {
				t.Errorf("ensure %s: %v", id, err)
			}
		}()
	}
	wg.Wait()

	hits, err := srv.Search(context.Background(), "the quick lazy unrelated", lazyrag.SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	seen := make(map[string]bool)
	for _, h := range hits {
		seen[h.DocID] = true
	}
	for _, id := range []string{"d1", "d2", "d3", "d4"} {
		if !seen[id] {
			t.Errorf("expected %s in results, got %v", id, hits)
		}
	}
}

func TestDumpRoundTrip(t *testing.T) {
	src := newMapSource(corpus)
	srv, err := New("lex", WithSource(src))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := srv.Ensure(context.Background(), []string{"d1", "d2"}, nil); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	cfg := srv.Dump()
	typeTag, name, err := cfg.Identity()
	if err != nil || typeTag != Type || name != "lex" {
		t.Fatalf("dump identity = %s/%s (%v)", typeTag, name, err)
	}

	restored, err := FromConfig(cfg, WithSource(src))
	if err != nil {
		t.Fatalf("from config: %v", err)
	}
	if err := restored.Ensure(context.Background(), []string{"d1", "d2"}, nil); err != nil {
		t.Fatalf("restored ensure: %v", err)
	}

	want, err := srv.Search(context.Background(), "lazy", lazyrag.SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	got, err := restored.Search(context.Background(), "lazy", lazyrag.SearchOptions{})
	if err != nil {
		t.Fatalf("restored search: %v", err)
	}
	if fmt.Sprint(want) != fmt.Sprint(got) {
		t.Errorf("restored results differ:\n%v\n%v", want, got)
	}
}

func TestFromConfigValidation(t *testing.T) {
	if _, err := FromConfig(lazyrag.Config{lazyrag.KeyType: "vector", lazyrag.KeyName: "x"}); err == nil {
		t.Error("expected error for wrong type tag")
	}
	if _, err := FromConfig(lazyrag.Config{lazyrag.KeyType: Type}); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestRegister(t *testing.T) {
	src := newMapSource(corpus)
	reg := lazyrag.NewRegistry()
	if err := Register(reg, WithSource(src)); err != nil {
		t.Fatalf("register: %v", err)
	}

	srv, err := reg.Load(lazyrag.Config{lazyrag.KeyType: Type, lazyrag.KeyName: "lex"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// The factory binds the source, so the loaded instance can index.
	if err := srv.Ensure(context.Background(), []string{"d1"}, nil); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	hits, err := srv.Search(context.Background(), "fox", lazyrag.SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].DocID != "d1" {
		t.Errorf("expected d1, got %v", hits)
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize("  The QUICK   brown\tFox ")
	want := []string{"the", "quick", "brown", "fox"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("tokenize = %v, want %v", got, want)
	}
}
