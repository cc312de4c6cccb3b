package lazyrag

import "context"

// DefaultTopK is the result cap applied when SearchOptions.TopK is zero.
const DefaultTopK = 10

// Hit is one retrieved result for a query. Hits are created by Search and
// owned by the caller; backends never mutate them afterwards.
type Hit struct {
	DocID    string
	Score    float64
	Metadata map[string]any
}

// SearchOptions narrows a single Search call.
type SearchOptions struct {
	// Candidates restricts hits to the given document ids. nil means the
	// full indexed corpus; an empty non-nil slice yields no hits.
	Candidates []string
	// TopK caps the number of hits. Zero means DefaultTopK; negative
	// values fail with ErrInvalidTopK.
	TopK int
}

// Normalize applies the TopK default and validates the options. Shipped
// backends call it at the top of Search.
func (o SearchOptions) Normalize() (SearchOptions, error) {
	if o.TopK == 0 {
		o.TopK = DefaultTopK
	}
	if o.TopK < 0 {
		return SearchOptions{}, ErrInvalidTopK
	}
	return o, nil
}

// Restricted reports whether a candidate restriction is in effect.
// An empty non-nil restriction is still a restriction (matching nothing).
func (o SearchOptions) Restricted() bool { return o.Candidates != nil }

// CandidateSet returns the restriction as a membership set, or nil when
// the search is unrestricted.
func (o SearchOptions) CandidateSet() map[string]struct{} {
	if o.Candidates == nil {
		return nil
	}
	set := make(map[string]struct{}, len(o.Candidates))
	for _, id := range o.Candidates {
		set[id] = struct{}{}
	}
	return set
}

// Server is the uniform contract every retrieval backend satisfies, so an
// orchestrator can treat backends interchangeably.
//
// Name is unique among live instances in one workflow; Type matches the
// tag the backend kind registered under. Ensure is idempotent and may
// block on I/O; implementations serialize it internally. Search is
// read-only, safe to call concurrently with Ensure and other Search
// calls, and a Search issued after Ensure returns sees the ensured
// documents.
type Server interface {
	Name() string
	Type() string

	// Ensure prepares the given documents for querying. fromNodes names
	// the workflow nodes the ids derive from; re-ensuring the same ids is
	// observationally a no-op. An empty docIDs slice is a no-op. Documents
	// a failed Ensure could not index remain unprepared.
	Ensure(ctx context.Context, docIDs []string, fromNodes []string) error

	// Search returns hits ordered best match first, at most opts.TopK.
	// With a non-nil candidate restriction every hit's DocID is a member
	// of it.
	Search(ctx context.Context, query string, opts SearchOptions) ([]Hit, error)

	// Dump returns the reconstructable state of the instance: at minimum
	// the type and name keys, plus backend-specific fields. Transient
	// in-memory state and injected collaborators are not part of it.
	Dump() Config
}

// Source supplies document content by id. Backends fetch content lazily:
// only during Ensure, and only for ids they have not indexed yet.
type Source interface {
	Fetch(ctx context.Context, docID string) (string, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, docID string) (string, error)

// Fetch implements Source.
func (f SourceFunc) Fetch(ctx context.Context, docID string) (string, error) {
	return f(ctx, docID)
}
