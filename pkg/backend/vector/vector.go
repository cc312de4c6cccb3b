// Package vector provides an embedding-based search server: Ensure embeds
// document content through the configured Embedder, Search ranks prepared
// documents by cosine similarity to the embedded query.
package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	lazyrag "github.com/n-kats/lazy-rag"
	"github.com/n-kats/lazy-rag/internal/metrics"
)

// Type is the registry tag of this backend kind.
const Type = "vector"

const defaultEnsureConcurrency = 4

// Embedder turns text into a vector. Implementations must be safe for
// concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderFunc adapts a function to the Embedder interface.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

// Embed implements Embedder.
func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// Compile-time check: Server implements lazyrag.Server.
var _ lazyrag.Server = (*Server)(nil)

// Server is an in-memory embedding search server.
type Server struct {
	name        string
	source      lazyrag.Source
	embedder    Embedder
	logger      *zap.Logger
	concurrency int

	mu      sync.RWMutex
	vectors map[string][]float32
}

// Option configures a Server.
type Option func(*Server)

// WithSource sets the document content source; Ensure fails without one.
func WithSource(src lazyrag.Source) Option {
	return func(s *Server) { s.source = src }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithEnsureConcurrency bounds the number of concurrent embedding calls
// one Ensure issues (default 4).
func WithEnsureConcurrency(n int) Option {
	return func(s *Server) { s.concurrency = n }
}

// New creates a vector server with the given unique name and embedder.
func New(name string, embedder Embedder, opts ...Option) (*Server, error) {
	if name == "" {
		return nil, lazyrag.NewConfigError(lazyrag.KeyName, "is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("vector: embedder is required")
	}
	s := &Server{
		name:        name,
		embedder:    embedder,
		logger:      zap.NewNop(),
		concurrency: defaultEnsureConcurrency,
		vectors:     make(map[string][]float32),
	}
	for _, o := range opts {
		o(s)
	}
	if s.concurrency <= 0 {
		s.concurrency = defaultEnsureConcurrency
	}
	return s, nil
}

// Name returns the instance's unique identifier.
func (s *Server) Name() string { return s.name }

// Type returns the backend's type tag.
func (s *Server) Type() string { return Type }

// Ensure fetches and embeds ids not yet indexed, concurrently up to the
// configured limit. Already-embedded ids are skipped. Documents whose
// fetch or embedding failed stay unprepared; successful ones are kept
// even when the call as a whole reports an error.
func (s *Server) Ensure(ctx context.Context, docIDs []string, fromNodes []string) error {
	if len(docIDs) == 0 {
		return nil
	}

	start := time.Now()
	err := s.ensure(ctx, docIDs)
	metrics.EnsureDuration.WithLabelValues(Type).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EnsuresTotal.WithLabelValues(Type, "error").Inc()
		return err
	}
	metrics.EnsuresTotal.WithLabelValues(Type, "success").Inc()

	s.logger.Debug("ensured documents",
		zap.String("server", s.name),
		zap.Int("count", len(docIDs)),
		zap.Strings("from_nodes", fromNodes),
	)
	return nil
}

func (s *Server) ensure(ctx context.Context, docIDs []string) error {
	s.mu.RLock()
	missing := make([]string, 0, len(docIDs))
	seen := make(map[string]struct{}, len(docIDs))
	for _, id := range docIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := s.vectors[id]; !ok {
			missing = append(missing, id)
		}
	}
	s.mu.RUnlock()

	if len(missing) == 0 {
		return nil
	}
	if s.source == nil {
		return fmt.Errorf("server %q: %w", s.name, lazyrag.ErrNoSource)
	}

	embedded := make([][]float32, len(missing))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range missing {
		g.Go(func() error {
			content, err := s.source.Fetch(gctx, id)
			if err != nil {
				return fmt.Errorf("fetch %q: %w", id, err)
			}
			vec, err := s.embedder.Embed(gctx, content)
			if err != nil {
				return fmt.Errorf("embed %q: %w", id, err)
			}
			embedded[i] = vec
			return nil
		})
	}
	err := g.Wait()

	s.mu.Lock()
	for i, id := range missing {
		if embedded[i] == nil {
			continue
		}
		s.vectors[id] = embedded[i]
		metrics.EnsuredDocumentsTotal.WithLabelValues(Type).Inc()
	}
	s.mu.Unlock()

	return err
}

// Search embeds the query and ranks prepared documents by cosine
// similarity. Ordering is score descending, ties broken by DocID
// ascending.
func (s *Server) Search(ctx context.Context, query string, opts lazyrag.SearchOptions) ([]lazyrag.Hit, error) {
	opts, err := opts.Normalize()
	if err != nil {
		metrics.SearchesTotal.WithLabelValues(Type, "error").Inc()
		return nil, err
	}
	if opts.Restricted() && len(opts.Candidates) == 0 {
		metrics.SearchesTotal.WithLabelValues(Type, "success").Inc()
		return []lazyrag.Hit{}, nil
	}

	start := time.Now()
	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues(Type, "error").Inc()
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits := s.rank(qvec, opts)
	metrics.SearchDuration.WithLabelValues(Type).Observe(time.Since(start).Seconds())
	metrics.SearchesTotal.WithLabelValues(Type, "success").Inc()
	return hits, nil
}

func (s *Server) rank(qvec []float32, opts lazyrag.SearchOptions) []lazyrag.Hit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := opts.CandidateSet()
	hits := make([]lazyrag.Hit, 0, len(s.vectors))

	for id, vec := range s.vectors {
		if candidates != nil {
			if _, ok := candidates[id]; !ok {
				continue
			}
		}
		hits = append(hits, lazyrag.Hit{DocID: id, Score: cosineSimilarity(qvec, vec)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocID < hits[j].DocID
	})
	if len(hits) > opts.TopK {
		hits = hits[:opts.TopK]
	}
	return hits
}

// cosineSimilarity returns dot(a,b) / (|a| * |b|); 0 for mismatched
// lengths or zero vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Dump returns the reconstructable configuration of the instance. The
// source and embedder are injected collaborators, not part of it.
func (s *Server) Dump() lazyrag.Config {
	return lazyrag.Config{
		lazyrag.KeyType:      Type,
		lazyrag.KeyName:      s.name,
		"ensure_concurrency": s.concurrency,
	}
}

// FromConfig builds a server from a configuration mapping.
func FromConfig(cfg lazyrag.Config, embedder Embedder, opts ...Option) (*Server, error) {
	typeTag, name, err := cfg.Identity()
	if err != nil {
		return nil, err
	}
	if typeTag != Type {
		return nil, lazyrag.NewConfigError(lazyrag.KeyType, fmt.Sprintf("must be %q, got %q", Type, typeTag))
	}
	concurrency, err := cfg.Int("ensure_concurrency", defaultEnsureConcurrency)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		return nil, lazyrag.NewConfigError("ensure_concurrency", "must be positive")
	}
	return New(name, embedder, append(opts, WithEnsureConcurrency(concurrency))...)
}

// Register installs this backend kind in reg, binding the embedder and
// opts (typically the content source) into the factory.
func Register(reg *lazyrag.Registry, embedder Embedder, opts ...Option) error {
	return reg.Register(Type, func(cfg lazyrag.Config) (lazyrag.Server, error) {
		return FromConfig(cfg, embedder, opts...)
	})
}
