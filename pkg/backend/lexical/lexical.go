// Package lexical provides an in-memory BM25 search server. Content is
// pulled lazily from the configured source during Ensure; Search scores
// prepared documents with the BM25 ranking function.
package lexical

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	lazyrag "github.com/n-kats/lazy-rag"
	"github.com/n-kats/lazy-rag/internal/metrics"
)

// Type is the registry tag of this backend kind.
const Type = "bm25"

const (
	k1 = 1.2
	b  = 0.75
)

type posting struct {
	docID string
	count int
}

// Compile-time check: Server implements lazyrag.Server.
var _ lazyrag.Server = (*Server)(nil)

// Server is an in-memory BM25 search server.
type Server struct {
	name   string
	source lazyrag.Source
	logger *zap.Logger

	mu          sync.RWMutex
	inverted    map[string][]posting
	docLengths  map[string]int
	totalLength int64
	docCount    int
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

// New creates a BM25 server with the given unique name.
func New(name string, opts ...Option) (*Server, error) {
	if name == "" {
		return nil, lazyrag.NewConfigError(lazyrag.KeyName, "is required")
	}
	s := &Server{
		name:       name,
		logger:     zap.NewNop(),
		inverted:   make(map[string][]posting),
		docLengths: make(map[string]int),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Name returns the instance's unique identifier.
func (s *Server) Name() string { return s.name }

// Type returns the backend's type tag.
func (s *Server) Type() string { return Type }

// Ensure fetches content for ids not yet indexed and adds them to the
// index. Already-indexed ids are skipped, so re-ensuring is a no-op.
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
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range docIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := s.docLengths[id]; ok {
			continue
		}
		if s.source == nil {
			return fmt.Errorf("server %q: %w", s.name, lazyrag.ErrNoSource)
		}

		content, err := s.source.Fetch(ctx, id)
		if err != nil {
			return fmt.Errorf("fetch %q: %w", id, err)
		}
		s.addLocked(id, content)
		metrics.EnsuredDocumentsTotal.WithLabelValues(Type).Inc()
	}
	return nil
}

func (s *Server) addLocked(docID, content string) {
	tokens := tokenize(content)

	s.docLengths[docID] = len(tokens)
	s.totalLength += int64(len(tokens))
	s.docCount++

	tf := make(map[string]int)
	for _, t := range tokens {
		tf[t]++
	}
	for t, count := range tf {
		s.inverted[t] = append(s.inverted[t], posting{docID: docID, count: count})
	}
}

// Search scores prepared documents against the query with BM25. Ordering
// is score descending, ties broken by DocID ascending.
func (s *Server) Search(ctx context.Context, query string, opts lazyrag.SearchOptions) ([]lazyrag.Hit, error) {
	opts, err := opts.Normalize()
	if err != nil {
		metrics.SearchesTotal.WithLabelValues(Type, "error").Inc()
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		metrics.SearchesTotal.WithLabelValues(Type, "error").Inc()
		return nil, err
	}
	if opts.Restricted() && len(opts.Candidates) == 0 {
		metrics.SearchesTotal.WithLabelValues(Type, "success").Inc()
		return []lazyrag.Hit{}, nil
	}

	start := time.Now()
	hits := s.search(query, opts)
	metrics.SearchDuration.WithLabelValues(Type).Observe(time.Since(start).Seconds())
	metrics.SearchesTotal.WithLabelValues(Type, "success").Inc()
	return hits, nil
}

func (s *Server) search(query string, opts lazyrag.SearchOptions) []lazyrag.Hit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.docCount == 0 {
		return []lazyrag.Hit{}
	}

	candidates := opts.CandidateSet()
	avgDL := float64(s.totalLength) / float64(s.docCount)
	scores := make(map[string]float64)

	for _, t := range tokenize(query) {
		postings, ok := s.inverted[t]
		if !ok {
			continue
		}
		idf := s.idfLocked(len(postings))

		for _, p := range postings {
			if candidates != nil {
				if _, ok := candidates[p.docID]; !ok {
					continue
				}
			}
			tf := float64(p.count)
			docLen := float64(s.docLengths[p.docID])

			num := tf * (k1 + 1)
			denom := tf + k1*(1-b+b*(docLen/avgDL))
			scores[p.docID] += idf * (num / denom)
		}
	}

	hits := make([]lazyrag.Hit, 0, len(scores))
	for id, score := range scores {
		hits = append(hits, lazyrag.Hit{DocID: id, Score: score})
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

// idfLocked computes IDF = log(1 + (N - n + 0.5) / (n + 0.5)).
func (s *Server) idfLocked(df int) float64 {
	N := float64(s.docCount)
	n := float64(df)
	return math.Log(1 + (N-n+0.5)/(n+0.5))
}

// tokenize lowercases and splits on whitespace.
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// Dump returns the reconstructable configuration of the instance. The
// content source is an injected collaborator, not part of it.
func (s *Server) Dump() lazyrag.Config {
	return lazyrag.Config{
		lazyrag.KeyType: Type,
		lazyrag.KeyName: s.name,
	}
}

// FromConfig builds a server from a configuration mapping.
func FromConfig(cfg lazyrag.Config, opts ...Option) (*Server, error) {
	typeTag, name, err := cfg.Identity()
	if err != nil {
		return nil, err
	}
	if typeTag != Type {
		return nil, lazyrag.NewConfigError(lazyrag.KeyType, fmt.Sprintf("must be %q, got %q", Type, typeTag))
	}
	return New(name, opts...)
}

// Register installs this backend kind in reg, binding opts (typically the
// content source) into the factory.
func Register(reg *lazyrag.Registry, opts ...Option) error {
	return reg.Register(Type, func(cfg lazyrag.Config) (lazyrag.Server, error) {
		return FromConfig(cfg, opts...)
	})
}
