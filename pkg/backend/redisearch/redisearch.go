// Package redisearch provides a search server backed by a RediSearch FT
// index. Ensure writes document content into hashes under the server's
// key prefix; Search is an FT.SEARCH full-text query with a TAG clause
// realizing the candidate restriction.
package redisearch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	lazyrag "github.com/n-kats/lazy-rag"
	"github.com/n-kats/lazy-rag/internal/db"
	"github.com/n-kats/lazy-rag/internal/metrics"
)

// Type is the registry tag of this backend kind.
const Type = "redisearch"

// Hash fields the FT index is built over.
const (
	fieldContent = "content"
	fieldDocID   = "doc_id"
)

// Compile-time check: Server implements lazyrag.Server.
var _ lazyrag.Server = (*Server)(nil)

// Server is a RediSearch-backed search server.
type Server struct {
	name   string
	index  string
	prefix string
	store  db.Store
	source lazyrag.Source
	logger *zap.Logger

	mu         sync.Mutex
	ensured    map[string]struct{}
	indexReady bool
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

// WithIndexName overrides the FT index name (default "lazyrag:<name>").
func WithIndexName(index string) Option {
	return func(s *Server) { s.index = index }
}

// WithKeyPrefix overrides the document key prefix
// (default "lazyrag:doc:<name>:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Server) { s.prefix = prefix }
}

// New creates a RediSearch server with the given unique name over store.
func New(name string, store db.Store, opts ...Option) (*Server, error) {
	if name == "" {
		return nil, lazyrag.NewConfigError(lazyrag.KeyName, "is required")
	}
	if store == nil {
		return nil, fmt.Errorf("redisearch: store is required")
	}
	s := &Server{
		name:    name,
		index:   "lazyrag:" + name,
		prefix:  "lazyrag:doc:" + name + ":",
		store:   store,
		logger:  zap.NewNop(),
		ensured: make(map[string]struct{}),
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

func (s *Server) key(docID string) string { return s.prefix + docID }

// Ensure writes content hashes for ids not yet ensured and creates the FT
// index on first use. Re-ensuring an id rewrites the same hash fields, so
// the operation is idempotent at the store level too.
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

	if err := s.ensureIndexLocked(ctx); err != nil {
		return err
	}

	items := make([]db.HashSetItem, 0, len(docIDs))
	fetched := make([]string, 0, len(docIDs))
	for _, id := range docIDs {
		if _, ok := s.ensured[id]; ok {
			continue
		}
		if s.source == nil {
			return fmt.Errorf("server %q: %w", s.name, lazyrag.ErrNoSource)
		}
		content, err := s.source.Fetch(ctx, id)
		if err != nil {
			return fmt.Errorf("fetch %q: %w", id, err)
		}
		items = append(items, db.HashSetItem{
			Key: s.key(id),
			Fields: map[string]string{
				fieldDocID:   id,
				fieldContent: content,
			},
		})
		fetched = append(fetched, id)
	}
	if len(items) == 0 {
		return nil
	}

	if err := s.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("write documents: %w", err)
	}
	for _, id := range fetched {
		s.ensured[id] = struct{}{}
		metrics.EnsuredDocumentsTotal.WithLabelValues(Type).Inc()
	}
	return nil
}

func (s *Server) ensureIndexLocked(ctx context.Context) error {
	if s.indexReady {
		return nil
	}

	def := db.NewIndex(s.index).
		Prefix(s.prefix).
		Text(fieldContent).
		Tag(fieldDocID).
		MustBuild()

	if err := s.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %q: %w", s.index, err)
	}
	s.indexReady = true
	return nil
}

// Search runs an FT.SEARCH full-text query. A non-nil candidate
// restriction becomes a TAG membership clause on the doc_id field.
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
	res, err := s.store.SearchText(ctx, &db.TextQuery{
		IndexName:    s.index,
		Query:        query,
		TagField:     fieldDocID,
		TagFilter:    opts.Candidates,
		TopK:         opts.TopK,
		ReturnFields: []string{fieldDocID},
	})
	metrics.SearchDuration.WithLabelValues(Type).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SearchesTotal.WithLabelValues(Type, "error").Inc()
		return nil, fmt.Errorf("search index %q: %w", s.index, err)
	}
	metrics.SearchesTotal.WithLabelValues(Type, "success").Inc()

	candidates := opts.CandidateSet()
	hits := make([]lazyrag.Hit, 0, len(res.Entries))
	for _, entry := range res.Entries {
		id := entry.Fields[fieldDocID]
		if id == "" {
			id = strings.TrimPrefix(entry.Key, s.prefix)
		}
		if candidates != nil {
			if _, ok := candidates[id]; !ok {
				continue
			}
		}
		hits = append(hits, lazyrag.Hit{
			DocID:    id,
			Score:    entry.Score,
			Metadata: map[string]any{"key": entry.Key},
		})
	}
	if len(hits) > opts.TopK {
		hits = hits[:opts.TopK]
	}
	return hits, nil
}

// Dump returns the reconstructable configuration of the instance. The
// store and source are injected collaborators, not part of it.
func (s *Server) Dump() lazyrag.Config {
	return lazyrag.Config{
		lazyrag.KeyType: Type,
		lazyrag.KeyName: s.name,
		"index":         s.index,
		"prefix":        s.prefix,
	}
}

// FromConfig builds a server from a configuration mapping.
func FromConfig(cfg lazyrag.Config, store db.Store, opts ...Option) (*Server, error) {
	typeTag, name, err := cfg.Identity()
	if err != nil {
		return nil, err
	}
	if typeTag != Type {
		return nil, lazyrag.NewConfigError(lazyrag.KeyType, fmt.Sprintf("must be %q, got %q", Type, typeTag))
	}
	index, err := cfg.StringOr("index", "")
	if err != nil {
		return nil, err
	}
	prefix, err := cfg.StringOr("prefix", "")
	if err != nil {
		return nil, err
	}

	withCfg := make([]Option, 0, len(opts)+2)
	withCfg = append(withCfg, opts...)
	if index != "" {
		withCfg = append(withCfg, WithIndexName(index))
	}
	if prefix != "" {
		withCfg = append(withCfg, WithKeyPrefix(prefix))
	}
	return New(name, store, withCfg...)
}

// Register installs this backend kind in reg, binding the store and opts
// (typically the content source) into the factory.
func Register(reg *lazyrag.Registry, store db.Store, opts ...Option) error {
	return reg.Register(Type, func(cfg lazyrag.Config) (lazyrag.Server, error) {
		return FromConfig(cfg, store, opts...)
	})
}
