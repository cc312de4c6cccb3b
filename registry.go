package lazyrag

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Factory produces a Server from a configuration mapping. Backend packages
// register one per type tag, usually a closure binding non-serializable
// collaborators (content source, embedder, store).
type Factory func(cfg Config) (Server, error)

// Registry maps type tags to backend factories. It decouples which backend
// kinds exist from which kind a configuration names, so new kinds can be
// added without touching the orchestrator. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory

	rejectDuplicates bool
	logger           *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used for overwrite warnings.
func WithRegistryLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithRejectDuplicates makes Register fail on an already-used tag instead
// of overwriting it.
func WithRejectDuplicates() RegistryOption {
	return func(r *Registry) { r.rejectDuplicates = true }
}

// NewRegistry creates an empty registry. The default duplicate policy is
// overwrite-with-log, which keeps hot-reloading backend implementations
// possible; WithRejectDuplicates switches to fail-on-duplicate.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		logger:    zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register associates a type tag with a factory.
func (r *Registry) Register(typeTag string, f Factory) error {
	if typeTag == "" {
		return fmt.Errorf("lazyrag: empty type tag")
	}
	if f == nil {
		return fmt.Errorf("lazyrag: nil factory for type %q", typeTag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[typeTag]; exists {
		if r.rejectDuplicates {
			return &DuplicateRegistrationError{Type: typeTag}
		}
		r.logger.Warn("overwriting registered server type", zap.String("type", typeTag))
	}
	r.factories[typeTag] = f
	return nil
}

// Lookup reports whether a tag is registered, without constructing anything.
func (r *Registry) Lookup(typeTag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[typeTag]
	return ok
}

// Types returns the registered tags, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Load reads the type field from cfg, looks up the factory registered for
// it and delegates construction. An unregistered tag fails with an
// UnknownServerTypeError carrying the known tags; malformed configs fail
// with whatever the factory reports.
func (r *Registry) Load(cfg Config) (Server, error) {
	typeTag, err := cfg.String(KeyType)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	f, ok := r.factories[typeTag]
	r.mu.RUnlock()

	if !ok {
		return nil, &UnknownServerTypeError{Type: typeTag, Known: r.Types()}
	}

	srv, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("load server type %q: %w", typeTag, err)
	}
	return srv, nil
}

// defaultRegistry is the process-wide registry backend packages register
// into at setup time.
var (
	defaultMu       sync.RWMutex
	defaultRegistry = NewRegistry()
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultRegistry
}

// ResetDefault replaces the process-wide registry with a fresh one and
// returns it. Test harnesses call it between cases to avoid cross-test
// leakage.
func ResetDefault() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRegistry = NewRegistry()
	return defaultRegistry
}

// Register registers a factory in the process-wide registry.
func Register(typeTag string, f Factory) error {
	return Default().Register(typeTag, f)
}

// Load constructs a server from cfg using the process-wide registry.
func Load(cfg Config) (Server, error) {
	return Default().Load(cfg)
}

// Lookup reports whether a tag is registered in the process-wide registry.
func Lookup(typeTag string) bool {
	return Default().Lookup(typeTag)
}
