package lazyrag

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	logpkg "github.com/n-kats/lazy-rag/internal/logger"
)

// NodeOutput is the result of one executed workflow node.
type NodeOutput struct {
	Node   string
	Server string
	Hits   []Hit
}

// Action records one backend operation a workflow run performed.
type Action struct {
	Node   string
	Server string
	Op     string
	Detail map[string]any
}

// ActionLog accumulates the actions of a run. Safe for concurrent use.
type ActionLog struct {
	mu      sync.Mutex
	actions []Action
}

func (l *ActionLog) append(a Action) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.actions = append(l.actions, a)
}

// Actions returns a copy of the recorded actions in order.
func (l *ActionLog) Actions() []Action {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Action, len(l.actions))
	copy(out, l.actions)
	return out
}

// Node is one search stage of a workflow: a query against a named server,
// optionally fed by the hits of earlier nodes.
type Node struct {
	Name       string
	ServerName string
	Query      string
	TopK       int
	FromNodes  []string
}

func (n Node) dump() Config {
	return Config{
		KeyType:      "search",
		KeyName:      n.Name,
		"server":     n.ServerName,
		"query":      n.Query,
		"topk":       n.TopK,
		"from_nodes": append([]string(nil), n.FromNodes...),
	}
}

func nodeFromConfig(cfg Config) (Node, error) {
	typeTag, err := cfg.String(KeyType)
	if err != nil {
		return Node{}, err
	}
	if typeTag != "search" {
		return Node{}, NewConfigError(KeyType, fmt.Sprintf("must be %q, got %q", "search", typeTag))
	}

	name, err := cfg.String(KeyName)
	if err != nil {
		return Node{}, err
	}
	serverName, err := cfg.String("server")
	if err != nil {
		return Node{}, err
	}
	query, err := cfg.String("query")
	if err != nil {
		return Node{}, err
	}
	topk, err := cfg.Int("topk", DefaultTopK)
	if err != nil {
		return Node{}, err
	}
	if topk <= 0 {
		return Node{}, NewConfigError("topk", "must be positive")
	}
	fromNodes, err := cfg.StringSlice("from_nodes")
	if err != nil {
		return Node{}, err
	}

	return Node{
		Name:       name,
		ServerName: serverName,
		Query:      query,
		TopK:       topk,
		FromNodes:  fromNodes,
	}, nil
}

// Workflow chains search nodes over a set of named servers. Nodes execute
// in insertion order; a node with FromNodes set first ensures the doc ids
// its upstream nodes surfaced, then searches with those ids as the
// candidate restriction.
type Workflow struct {
	logger    *zap.Logger
	runLogger *zap.Logger

	servers     map[string]Server
	serverOrder []string
	nodes       []Node

	outputs map[string]NodeOutput
	log     *ActionLog
}

// WorkflowOption configures a Workflow.
type WorkflowOption func(*Workflow)

// WithWorkflowLogger sets the logger used for action logging. Without
// it, Run picks up the context logger if one is stored.
func WithWorkflowLogger(l *zap.Logger) WorkflowOption {
	return func(w *Workflow) { w.logger = l }
}

// NewWorkflow creates an empty workflow.
func NewWorkflow(opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		servers: make(map[string]Server),
		outputs: make(map[string]NodeOutput),
		log:     &ActionLog{},
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// NodeOption configures one Add call.
type NodeOption func(*Node)

// WithNodeName overrides the node name (default: the server name).
func WithNodeName(name string) NodeOption {
	return func(n *Node) { n.Name = name }
}

// WithTopK sets the node's result cap (default DefaultTopK).
func WithTopK(topk int) NodeOption {
	return func(n *Node) { n.TopK = topk }
}

// WithFromNodes feeds the node the hits of the named earlier nodes.
func WithFromNodes(names ...string) NodeOption {
	return func(n *Node) { n.FromNodes = append([]string(nil), names...) }
}

// Add registers srv under its name and appends a search node for query.
// Two live servers in one workflow must not share a name; re-adding the
// same instance is fine. Duplicate node names are rejected.
func (w *Workflow) Add(srv Server, query string, opts ...NodeOption) error {
	if srv == nil {
		return fmt.Errorf("lazyrag: nil server")
	}
	if srv.Name() == "" {
		return fmt.Errorf("lazyrag: server has empty name")
	}

	if existing, ok := w.servers[srv.Name()]; ok && existing != srv {
		return fmt.Errorf("lazyrag: duplicate server name %q", srv.Name())
	}

	node := Node{
		Name:       srv.Name(),
		ServerName: srv.Name(),
		Query:      query,
		TopK:       DefaultTopK,
	}
	for _, o := range opts {
		o(&node)
	}
	if node.TopK <= 0 {
		return fmt.Errorf("lazyrag: node %q: %w", node.Name, ErrInvalidTopK)
	}
	for _, n := range w.nodes {
		if n.Name == node.Name {
			return fmt.Errorf("lazyrag: duplicate node name %q", node.Name)
		}
	}

	if _, ok := w.servers[srv.Name()]; !ok {
		w.servers[srv.Name()] = srv
		w.serverOrder = append(w.serverOrder, srv.Name())
	}
	w.nodes = append(w.nodes, node)
	return nil
}

// Run executes all nodes in order and returns their outputs by node name.
func (w *Workflow) Run(ctx context.Context) (map[string]NodeOutput, error) {
	if len(w.nodes) == 0 {
		return nil, fmt.Errorf("lazyrag: workflow has no nodes")
	}

	w.outputs = make(map[string]NodeOutput, len(w.nodes))
	w.log = &ActionLog{}
	w.runLogger = w.logger
	if w.runLogger == nil {
		w.runLogger = logpkg.FromContext(ctx)
	}

	for _, node := range w.nodes {
		out, err := w.execSearch(ctx, node)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", node.Name, err)
		}
		w.outputs[out.Node] = out
	}

	results := make(map[string]NodeOutput, len(w.outputs))
	for name, out := range w.outputs {
		results[name] = out
	}
	return results, nil
}

// Log returns the action log of the latest run.
func (w *Workflow) Log() *ActionLog { return w.log }

func (w *Workflow) execSearch(ctx context.Context, node Node) (NodeOutput, error) {
	srv, ok := w.servers[node.ServerName]
	if !ok {
		return NodeOutput{}, fmt.Errorf("unknown server %q", node.ServerName)
	}

	var candidates []string
	if len(node.FromNodes) > 0 {
		ids := w.gatherDocIDs(node.FromNodes)
		if len(ids) > 0 {
			if err := srv.Ensure(ctx, ids, node.FromNodes); err != nil {
				return NodeOutput{}, fmt.Errorf("ensure: %w", err)
			}
			w.record(node, srv, "ensure", map[string]any{
				"from_nodes": append([]string(nil), node.FromNodes...),
				"count":      len(ids),
			})
			candidates = ids
		}
	}

	hits, err := srv.Search(ctx, node.Query, SearchOptions{
		Candidates: candidates,
		TopK:       node.TopK,
	})
	if err != nil {
		return NodeOutput{}, fmt.Errorf("search: %w", err)
	}
	detail := map[string]any{
		"query": node.Query,
		"topk":  node.TopK,
	}
	if candidates != nil {
		detail["candidates"] = len(candidates)
	}
	w.record(node, srv, "search", detail)

	return NodeOutput{Node: node.Name, Server: srv.Name(), Hits: hits}, nil
}

// gatherDocIDs collects, in first-seen order without duplicates, the doc
// ids surfaced by the named nodes. Nodes that have not run contribute
// nothing.
func (w *Workflow) gatherDocIDs(nodeNames []string) []string {
	seen := make(map[string]struct{})
	var ordered []string
	for _, name := range nodeNames {
		out, ok := w.outputs[name]
		if !ok {
			continue
		}
		for _, h := range out.Hits {
			if _, dup := seen[h.DocID]; dup {
				continue
			}
			seen[h.DocID] = struct{}{}
			ordered = append(ordered, h.DocID)
		}
	}
	return ordered
}

func (w *Workflow) record(node Node, srv Server, op string, detail map[string]any) {
	w.log.append(Action{Node: node.Name, Server: srv.Name(), Op: op, Detail: detail})
	w.runLogger.Debug("server action",
		zap.String("node", node.Name),
		zap.String("server", srv.Name()),
		zap.String("op", op),
		zap.Any("detail", detail),
	)
}

// Report renders the latest run as a human-readable trace.
func (w *Workflow) Report() string {
	var b strings.Builder
	b.WriteString("===== Node Outputs =====\n")
	for _, node := range w.nodes {
		out, ok := w.outputs[node.Name]
		if !ok {
			continue
		}
		rows := make([]string, 0, len(out.Hits))
		for _, h := range out.Hits {
			rows = append(rows, fmt.Sprintf("%s:%.3f", h.DocID, h.Score))
		}
		fmt.Fprintf(&b, "%s -> [%s]\n", node.Name, strings.Join(rows, ", "))
	}
	b.WriteString("\n===== Actions =====\n")
	for _, a := range w.log.Actions() {
		fmt.Fprintf(&b, "node=%s server=%s op=%s detail=%v\n", a.Node, a.Server, a.Op, a.Detail)
	}
	return b.String()
}

// Dump returns the reconstructable workflow configuration: each server
// dumped once, nodes referencing servers by name.
func (w *Workflow) Dump() Config {
	servers := make([]any, 0, len(w.serverOrder))
	for _, name := range w.serverOrder {
		servers = append(servers, map[string]any(w.servers[name].Dump()))
	}
	nodes := make([]any, 0, len(w.nodes))
	for _, n := range w.nodes {
		nodes = append(nodes, map[string]any(n.dump()))
	}
	return Config{
		KeyType:   "workflow",
		"servers": servers,
		"nodes":   nodes,
	}
}

// LoadWorkflow reconstructs a workflow from cfg, building each server
// through the registry. Duplicate server or node names are rejected.
func LoadWorkflow(reg *Registry, cfg Config, opts ...WorkflowOption) (*Workflow, error) {
	typeTag, err := cfg.String(KeyType)
	if err != nil {
		return nil, err
	}
	if typeTag != "workflow" {
		return nil, NewConfigError(KeyType, fmt.Sprintf("must be %q, got %q", "workflow", typeTag))
	}

	serverCfgs, err := configList(cfg, "servers")
	if err != nil {
		return nil, err
	}
	nodeCfgs, err := configList(cfg, "nodes")
	if err != nil {
		return nil, err
	}

	w := NewWorkflow(opts...)

	for _, sc := range serverCfgs {
		srv, err := reg.Load(sc)
		if err != nil {
			return nil, err
		}
		if _, dup := w.servers[srv.Name()]; dup {
			return nil, fmt.Errorf("lazyrag: duplicate server name %q", srv.Name())
		}
		w.servers[srv.Name()] = srv
		w.serverOrder = append(w.serverOrder, srv.Name())
	}

	for _, nc := range nodeCfgs {
		node, err := nodeFromConfig(nc)
		if err != nil {
			return nil, err
		}
		if _, ok := w.servers[node.ServerName]; !ok {
			return nil, fmt.Errorf("lazyrag: node %q references unknown server %q", node.Name, node.ServerName)
		}
		for _, n := range w.nodes {
			if n.Name == node.Name {
				return nil, fmt.Errorf("lazyrag: duplicate node name %q", node.Name)
			}
		}
		w.nodes = append(w.nodes, node)
	}

	return w, nil
}

// configList reads a list of mappings (YAML/JSON decode shapes) from cfg.
func configList(cfg Config, key string) ([]Config, error) {
	v, ok := cfg[key]
	if !ok {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, NewConfigError(key, "must be a list")
	}
	out := make([]Config, 0, len(items))
	for _, item := range items {
		switch m := item.(type) {
		case map[string]any:
			out = append(out, Config(m))
		case Config:
			out = append(out, m)
		default:
			return nil, NewConfigError(key, "must be a list of mappings")
		}
	}
	return out, nil
}
