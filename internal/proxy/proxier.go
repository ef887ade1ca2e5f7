package proxy

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/roach88/pgproxy/internal/compiler"
	"github.com/roach88/pgproxy/internal/ir"
	"github.com/roach88/pgproxy/internal/reconcile"
	"github.com/roach88/pgproxy/internal/remote"
	"github.com/roach88/pgproxy/internal/reverse"
)

// Journal persists sync reports. Implemented by store.Store.
type Journal interface {
	RecordRun(ctx context.Context, report ir.SyncReport) error
}

// Option configures a Proxier.
type Option func(*Proxier)

// WithSchema sets the target schema. Default: public.
func WithSchema(schema string) Option {
	return func(p *Proxier) {
		p.schema = schema
	}
}

// WithCreateNew controls whether missing procedures are created. Default: true.
func WithCreateNew(enabled bool) Option {
	return func(p *Proxier) {
		p.policy.CreateNew = enabled
	}
}

// WithUpdateChanged controls whether drifted procedures are overwritten.
// Default: true.
func WithUpdateChanged(enabled bool) Option {
	return func(p *Proxier) {
		p.policy.UpdateChanged = enabled
	}
}

// WithPurgeOrphaned controls whether unrequested prefixed procedures are
// dropped. Default: false.
func WithPurgeOrphaned(enabled bool) Option {
	return func(p *Proxier) {
		p.policy.PurgeOrphaned = enabled
	}
}

// WithExpose registers local functions callable from remote code. Repeated
// use merges the maps; later entries win.
func WithExpose(funcs map[string]reverse.Func) Option {
	return func(p *Proxier) {
		maps.Copy(p.expose, funcs)
	}
}

// WithLogger sets the logger shared by every stage of a sync.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Proxier) {
		p.logger = logger
	}
}

// WithJournal records every successful sync to j.
func WithJournal(j Journal) Option {
	return func(p *Proxier) {
		p.journal = j
	}
}

// Proxier synchronizes function batches and hands out the resulting Handle.
//
// Thread-safety: Create, Diff and Handle methods are safe for concurrent use.
type Proxier struct {
	conn    remote.Conn
	schema  string
	policy  reconcile.Policy
	expose  map[string]reverse.Func
	logger  *slog.Logger
	journal Journal
}

// New creates a Proxier over conn.
func New(conn remote.Conn, opts ...Option) (*Proxier, error) {
	if conn == nil {
		return nil, ir.NewConfigurationError("a database connection is required")
	}

	p := &Proxier{
		conn:   conn,
		schema: ir.DefaultSchema,
		policy: reconcile.DefaultPolicy(),
		expose: make(map[string]reverse.Func),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.schema == "" {
		p.schema = ir.DefaultSchema
	}
	return p, nil
}

// Schema returns the target schema.
func (p *Proxier) Schema() string {
	return p.schema
}

func (p *Proxier) compileOptions() compiler.Options {
	return compiler.Options{
		Schema: p.schema,
		Expose: slices.Sorted(maps.Keys(p.expose)),
	}
}

// Diff compiles fns and classifies them against the database without writing
// anything.
func (p *Proxier) Diff(ctx context.Context, fns []ir.FunctionSpec) (ir.ChangeSet, error) {
	procs, err := compiler.CompileBatch(fns, p.compileOptions())
	if err != nil {
		return ir.ChangeSet{}, err
	}
	return reconcile.NewDetector(p.conn, p.schema, reconcile.WithDetectorLogger(p.logger)).Detect(ctx, procs)
}

// Create synchronizes fns and returns a live Handle.
//
// Creating while another Handle on the same connection is live, or while
// another Create on it is in progress, fails with a CONFIGURATION error. The
// rule spans every Proxier sharing the connection. A failed sync
// leaves no live Handle behind; writes that already happened are not rolled
// back.
func (p *Proxier) Create(ctx context.Context, fns []ir.FunctionSpec) (*Handle, error) {
	if err := p.acquire(); err != nil {
		return nil, err
	}

	h, err := p.create(ctx, fns)
	if err != nil {
		p.release()
		return nil, err
	}
	return h, nil
}

func (p *Proxier) create(ctx context.Context, fns []ir.FunctionSpec) (*Handle, error) {
	procs, err := compiler.CompileBatch(fns, p.compileOptions())
	if err != nil {
		return nil, err
	}

	cs, err := reconcile.NewDetector(p.conn, p.schema, reconcile.WithDetectorLogger(p.logger)).Detect(ctx, procs)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("change set",
		"schema", p.schema,
		"new", len(cs.New),
		"changed", len(cs.Changed),
		"unchanged", len(cs.Unchanged),
		"orphaned", len(cs.Orphaned),
	)

	syncer := reconcile.NewSynchronizer(p.conn, p.schema, reconcile.WithLogger(p.logger))
	result, entries, err := syncer.Apply(ctx, cs, p.policy)
	if err != nil {
		return nil, err
	}

	report := ir.SyncReport{ID: uuid.NewString(), Schema: p.schema, Entries: entries}
	h := newHandle(p, result, cs, report)

	if len(p.expose) > 0 {
		ch := reverse.New(p.expose, reverse.WithLogger(p.logger))
		if err := ch.Start(ctx, p.conn); err != nil {
			return nil, err
		}
		h.channel = ch
	}

	if p.journal != nil {
		if err := p.journal.RecordRun(ctx, report); err != nil {
			p.logger.Warn("sync not journaled", "run_id", report.ID, "error", err)
		}
	}

	p.logger.Info("sync complete",
		"run_id", report.ID,
		"schema", p.schema,
		"enabled", len(result.Enabled),
		"disabled", len(result.Disabled),
	)
	return h, nil
}

func (p *Proxier) acquire() error {
	key := p.activeKey()
	active.Lock()
	defer active.Unlock()
	if _, live := active.conns[key]; live {
		return ir.NewConfigurationError("a proxy is already active on this connection; destroy it before creating another")
	}
	active.conns[key] = struct{}{}
	return nil
}

func (p *Proxier) release() {
	key := p.activeKey()
	active.Lock()
	defer active.Unlock()
	delete(active.conns, key)
}
