package reconcile

import (
	"context"
	"io"
	"log/slog"

	"github.com/roach88/pgproxy/internal/compiler"
	"github.com/roach88/pgproxy/internal/ir"
	"github.com/roach88/pgproxy/internal/remote"
)

// Policy decides what the synchronizer may write.
type Policy struct {
	CreateNew     bool // deploy functions missing on the server
	UpdateChanged bool // overwrite functions whose body drifted
	PurgeOrphaned bool // drop prefixed procedures that were not requested
}

// DefaultPolicy creates and updates, and never purges.
func DefaultPolicy() Policy {
	return Policy{CreateNew: true, UpdateChanged: true, PurgeOrphaned: false}
}

// Synchronizer applies a Policy to a ChangeSet.
type Synchronizer struct {
	exec   remote.Executor
	schema string
	logger *slog.Logger
}

// SynchronizerOption configures a Synchronizer.
type SynchronizerOption func(*Synchronizer)

// WithLogger sets the logger for write decisions.
func WithLogger(logger *slog.Logger) SynchronizerOption {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

// NewSynchronizer creates a Synchronizer writing to schema through exec.
func NewSynchronizer(exec remote.Executor, schema string, opts ...SynchronizerOption) *Synchronizer {
	if schema == "" {
		schema = ir.DefaultSchema
	}
	s := &Synchronizer{
		exec:   exec,
		schema: schema,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply reconciles each function independently:
//   - unchanged: enabled, no write
//   - new: created and enabled if CreateNew, else disabled
//   - changed: overwritten and enabled if UpdateChanged, else disabled
//   - orphaned: dropped if PurgeOrphaned, else left alone; never in Result
//
// Writes run sequentially: new, then changed, then orphans. The first remote
// failure stops the batch. The partial Result and report entries gathered so
// far are returned with the error.
func (s *Synchronizer) Apply(ctx context.Context, cs ir.ChangeSet, policy Policy) (ir.Result, []ir.ReportEntry, error) {
	var result ir.Result
	var entries []ir.ReportEntry

	record := func(p ir.Procedure, class ir.Class, outcome ir.Outcome) {
		entries = append(entries, ir.ReportEntry{
			Function: p.Name(),
			Class:    class,
			Outcome:  outcome,
			Digest:   ir.Digest(compiler.ExtractBody(p.Source)),
		})
	}

	for _, p := range cs.Unchanged {
		result.Enabled = append(result.Enabled, p)
		record(p, ir.ClassUnchanged, ir.OutcomeEnabled)
	}

	for _, p := range cs.New {
		if !policy.CreateNew {
			// The remote counterpart does not exist; calling it would fail
			// far less legibly at the server.
			s.logger.Warn("new function disabled by policy", "function", p.Name())
			result.Disabled = append(result.Disabled, p)
			record(p, ir.ClassNew, ir.OutcomeDisabled)
			continue
		}
		if err := s.exec.Exec(ctx, p.Source); err != nil {
			return result, entries, &ir.RemoteError{Op: "create", Function: p.Name(), Err: err}
		}
		s.logger.Info("function created", "function", p.Name(), "procedure", p.QualifiedName)
		result.Enabled = append(result.Enabled, p)
		record(p, ir.ClassNew, ir.OutcomeCreated)
	}

	for _, p := range cs.Changed {
		if !policy.UpdateChanged {
			// Remote behavior no longer matches local source; refuse to run it.
			s.logger.Warn("changed function disabled by policy", "function", p.Name())
			result.Disabled = append(result.Disabled, p)
			record(p, ir.ClassChanged, ir.OutcomeDisabled)
			continue
		}
		if err := s.exec.Exec(ctx, p.Source); err != nil {
			return result, entries, &ir.RemoteError{Op: "update", Function: p.Name(), Err: err}
		}
		s.logger.Info("function updated", "function", p.Name(), "procedure", p.QualifiedName)
		result.Enabled = append(result.Enabled, p)
		record(p, ir.ClassChanged, ir.OutcomeUpdated)
	}

	for _, o := range cs.Orphaned {
		entry := ir.ReportEntry{Function: o.Name, Class: ir.ClassOrphaned, Outcome: ir.OutcomeKept}
		if policy.PurgeOrphaned {
			if err := s.exec.Exec(ctx, compiler.DropSQL(s.schema, o.Name)); err != nil {
				return result, entries, &ir.RemoteError{Op: "purge", Function: o.Name, Err: err}
			}
			s.logger.Info("orphaned function purged", "function", o.Name)
			entry.Outcome = ir.OutcomePurged
		}
		entries = append(entries, entry)
	}

	return result, entries, nil
}
