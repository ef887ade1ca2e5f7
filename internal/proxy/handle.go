package proxy

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync/atomic"

	"github.com/roach88/pgproxy/internal/compiler"
	"github.com/roach88/pgproxy/internal/ir"
	"github.com/roach88/pgproxy/internal/remote"
	"github.com/roach88/pgproxy/internal/reverse"
)

type entry struct {
	proc    ir.Procedure
	enabled bool
}

// Handle is the callable surface produced by one sync.
type Handle struct {
	owner   *Proxier
	conn    remote.Querier
	schema  string
	funcs   map[string]entry
	changes ir.ChangeSet
	result  ir.Result
	report  ir.SyncReport
	channel *reverse.Channel

	destroyed atomic.Bool
}

func newHandle(owner *Proxier, result ir.Result, cs ir.ChangeSet, report ir.SyncReport) *Handle {
	h := &Handle{
		owner:   owner,
		conn:    owner.conn,
		schema:  owner.schema,
		funcs:   make(map[string]entry, len(result.Enabled)+len(result.Disabled)),
		changes: cs,
		result:  result,
		report:  report,
	}
	for _, p := range result.Enabled {
		h.funcs[p.Name()] = entry{proc: p, enabled: true}
	}
	for _, p := range result.Disabled {
		h.funcs[p.Name()] = entry{proc: p}
	}
	return h
}

// Call invokes the named function with args in order and returns its decoded
// result. A SQL NULL result, or no result at all, is ir.Null{}.
func (h *Handle) Call(ctx context.Context, name string, args ...ir.Value) (ir.Value, error) {
	if h.destroyed.Load() {
		return nil, ir.NewDestroyedError(name)
	}
	fn, ok := h.funcs[name]
	if !ok {
		return nil, ir.NewUnknownFunctionError(name)
	}
	if !fn.enabled {
		return nil, ir.NewDisabledError(name)
	}

	payload, err := ir.MarshalArgs(ir.Args(args))
	if err != nil {
		return nil, fmt.Errorf("encode arguments for %s: %w", name, err)
	}

	rows, err := h.conn.Query(ctx, compiler.CallSQL(h.schema, name), string(payload))
	if err != nil {
		return nil, &ir.RemoteError{Op: "call", Function: name, Err: err}
	}
	return decodeResult(name, rows)
}

func decodeResult(name string, rows []remote.Row) (ir.Value, error) {
	if len(rows) == 0 {
		return ir.Null{}, nil
	}
	raw, ok := rows[0].First()
	if !ok {
		return ir.Null{}, nil
	}

	var data []byte
	switch v := raw.(type) {
	case nil:
		return ir.Null{}, nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return nil, fmt.Errorf("result of %s: unexpected column type %T", name, raw)
	}

	val, err := ir.UnmarshalValue(data)
	if err != nil {
		return nil, fmt.Errorf("decode result of %s: %w", name, err)
	}
	return val, nil
}

// Has reports whether name is part of the proxy surface, enabled or not.
func (h *Handle) Has(name string) bool {
	_, ok := h.funcs[name]
	return ok
}

// Enabled returns the names of callable functions, sorted.
func (h *Handle) Enabled() []string {
	return h.names(true)
}

// Disabled returns the names of functions refused by the sync policy, sorted.
func (h *Handle) Disabled() []string {
	return h.names(false)
}

func (h *Handle) names(enabled bool) []string {
	var out []string
	for _, name := range slices.Sorted(maps.Keys(h.funcs)) {
		if h.funcs[name].enabled == enabled {
			out = append(out, name)
		}
	}
	return out
}

// Result returns the enabled and disabled procedures.
func (h *Handle) Result() ir.Result {
	return h.result
}

// Changes returns the classification the sync acted on.
func (h *Handle) Changes() ir.ChangeSet {
	return h.changes
}

// Report returns the per-function outcome of the sync.
func (h *Handle) Report() ir.SyncReport {
	return h.report
}

// Listening reports whether the reverse channel is active.
func (h *Handle) Listening() bool {
	return h.channel != nil && h.channel.Listening()
}

// Wait blocks until every reverse call dispatched so far has returned.
func (h *Handle) Wait() {
	if h.channel != nil {
		h.channel.Wait()
	}
}

// Destroy stops the reverse channel and releases the Proxier for another
// Create. Later calls are no-ops.
func (h *Handle) Destroy() error {
	if !h.destroyed.CompareAndSwap(false, true) {
		return nil
	}
	defer h.owner.release()

	if h.channel != nil {
		return h.channel.Stop()
	}
	return nil
}
