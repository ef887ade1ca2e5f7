package harness

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/pgproxy/internal/compiler"
	"github.com/roach88/pgproxy/internal/ir"
	"github.com/roach88/pgproxy/internal/proxy"
	"github.com/roach88/pgproxy/internal/reverse"
	"github.com/roach88/pgproxy/internal/testutil"
)

var writePattern = regexp.MustCompile(`^(create or replace|drop) function (?:if exists )?"[^"]+"\."` +
	regexp.QuoteMeta(ir.Prefix) + `([^"]+)"`)

// runner holds the state of one scenario execution.
type runner struct {
	scenario *Scenario
	schema   string
	conn     *testutil.FakeConn
	proxier  *proxy.Proxier
	handle   *proxy.Handle
	result   *Result
	step     int

	mu      sync.Mutex
	reverse []TraceEvent // reverse calls not yet moved into the trace
}

// Run executes a scenario against a fresh in-memory database.
//
// Expect clauses and assertions that do not hold are reported through
// Result.Errors. The returned error is reserved for scenarios that cannot be
// set up at all.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	schema := s.Schema
	if schema == "" {
		schema = ir.DefaultSchema
	}

	r := &runner{
		scenario: s,
		schema:   schema,
		conn:     testutil.NewFakeConn(),
		result:   NewResult(),
	}

	for name, src := range s.Seed {
		r.conn.Seed(schema, name, src)
	}
	for name, raw := range s.Returns {
		val, err := ir.FromGo(raw)
		if err != nil {
			return nil, fmt.Errorf("returns[%q]: %w", name, err)
		}
		r.conn.Implement(name, func(ir.Args) (ir.Value, error) { return val, nil })
	}

	p, err := proxy.New(r.conn, r.options()...)
	if err != nil {
		return nil, fmt.Errorf("create proxier: %w", err)
	}
	r.proxier = p
	defer r.cleanup()

	for i := range s.Steps {
		r.step = i + 1
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.runStep(ctx, &s.Steps[i])
	}

	if remote := r.conn.Procedures(schema); remote != nil {
		r.result.Remote = remote
	}
	for i, a := range s.Assertions {
		if err := runAssertion(r.result, a); err != nil {
			r.result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return r.result, nil
}

func (r *runner) options() []proxy.Option {
	opts := []proxy.Option{proxy.WithSchema(r.schema)}
	if v := r.scenario.Policy.CreateNew; v != nil {
		opts = append(opts, proxy.WithCreateNew(*v))
	}
	if v := r.scenario.Policy.UpdateChanged; v != nil {
		opts = append(opts, proxy.WithUpdateChanged(*v))
	}
	if v := r.scenario.Policy.PurgeOrphaned; v != nil {
		opts = append(opts, proxy.WithPurgeOrphaned(*v))
	}
	if len(r.scenario.Expose) > 0 {
		funcs := make(map[string]reverse.Func, len(r.scenario.Expose))
		for _, name := range r.scenario.Expose {
			funcs[name] = r.recorder(name)
		}
		opts = append(opts, proxy.WithExpose(funcs))
	}
	return opts
}

// recorder returns an exposed function that logs its invocation.
func (r *runner) recorder(name string) reverse.Func {
	return func(_ context.Context, args ir.Args) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.reverse = append(r.reverse, TraceEvent{
			Type:     EventReverseCall,
			Function: name,
			Args:     argsTrace(args),
		})
		return nil
	}
}

func (r *runner) runStep(ctx context.Context, step *Step) {
	switch {
	case step.Sync != nil:
		r.sync(ctx, step.Sync)
	case step.Call != nil:
		r.call(ctx, step.Call)
	case step.Notify != nil:
		r.notify(step.Notify)
	case step.Destroy:
		r.destroy()
	}
}

func (r *runner) fail(kind, format string, args ...any) {
	r.result.AddError(fmt.Sprintf("steps[%d].%s: %s", r.step-1, kind, fmt.Sprintf(format, args...)))
}

func (r *runner) sync(ctx context.Context, st *SyncStep) {
	fns := make([]ir.FunctionSpec, 0, len(st.Functions))
	for _, name := range slices.Sorted(maps.Keys(st.Functions)) {
		def := st.Functions[name]
		fns = append(fns, ir.FunctionSpec{Name: name, Params: def.Params, Body: def.Body})
	}

	r.conn.ResetLog()
	h, err := r.proxier.Create(ctx, fns)
	r.recordWrites()

	expect := st.Expect
	if expect == nil {
		expect = &SyncExpect{}
	}
	if err != nil {
		code := errorCode(err)
		r.result.add(TraceEvent{Step: r.step, Type: EventSyncFailed, Error: code})
		if expect.Error != code {
			r.fail("sync", "unexpected error %s: %v", code, err)
		}
		return
	}
	r.handle = h

	for _, e := range h.Report().Entries {
		r.result.add(TraceEvent{
			Step:     r.step,
			Type:     EventSync,
			Function: e.Function,
			Class:    string(e.Class),
			Outcome:  string(e.Outcome),
		})
	}

	if expect.Error != "" {
		r.fail("sync", "expected error %s, sync succeeded", expect.Error)
	}
	cs := h.Changes()
	r.checkNames("enabled", expect.Enabled, h.Enabled())
	r.checkNames("disabled", expect.Disabled, h.Disabled())
	r.checkNames("new", expect.New, procNames(cs.New))
	r.checkNames("changed", expect.Changed, procNames(cs.Changed))
	r.checkNames("unchanged", expect.Unchanged, procNames(cs.Unchanged))
	orphans := make([]string, 0, len(cs.Orphaned))
	for _, o := range cs.Orphaned {
		orphans = append(orphans, o.Name)
	}
	r.checkNames("orphaned", expect.Orphaned, orphans)
}

func (r *runner) checkNames(label string, want, got []string) {
	if want == nil {
		return
	}
	want = slices.Sorted(slices.Values(want))
	got = slices.Sorted(slices.Values(got))
	if !slices.Equal(want, got) {
		r.fail("sync", "%s = %v, want %v", label, got, want)
	}
}

func (r *runner) call(ctx context.Context, st *CallStep) {
	if r.handle == nil {
		r.fail("call", "no handle: a sync step must succeed first")
		return
	}
	args, err := ir.ArgsOf(st.Args...)
	if err != nil {
		r.fail("call", "args: %v", err)
		return
	}

	r.conn.ResetLog()
	val, callErr := r.handle.Call(ctx, st.Function, args...)
	r.recordRemoteCalls()

	event := TraceEvent{Step: r.step, Type: EventCall, Function: st.Function, Args: argsTrace(args)}
	if callErr != nil {
		event.Error = errorCode(callErr)
	} else {
		event.Result = ir.ToGo(val)
	}
	r.result.add(event)

	expect := st.Expect
	if expect == nil {
		return
	}
	if callErr != nil {
		if expect.Error != event.Error {
			r.fail("call", "unexpected error %s: %v", event.Error, callErr)
		}
		return
	}
	if expect.Error != "" {
		r.fail("call", "expected error %s, got result %v", expect.Error, event.Result)
		return
	}
	if expect.Result != nil {
		if err := sameValue(expect.Result, val); err != nil {
			r.fail("call", "%v", err)
		}
	}
}

func (r *runner) notify(st *NotifyStep) {
	topic := st.Topic
	if topic == "" {
		topic = ir.Topic
	}
	r.conn.Notify(topic, st.Payload)
	if r.handle != nil {
		r.handle.Wait()
	}
	r.drainReverse()
}

func (r *runner) destroy() {
	if r.handle == nil {
		r.fail("destroy", "no handle: a sync step must succeed first")
		return
	}
	if err := r.handle.Destroy(); err != nil {
		r.fail("destroy", "%v", err)
	}
	r.handle.Wait()
	r.drainReverse()
	r.result.add(TraceEvent{Step: r.step, Type: EventDestroy})
}

func (r *runner) cleanup() {
	if r.handle != nil {
		_ = r.handle.Destroy()
		r.handle.Wait()
	}
}

// recordWrites turns logged create and drop statements into write events.
func (r *runner) recordWrites() {
	for _, stmt := range r.conn.Execs() {
		m := writePattern.FindStringSubmatch(stmt)
		if m == nil {
			continue
		}
		verb := "create"
		if m[1] == "drop" {
			verb = "drop"
		}
		r.result.add(TraceEvent{Step: r.step, Type: EventWrite, Function: m[2], Statement: verb})
	}
}

func (r *runner) recordRemoteCalls() {
	for _, qualified := range r.conn.Calls() {
		_, proname, _ := strings.Cut(qualified, ".")
		r.result.add(TraceEvent{
			Step:     r.step,
			Type:     EventRemoteCall,
			Function: strings.TrimPrefix(proname, ir.Prefix),
		})
	}
}

func (r *runner) drainReverse() {
	r.mu.Lock()
	pending := r.reverse
	r.reverse = nil
	r.mu.Unlock()

	for _, e := range pending {
		e.Step = r.step
		r.result.add(e)
	}
}

func procNames(procs []ir.Procedure) []string {
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		names = append(names, p.Name())
	}
	return names
}

func argsTrace(args ir.Args) any {
	if len(args) == 0 {
		return nil
	}
	return ir.ToGo(ir.Array(args))
}

// sameValue compares an expected YAML value with a call result by their
// canonical JSON encoding.
func sameValue(want any, got ir.Value) error {
	wantVal, err := ir.FromGo(want)
	if err != nil {
		return fmt.Errorf("expected result: %w", err)
	}
	wantJSON, err := ir.MarshalValue(wantVal)
	if err != nil {
		return fmt.Errorf("expected result: %w", err)
	}
	gotJSON, err := ir.MarshalValue(got)
	if err != nil {
		return fmt.Errorf("result: %w", err)
	}
	if string(wantJSON) != string(gotJSON) {
		return fmt.Errorf("result = %s, want %s", gotJSON, wantJSON)
	}
	return nil
}

// errorCode maps an error to the code used in traces and expect clauses.
func errorCode(err error) string {
	var irErr *ir.Error
	if errors.As(err, &irErr) {
		return string(irErr.Code)
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return compileErr.Code
	}
	if ir.IsRemoteError(err) {
		return "REMOTE"
	}
	return "UNKNOWN"
}
