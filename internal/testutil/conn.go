package testutil

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/pgproxy/internal/compiler"
	"github.com/roach88/pgproxy/internal/ir"
	"github.com/roach88/pgproxy/internal/remote"
)

// ProcFunc is the Go stand-in for a deployed procedure body.
type ProcFunc func(args ir.Args) (ir.Value, error)

var (
	createPattern = regexp.MustCompile(`^create or replace function "([^"]+)"\."([^"]+)"\(params json\)`)
	dropPattern   = regexp.MustCompile(`^drop function if exists "([^"]+)"\."([^"]+)"\(json\)$`)
	callPattern   = regexp.MustCompile(`^select "([^"]+)"\."([^"]+)"\(\$1::json\)::text as result$`)
)

const notifySQL = "select pg_notify($1, $2)"

// FakeConn is an in-memory remote.Conn emulating the parts of PostgreSQL that
// pgproxy touches: the pg_proc catalog, create/drop of procedures, procedure
// calls and LISTEN/NOTIFY.
//
// Procedure bodies are not executed; register a ProcFunc with Implement to
// give a procedure behavior. Calls to a procedure without one return NULL.
//
// Thread-safety: All methods are safe for concurrent use.
type FakeConn struct {
	mu      sync.Mutex
	procs   map[string]map[string]string // schema -> proname -> prosrc
	impls   map[string]ProcFunc          // local function name -> behavior
	failing map[string]error             // statement substring -> error
	execs   []string
	calls   []string
	subs    map[int]fakeSub
	nextSub int
}

type fakeSub struct {
	topic  string
	handle func(remote.Notification)
}

var _ remote.Conn = (*FakeConn)(nil)

// NewFakeConn creates an empty fake database.
func NewFakeConn() *FakeConn {
	return &FakeConn{
		procs:   make(map[string]map[string]string),
		impls:   make(map[string]ProcFunc),
		failing: make(map[string]error),
		subs:    make(map[int]fakeSub),
	}
}

// Implement gives the procedure for function its behavior.
func (f *FakeConn) Implement(function string, fn ProcFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.impls[function] = fn
}

// Seed stores a procedure as if it had been created earlier.
func (f *FakeConn) Seed(schema, function, prosrc string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putLocked(schema, ir.ProcedureName(function), prosrc)
}

// FailExec makes every Exec whose statement contains substr return err.
func (f *FakeConn) FailExec(substr string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[substr] = err
}

// Procedures returns the local names of deployed procedures in schema, sorted.
func (f *FakeConn) Procedures(schema string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for proname := range f.procs[schema] {
		names = append(names, strings.TrimPrefix(proname, ir.Prefix))
	}
	slices.Sort(names)
	return names
}

// Source returns the stored prosrc of a procedure.
func (f *FakeConn) Source(schema, function string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.procs[schema][ir.ProcedureName(function)]
	return src, ok
}

// Execs returns every statement passed to Exec, in order.
func (f *FakeConn) Execs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.execs)
}

// Calls returns the qualified procedure names invoked through Query, in order.
func (f *FakeConn) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// ResetLog clears the recorded Execs and Calls.
func (f *FakeConn) ResetLog() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = nil
	f.calls = nil
}

// Subscribers returns the number of open subscriptions.
func (f *FakeConn) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Notify delivers a notification to every subscriber of topic, synchronously.
func (f *FakeConn) Notify(topic, payload string) {
	f.mu.Lock()
	var handlers []func(remote.Notification)
	for _, id := range slices.Sorted(maps.Keys(f.subs)) {
		if s := f.subs[id]; s.topic == topic {
			handlers = append(handlers, s.handle)
		}
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(remote.Notification{Topic: topic, Payload: payload})
	}
}

// Query implements remote.Querier.
func (f *FakeConn) Query(ctx context.Context, sql string, args ...any) ([]remote.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if sql == compiler.CatalogSQL {
		return f.catalog(args)
	}
	if m := callPattern.FindStringSubmatch(sql); m != nil {
		return f.call(m[1], m[2], args)
	}
	return nil, fmt.Errorf("fake: unsupported query: %s", sql)
}

// Exec implements remote.Executor.
func (f *FakeConn) Exec(ctx context.Context, sql string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	f.execs = append(f.execs, sql)
	for substr, err := range f.failing {
		if strings.Contains(sql, substr) {
			f.mu.Unlock()
			return err
		}
	}

	if sql == notifySQL {
		f.mu.Unlock()
		if len(args) != 2 {
			return fmt.Errorf("fake: pg_notify expects 2 args, got %d", len(args))
		}
		f.Notify(fmt.Sprint(args[0]), fmt.Sprint(args[1]))
		return nil
	}
	defer f.mu.Unlock()

	if m := createPattern.FindStringSubmatch(sql); m != nil {
		f.putLocked(m[1], m[2], compiler.ExtractBody(sql))
		return nil
	}
	if m := dropPattern.FindStringSubmatch(sql); m != nil {
		delete(f.procs[m[1]], m[2])
		return nil
	}
	return fmt.Errorf("fake: unsupported statement: %s", sql)
}

// Subscribe implements remote.Subscriber.
func (f *FakeConn) Subscribe(ctx context.Context, topic string, handle func(remote.Notification)) (remote.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSub++
	id := f.nextSub
	f.subs[id] = fakeSub{topic: topic, handle: handle}
	return &fakeSubscription{conn: f, id: id}, nil
}

func (f *FakeConn) putLocked(schema, proname, prosrc string) {
	if f.procs[schema] == nil {
		f.procs[schema] = make(map[string]string)
	}
	f.procs[schema][proname] = prosrc
}

func (f *FakeConn) catalog(args []any) ([]remote.Row, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("fake: catalog query expects 2 args, got %d", len(args))
	}
	schema, prefix := fmt.Sprint(args[0]), fmt.Sprint(args[1])

	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []remote.Row
	for _, proname := range slices.Sorted(maps.Keys(f.procs[schema])) {
		if strings.HasPrefix(proname, prefix) {
			rows = append(rows, remote.Row{
				Columns: []string{"proname", "prosrc"},
				Values:  []any{proname, f.procs[schema][proname]},
			})
		}
	}
	return rows, nil
}

func (f *FakeConn) call(schema, proname string, args []any) ([]remote.Row, error) {
	f.mu.Lock()
	f.calls = append(f.calls, schema+"."+proname)
	_, exists := f.procs[schema][proname]
	impl := f.impls[strings.TrimPrefix(proname, ir.Prefix)]
	f.mu.Unlock()

	if !exists {
		return nil, fmt.Errorf("ERROR: function %s.%s(json) does not exist (SQLSTATE 42883)", schema, proname)
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("fake: call expects 1 arg, got %d", len(args))
	}
	raw, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("fake: call arg must be a JSON string, got %T", args[0])
	}
	callArgs, err := ir.UnmarshalArgs([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("fake: decode args: %w", err)
	}

	row := remote.Row{Columns: []string{"result"}, Values: []any{nil}}
	if impl == nil {
		return []remote.Row{row}, nil
	}
	out, err := impl(callArgs)
	if err != nil {
		return nil, err
	}
	if out != nil {
		data, err := ir.MarshalValue(out)
		if err != nil {
			return nil, err
		}
		row.Values[0] = string(data)
	}
	return []remote.Row{row}, nil
}

type fakeSubscription struct {
	conn *FakeConn
	id   int
}

func (s *fakeSubscription) Close() error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	delete(s.conn.subs, s.id)
	return nil
}
