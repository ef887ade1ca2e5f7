// Package pgproxy synchronizes named local function definitions with plv8
// stored procedures in PostgreSQL and returns a proxy for calling them.
//
// Functions whose remote definition is missing or out of date are either
// written to the database or disabled, depending on policy. A disabled
// function fails every call without contacting the database.
//
// Functions registered with WithExpose can be called from procedure bodies;
// those calls arrive over LISTEN/NOTIFY, one way, with no reply.
//
//	conn, err := pgproxy.Open(ctx, "postgres://localhost/app")
//	if err != nil { ... }
//	defer conn.Close()
//
//	p, err := pgproxy.New(conn, pgproxy.WithSchema("app"))
//	h, err := p.Create(ctx, []pgproxy.FunctionSpec{
//		{Name: "add", Params: []string{"a", "b"}, Body: "return a + b;"},
//	})
//	defer h.Destroy()
//
//	sum, err := h.Call(ctx, "add", pgproxy.Int(2), pgproxy.Int(3))
package pgproxy

import (
	"context"

	"github.com/roach88/pgproxy/internal/ir"
	"github.com/roach88/pgproxy/internal/proxy"
	"github.com/roach88/pgproxy/internal/remote"
	"github.com/roach88/pgproxy/internal/reverse"
)

type (
	FunctionSpec = ir.FunctionSpec
	ChangeSet    = ir.ChangeSet
	SyncReport   = ir.SyncReport
	Error        = ir.Error
	RemoteError  = ir.RemoteError

	Value  = ir.Value
	Args   = ir.Args
	Null   = ir.Null
	String = ir.String
	Int    = ir.Int
	Float  = ir.Float
	Bool   = ir.Bool
	Array  = ir.Array
	Object = ir.Object

	Proxier = proxy.Proxier
	Handle  = proxy.Handle
	Option  = proxy.Option
	Journal = proxy.Journal

	// ReverseFunc is a local function callable from procedure bodies.
	ReverseFunc = reverse.Func

	Conn = remote.Conn
	Pool = remote.Pool
)

var (
	WithSchema        = proxy.WithSchema
	WithCreateNew     = proxy.WithCreateNew
	WithUpdateChanged = proxy.WithUpdateChanged
	WithPurgeOrphaned = proxy.WithPurgeOrphaned
	WithExpose        = proxy.WithExpose
	WithLogger        = proxy.WithLogger
	WithJournal       = proxy.WithJournal

	IsConfigurationError   = ir.IsConfigurationError
	IsDisabledError        = ir.IsDisabledError
	IsUnknownFunctionError = ir.IsUnknownFunctionError
	IsDestroyedError       = ir.IsDestroyedError
	IsRemoteError          = ir.IsRemoteError
)

// Open connects a pgx pool to dsn.
func Open(ctx context.Context, dsn string) (*Pool, error) {
	return remote.Open(ctx, dsn)
}

// New creates a Proxier over conn.
func New(conn Conn, opts ...Option) (*Proxier, error) {
	return proxy.New(conn, opts...)
}

// Create synchronizes fns over conn and returns a live Handle in one step.
func Create(ctx context.Context, conn Conn, fns []FunctionSpec, opts ...Option) (*Handle, error) {
	p, err := proxy.New(conn, opts...)
	if err != nil {
		return nil, err
	}
	return p.Create(ctx, fns)
}
