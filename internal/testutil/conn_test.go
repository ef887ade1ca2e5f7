package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pgproxy/internal/compiler"
	"github.com/roach88/pgproxy/internal/ir"
	"github.com/roach88/pgproxy/internal/remote"
)

func TestFakeConnCreateAndCatalog(t *testing.T) {
	ctx := context.Background()
	f := NewFakeConn()

	proc, err := compiler.Compile(ir.FunctionSpec{Name: "add", Params: []string{"a", "b"}, Body: "return a + b;"}, nil, compiler.Options{Schema: "test"})
	require.NoError(t, err)
	require.NoError(t, f.Exec(ctx, proc.Source))

	rows, err := f.Query(ctx, compiler.CatalogSQL, "test", ir.Prefix)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	name, _ := rows[0].Get("proname")
	src, _ := rows[0].Get("prosrc")
	assert.Equal(t, "pgproxy_add", name)
	assert.Equal(t, compiler.ExtractBody(proc.Source), src)

	rows, err = f.Query(ctx, compiler.CatalogSQL, "public", ir.Prefix)
	require.NoError(t, err)
	assert.Empty(t, rows, "catalog is scoped to the schema")
}

func TestFakeConnCallAndDrop(t *testing.T) {
	ctx := context.Background()
	f := NewFakeConn()
	f.Seed("s", "add", "return a + b;")
	f.Implement("add", func(args ir.Args) (ir.Value, error) {
		return args[0].(ir.Int) + args[1].(ir.Int), nil
	})

	rows, err := f.Query(ctx, compiler.CallSQL("s", "add"), `[2,3]`)
	require.NoError(t, err)
	v, _ := rows[0].First()
	assert.Equal(t, "5", v)
	assert.Equal(t, []string{"s.pgproxy_add"}, f.Calls())

	require.NoError(t, f.Exec(ctx, compiler.DropSQL("s", "add")))
	assert.Empty(t, f.Procedures("s"))

	_, err = f.Query(ctx, compiler.CallSQL("s", "add"), `[2,3]`)
	assert.ErrorContains(t, err, "does not exist")
}

func TestFakeConnFailExec(t *testing.T) {
	f := NewFakeConn()
	boom := errors.New("syntax error")
	f.FailExec(`"pgproxy_bad"`, boom)

	err := f.Exec(context.Background(), `create or replace function "s"."pgproxy_bad"(params json) ...`)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, f.Execs(), 1)
}

func TestFakeConnNotify(t *testing.T) {
	ctx := context.Background()
	f := NewFakeConn()

	var got []remote.Notification
	sub, err := f.Subscribe(ctx, ir.Topic, func(n remote.Notification) { got = append(got, n) })
	require.NoError(t, err)
	assert.Equal(t, 1, f.Subscribers())

	require.NoError(t, f.Exec(ctx, "select pg_notify($1, $2)", ir.Topic, `{"fn":"x"}`))
	f.Notify("other", "ignored")

	require.Len(t, got, 1)
	assert.Equal(t, `{"fn":"x"}`, got[0].Payload)

	require.NoError(t, sub.Close())
	assert.Equal(t, 0, f.Subscribers())
	f.Notify(ir.Topic, "after close")
	assert.Len(t, got, 1)
}
