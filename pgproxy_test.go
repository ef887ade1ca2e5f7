package pgproxy_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pgproxy"
	"github.com/roach88/pgproxy/internal/ir"
	"github.com/roach88/pgproxy/internal/testutil"
)

func TestCreate(t *testing.T) {
	conn := testutil.NewFakeConn()
	conn.Implement("add", func(args ir.Args) (ir.Value, error) {
		return args[0].(ir.Int) + args[1].(ir.Int), nil
	})

	h, err := pgproxy.Create(context.Background(), conn, []pgproxy.FunctionSpec{
		{Name: "add", Params: []string{"a", "b"}, Body: "return a + b;"},
	}, pgproxy.WithSchema("app"))
	require.NoError(t, err)
	defer h.Destroy()

	sum, err := h.Call(context.Background(), "add", pgproxy.Int(2), pgproxy.Int(3))
	require.NoError(t, err)
	assert.Equal(t, pgproxy.Int(5), sum)
	assert.Equal(t, []string{"add"}, conn.Procedures("app"))
}

func TestNew_NilConn(t *testing.T) {
	_, err := pgproxy.New(nil)
	assert.True(t, pgproxy.IsConfigurationError(err))
}

func TestCreate_OneLiveHandlePerConnection(t *testing.T) {
	ctx := context.Background()
	conn := testutil.NewFakeConn()
	fns := []pgproxy.FunctionSpec{{Name: "add", Params: []string{"a", "b"}, Body: "return a + b;"}}

	var dispatched atomic.Int32
	expose := pgproxy.WithExpose(map[string]pgproxy.ReverseFunc{
		"log": func(context.Context, pgproxy.Args) error {
			dispatched.Add(1)
			return nil
		},
	})

	h, err := pgproxy.Create(ctx, conn, fns, expose)
	require.NoError(t, err)

	_, err = pgproxy.Create(ctx, conn, fns, expose)
	require.Error(t, err)
	assert.True(t, pgproxy.IsConfigurationError(err))
	assert.Equal(t, 1, conn.Subscribers())

	conn.Notify(ir.Topic, `{"fn":"log","params":[],"action":"call"}`)
	h.Wait()
	assert.Equal(t, int32(1), dispatched.Load())

	require.NoError(t, h.Destroy())
	again, err := pgproxy.Create(ctx, conn, fns)
	require.NoError(t, err)
	require.NoError(t, again.Destroy())
}
