package reconcile

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pgproxy/internal/compiler"
	"github.com/roach88/pgproxy/internal/ir"
	"github.com/roach88/pgproxy/internal/remote"
	"github.com/roach88/pgproxy/internal/testutil"
)

func TestClassifyEmptyRemoteIsAllNew(t *testing.T) {
	procs := compileAll(t, addFn, nameFn)

	cs := Classify(procs, nil)

	assert.Equal(t, []string{"add", "system_name"}, names(cs.New))
	assert.Empty(t, cs.Changed)
	assert.Empty(t, cs.Unchanged)
	assert.Empty(t, cs.Orphaned)
}

func TestClassifyUnchangedAgainstStoredBody(t *testing.T) {
	procs := compileAll(t, addFn)
	existing := []ir.RemoteProcedure{{Name: "pgproxy_add", Source: compiler.ExtractBody(procs[0].Source)}}

	cs := Classify(procs, existing)

	assert.Equal(t, []string{"add"}, names(cs.Unchanged))
	assert.Empty(t, cs.New)
}

func TestClassifyWhitespaceOnlyEditIsUnchanged(t *testing.T) {
	stored := compileAll(t, addFn)
	edited := addFn
	edited.Body = "\n\n    return   a +\n b;\n\t"
	procs := compileAll(t, edited)

	cs := Classify(procs, []ir.RemoteProcedure{{Name: "pgproxy_add", Source: compiler.ExtractBody(stored[0].Source)}})

	assert.Equal(t, []string{"add"}, names(cs.Unchanged))
}

func TestClassifySemanticEditIsChanged(t *testing.T) {
	stored := compileAll(t, addFn)
	existing := []ir.RemoteProcedure{{Name: "pgproxy_add", Source: compiler.ExtractBody(stored[0].Source)}}

	for name, body := range map[string]string{
		"altered": "return a - b;",
		"added":   "plv8.elog(NOTICE, 'I wanna cookie'); return a + b;",
		"removed": "return;",
	} {
		t.Run(name, func(t *testing.T) {
			edited := addFn
			edited.Body = body
			cs := Classify(compileAll(t, edited), existing)
			assert.Equal(t, []string{"add"}, names(cs.Changed))
		})
	}
}

func TestClassifySiblingSetChangeIsChanged(t *testing.T) {
	// A new sibling adds a shim to the body, so the deployed body differs.
	alone := compileAll(t, addFn)
	existing := []ir.RemoteProcedure{{Name: "pgproxy_add", Source: compiler.ExtractBody(alone[0].Source)}}

	cs := Classify(compileAll(t, addFn, nameFn), existing)

	assert.Equal(t, []string{"add"}, names(cs.Changed))
	assert.Equal(t, []string{"system_name"}, names(cs.New))
}

func TestClassifyOrphans(t *testing.T) {
	procs := compileAll(t, addFn)
	existing := []ir.RemoteProcedure{
		{Name: "pgproxy_legacy", Source: "return 1;"},
		{Name: "pgproxy_old", Source: "return 2;"},
	}

	cs := Classify(procs, existing)

	assert.Equal(t, []ir.Orphan{{Name: "legacy"}, {Name: "old"}}, cs.Orphaned)
	assert.Equal(t, []string{"add"}, names(cs.New))
}

func TestClassifyRequiresExactName(t *testing.T) {
	procs := compileAll(t, addFn)
	existing := []ir.RemoteProcedure{{Name: "pgproxy_add2", Source: compiler.ExtractBody(procs[0].Source)}}

	cs := Classify(procs, existing)

	assert.Equal(t, []string{"add"}, names(cs.New))
	assert.Equal(t, []ir.Orphan{{Name: "add2"}}, cs.Orphaned)
}

func TestDetectorDetect(t *testing.T) {
	ctx := context.Background()
	conn := testutil.NewFakeConn()
	procs := compileAll(t, addFn, nameFn)
	require.NoError(t, conn.Exec(ctx, procs[0].Source))
	conn.Seed("test", "stale", "return 0;")
	conn.Seed("other", "elsewhere", "return 0;")

	cs, err := NewDetector(conn, "test").Detect(ctx, procs)
	require.NoError(t, err)

	assert.Equal(t, []string{"add"}, names(cs.Unchanged))
	assert.Equal(t, []string{"system_name"}, names(cs.New))
	assert.Equal(t, []ir.Orphan{{Name: "stale"}}, cs.Orphaned, "other schemas are not scanned")
}

func TestClassifyNormalizationOnlyEditIsChanged(t *testing.T) {
	decomposed := ir.FunctionSpec{Name: "label", Body: "return 'cafe\u0301';"}
	composed := ir.FunctionSpec{Name: "label", Body: "return 'caf\u00e9';"}
	stored := compileAll(t, decomposed)
	existing := []ir.RemoteProcedure{{Name: "pgproxy_label", Source: compiler.ExtractBody(stored[0].Source)}}

	cs := Classify(compileAll(t, composed), existing)

	assert.Equal(t, []string{"label"}, names(cs.Changed), "composed and decomposed text are different source")
	assert.Empty(t, cs.Unchanged)
}

func TestDetectorWarnsOnNormalizationOnlyChange(t *testing.T) {
	ctx := context.Background()
	conn := testutil.NewFakeConn()
	for _, p := range compileAll(t, ir.FunctionSpec{Name: "label", Body: "return 'cafe\u0301';"}, addFn) {
		require.NoError(t, conn.Exec(ctx, p.Source))
	}

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	edited := addFn
	edited.Body = "return a - b;"
	procs := compileAll(t, ir.FunctionSpec{Name: "label", Body: "return 'caf\u00e9';"}, edited)

	cs, err := NewDetector(conn, "test", WithDetectorLogger(logger)).Detect(ctx, procs)
	require.NoError(t, err)

	assert.Equal(t, []string{"label", "add"}, names(cs.Changed))
	assert.Contains(t, logs.String(), "function changed only in unicode normalization")
	assert.Contains(t, logs.String(), "function=label")
	assert.NotContains(t, logs.String(), "function=add")
}

type failingQuerier struct{ err error }

func (f failingQuerier) Query(context.Context, string, ...any) ([]remote.Row, error) {
	return nil, f.err
}

func TestDetectorFetchWrapsRemoteError(t *testing.T) {
	cause := errors.New("connection reset")

	_, err := NewDetector(failingQuerier{err: cause}, "").Fetch(context.Background())

	assert.True(t, ir.IsRemoteError(err))
	assert.ErrorIs(t, err, cause)
}

type staticQuerier struct{ rows []remote.Row }

func (s staticQuerier) Query(context.Context, string, ...any) ([]remote.Row, error) {
	return s.rows, nil
}

func TestDetectorFetchAcceptsBytesAndRejectsMissingColumns(t *testing.T) {
	ctx := context.Background()

	procs, err := NewDetector(staticQuerier{rows: []remote.Row{
		{Columns: []string{"proname", "prosrc"}, Values: []any{[]byte("pgproxy_a"), "x"}},
	}}, "").Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ir.RemoteProcedure{{Name: "pgproxy_a", Source: "x"}}, procs)

	_, err = NewDetector(staticQuerier{rows: []remote.Row{
		{Columns: []string{"proname"}, Values: []any{"pgproxy_a"}},
	}}, "").Fetch(ctx)
	assert.ErrorContains(t, err, "prosrc")
}
