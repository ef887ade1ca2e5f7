package reconcile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/pgproxy/internal/compiler"
	"github.com/roach88/pgproxy/internal/ir"
)

// compileAll compiles fns into schema "test".
func compileAll(t *testing.T, fns ...ir.FunctionSpec) []ir.Procedure {
	t.Helper()
	procs, err := compiler.CompileBatch(fns, compiler.Options{Schema: "test"})
	require.NoError(t, err)
	return procs
}

func names(procs []ir.Procedure) []string {
	out := make([]string, 0, len(procs))
	for _, p := range procs {
		out = append(out, p.Name())
	}
	return out
}

var (
	addFn  = ir.FunctionSpec{Name: "add", Params: []string{"a", "b"}, Body: "return a + b;"}
	nameFn = ir.FunctionSpec{Name: "system_name", Params: []string{"name"}, Body: "return name.toLowerCase();"}
)
