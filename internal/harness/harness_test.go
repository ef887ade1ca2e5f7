package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func loadAndRun(t *testing.T, name string) *Result {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	return result
}

func TestScenarios(t *testing.T) {
	defer goleak.VerifyNone(t)

	for _, name := range []string{
		"first_deploy",
		"update_refused",
		"purge_orphans",
		"reverse_call",
		"single_handle",
	} {
		t.Run(name, func(t *testing.T) {
			result := loadAndRun(t, name)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_ReverseCallArgs(t *testing.T) {
	defer goleak.VerifyNone(t)

	result := loadAndRun(t, "reverse_call")
	require.True(t, result.Pass, "errors: %v", result.Errors)

	var reverse []TraceEvent
	for _, e := range result.Trace {
		if e.Type == EventReverseCall {
			reverse = append(reverse, e)
		}
	}
	require.Len(t, reverse, 1)
	assert.Equal(t, 2, reverse[0].Step)
	assert.Equal(t, []any{"hello", int64(7)}, reverse[0].Args)
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	s := &Scenario{
		Name:        "wrong_expectations",
		Description: "Every expectation here is wrong",
		Returns:     map[string]any{"add": 5},
		Steps: []Step{
			{Sync: &SyncStep{
				Functions: map[string]FunctionDef{"add": {Params: []string{"a", "b"}, Body: "return a + b;"}},
				Expect:    &SyncExpect{Changed: []string{"add"}},
			}},
			{Call: &CallStep{
				Function: "add",
				Args:     []any{2, 3},
				Expect:   &CallExpect{Result: 6},
			}},
			{Call: &CallStep{
				Function: "missing",
				Expect:   &CallExpect{Result: 1},
			}},
		},
		Assertions: []Assertion{
			{Type: AssertRemoteState, Functions: []string{}},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "steps[0].sync: changed = [], want [add]")
	assert.Contains(t, result.Errors[1], "steps[1].call: result = 5, want 6")
	assert.Contains(t, result.Errors[2], "steps[2].call: unexpected error UNKNOWN_FUNCTION")
	assert.Contains(t, result.Errors[3], "assertions[0]:")
}

func TestRun_CallWithoutHandle(t *testing.T) {
	s := &Scenario{
		Name:        "no_handle",
		Description: "Calls before any sync fail the scenario",
		Steps: []Step{
			{Call: &CallStep{Function: "add"}},
			{Destroy: true},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Event: EventCall, Count: 0},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "steps[0].call: no handle")
	assert.Contains(t, result.Errors[1], "steps[1].destroy: no handle")
}

func TestRun_CompileErrorIsTraced(t *testing.T) {
	s := &Scenario{
		Name:        "compile_error",
		Description: "An invalid function name fails the sync",
		Steps: []Step{
			{Sync: &SyncStep{
				Functions: map[string]FunctionDef{"bad-name": {Body: "return 1;"}},
				Expect:    &SyncExpect{Error: "E202"},
			}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceContains, Event: EventSyncFailed},
			{Type: AssertRemoteState, Functions: []string{}},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, "E202", result.Trace[0].Error)
}

func TestRun_UnexpectedSuccess(t *testing.T) {
	s := &Scenario{
		Name:        "unexpected_success",
		Description: "A sync expected to fail succeeds",
		Steps: []Step{
			{Sync: &SyncStep{
				Functions: map[string]FunctionDef{"add": {Params: []string{"a"}, Body: "return a;"}},
				Expect:    &SyncExpect{Error: "CONFIGURATION"},
			}},
		},
		Assertions: []Assertion{
			{Type: AssertRemoteState, Functions: []string{"add"}},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected error CONFIGURATION, sync succeeded")
}

func TestRun_RejectsUnsupportedReturns(t *testing.T) {
	s := &Scenario{
		Name:        "bad_returns",
		Description: "Returns must be JSON-shaped",
		Returns:     map[string]any{"add": struct{}{}},
		Steps:       []Step{{Destroy: true}},
		Assertions:  []Assertion{{Type: AssertTraceCount, Event: EventDestroy}},
	}

	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `returns["add"]`)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &Scenario{
		Name:        "cancelled",
		Description: "A cancelled context stops the run",
		Steps:       []Step{{Destroy: true}},
		Assertions:  []Assertion{{Type: AssertTraceCount, Event: EventDestroy}},
	}
	_, err := Run(ctx, s)
	require.ErrorIs(t, err, context.Canceled)
}
