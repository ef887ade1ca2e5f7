package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"first_deploy", "update_refused"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestMarshalSnapshot_OmitsEmptyFields(t *testing.T) {
	result := NewResult()
	result.add(TraceEvent{Step: 1, Type: EventDestroy})

	data, err := MarshalSnapshot("tiny", result)
	require.NoError(t, err)
	assert.Equal(t, `{
  "scenario_name": "tiny",
  "trace": [
    {
      "step": 1,
      "type": "destroy"
    }
  ],
  "remote": []
}
`, string(data))
}
