package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the target schema. Empty means public.
	Schema string `yaml:"schema,omitempty"`

	// Policy configures the Proxier. Unset fields keep the defaults.
	Policy PolicySpec `yaml:"policy,omitempty"`

	// Expose lists reverse-callable function names. Each one records a
	// reverse_call event when invoked.
	Expose []string `yaml:"expose,omitempty"`

	// Seed maps function names to procedure sources that exist before the
	// first step, as if an earlier deployment left them behind.
	Seed map[string]string `yaml:"seed,omitempty"`

	// Returns maps function names to the value their procedure returns when
	// called. Procedures without an entry return NULL.
	Returns map[string]any `yaml:"returns,omitempty"`

	// Steps run in order against one Proxier.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and remote state.
	Assertions []Assertion `yaml:"assertions"`
}

// PolicySpec mirrors the Proxier policy options.
type PolicySpec struct {
	CreateNew     *bool `yaml:"create_new,omitempty"`
	UpdateChanged *bool `yaml:"update_changed,omitempty"`
	PurgeOrphaned *bool `yaml:"purge_orphaned,omitempty"`
}

// Step is exactly one of its fields.
type Step struct {
	Sync    *SyncStep   `yaml:"sync,omitempty"`
	Call    *CallStep   `yaml:"call,omitempty"`
	Notify  *NotifyStep `yaml:"notify,omitempty"`
	Destroy bool        `yaml:"destroy,omitempty"`
}

// FunctionDef is one function of a sync batch.
type FunctionDef struct {
	Params []string `yaml:"params"`
	Body   string   `yaml:"body"`
}

// SyncStep runs Proxier.Create over a batch.
type SyncStep struct {
	Functions map[string]FunctionDef `yaml:"functions"`
	Expect    *SyncExpect            `yaml:"expect,omitempty"`
}

// SyncExpect lists expected function names per category. Nil lists are not
// checked; an empty list means none.
type SyncExpect struct {
	Error     string   `yaml:"error,omitempty"`
	Enabled   []string `yaml:"enabled,omitempty"`
	Disabled  []string `yaml:"disabled,omitempty"`
	New       []string `yaml:"new,omitempty"`
	Changed   []string `yaml:"changed,omitempty"`
	Unchanged []string `yaml:"unchanged,omitempty"`
	Orphaned  []string `yaml:"orphaned,omitempty"`
}

// CallStep calls a function through the current Handle.
type CallStep struct {
	Function string      `yaml:"function"`
	Args     []any       `yaml:"args,omitempty"`
	Expect   *CallExpect `yaml:"expect,omitempty"`
}

// CallExpect is either an error code or a result value.
type CallExpect struct {
	Error  string `yaml:"error,omitempty"`
	Result any    `yaml:"result,omitempty"`
}

// NotifyStep delivers a raw payload on the reverse-call topic, as the
// database would when a procedure calls back.
type NotifyStep struct {
	Payload string `yaml:"payload"`
	Topic   string `yaml:"topic,omitempty"`
}

// Assertion validates the trace or the remote catalog.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, remote_state.
	Type string `yaml:"type"`

	// Event is the trace event type (trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Function narrows Event to one function.
	Function string `yaml:"function,omitempty"`

	// Count is the expected number of matches (trace_count).
	Count int `yaml:"count,omitempty"`

	// Events are event keys in expected order (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Functions is the exact deployed set (remote_state).
	Functions []string `yaml:"functions,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertRemoteState   = "remote_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step) error {
	set := 0
	if step.Sync != nil {
		set++
	}
	if step.Call != nil {
		set++
	}
	if step.Notify != nil {
		set++
	}
	if step.Destroy {
		set++
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of sync, call, notify, destroy is required", index)
	}

	switch {
	case step.Sync != nil:
		for name, fn := range step.Sync.Functions {
			if strings.TrimSpace(fn.Body) == "" {
				return fmt.Errorf("steps[%d].sync: function %q has an empty body", index, name)
			}
		}
	case step.Call != nil:
		if step.Call.Function == "" {
			return fmt.Errorf("steps[%d].call: function is required", index)
		}
		if e := step.Call.Expect; e != nil && e.Error != "" && e.Result != nil {
			return fmt.Errorf("steps[%d].call.expect: error and result are mutually exclusive", index)
		}
	case step.Notify != nil:
		if step.Notify.Payload == "" {
			return fmt.Errorf("steps[%d].notify: payload is required", index)
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertRemoteState:
		if a.Functions == nil {
			return fmt.Errorf("assertions[%d]: functions is required for remote_state (use [] for none)", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
