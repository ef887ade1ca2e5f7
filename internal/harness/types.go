package harness

// Trace event types.
const (
	EventWrite       = "write"
	EventSync        = "sync"
	EventSyncFailed  = "sync_failed"
	EventRemoteCall  = "remote_call"
	EventCall        = "call"
	EventReverseCall = "reverse_call"
	EventDestroy     = "destroy"
)

// TraceEvent is one observable effect of a scenario step.
type TraceEvent struct {
	Step      int    `json:"step"`
	Type      string `json:"type"`
	Function  string `json:"function,omitempty"`
	Statement string `json:"statement,omitempty"` // "create" or "drop", write events only
	Class     string `json:"class,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Args      any    `json:"args,omitempty"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Key returns "type" or "type:function", the form trace_order refers to.
func (e TraceEvent) Key() string {
	if e.Function == "" {
		return e.Type
	}
	return e.Type + ":" + e.Function
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every event in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Remote is the sorted list of functions deployed in the scenario's
	// schema when the scenario finished.
	Remote []string `json:"remote"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Remote: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
