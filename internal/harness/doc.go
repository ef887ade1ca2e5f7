// Package harness runs pgproxy conformance scenarios.
//
// A scenario seeds an in-memory database, runs a sequence of sync, call,
// notify and destroy steps through a single Proxier, and checks the
// resulting trace and remote catalog against assertions.
//
// # Scenario Format
//
//	name: update_refused
//	description: "A changed function stays disabled when updates are off"
//	schema: app
//	policy:
//	  update_changed: false
//	seed:
//	  add: "return a - b;"
//	returns:
//	  add: 5
//	steps:
//	  - sync:
//	      functions:
//	        add: { params: [a, b], body: "return a + b;" }
//	      expect:
//	        disabled: [add]
//	  - call:
//	      function: add
//	      args: [2, 3]
//	      expect:
//	        error: DISABLED_FUNCTION
//	assertions:
//	  - type: trace_count
//	    event: remote_call
//	    count: 0
//
// # Trace
//
// Every step appends events to the trace in the order they happened:
//
//   - write: a create or drop statement reached the database
//   - sync: one report entry with its class and outcome
//   - sync_failed: Create returned an error
//   - remote_call: a procedure was invoked on the database
//   - call: a Handle.Call with its arguments and result or error code
//   - reverse_call: an exposed function ran
//   - destroy: the current Handle was destroyed
//
// Run IDs are random and never appear in the trace, so traces are stable
// enough for golden comparison with RunWithGolden.
//
// # Assertion Types
//
//   - trace_contains: an event of the given type (and function) exists
//   - trace_order: events appear in the listed order
//   - trace_count: an event appears exactly N times
//   - remote_state: the schema holds exactly the listed functions
package harness
