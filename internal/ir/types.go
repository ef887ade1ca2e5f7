package ir

import "strings"

// FunctionSpec is one requested function: a name, a declared parameter list
// and a plain-text body. Body is the statements of the function, not a full
// function expression.
type FunctionSpec struct {
	Name   string   `json:"name" yaml:"name"`
	Params []string `json:"params" yaml:"params"`
	Body   string   `json:"body" yaml:"body"`
}

// Procedure is a FunctionSpec with its compiled remote definition attached.
type Procedure struct {
	Spec          FunctionSpec `json:"spec"`
	QualifiedName string       `json:"qualified_name"` // quoted "<schema>"."pgproxy_<name>"
	Source        string       `json:"source"`         // full create-or-replace statement
}

// Name returns the local function name.
func (p Procedure) Name() string {
	return p.Spec.Name
}

// RemoteProcedure is a read-only snapshot of one pg_proc row.
type RemoteProcedure struct {
	Name   string `json:"name"`   // proname, prefix included
	Source string `json:"source"` // prosrc
}

// FunctionName strips the naming prefix from the remote name.
func (r RemoteProcedure) FunctionName() string {
	return strings.TrimPrefix(r.Name, Prefix)
}

// Orphan is a remote procedure with the naming prefix that was not requested.
type Orphan struct {
	Name string `json:"name"` // local function name, prefix stripped
}

// Class is the classification of one function relative to server state.
type Class string

const (
	ClassNew       Class = "new"
	ClassChanged   Class = "changed"
	ClassUnchanged Class = "unchanged"
	ClassOrphaned  Class = "orphaned"
)

// ChangeSet partitions requested functions against the remote catalog.
// Derived once per sync and consumed by the synchronizer.
type ChangeSet struct {
	New       []Procedure `json:"new"`
	Changed   []Procedure `json:"changed"`
	Unchanged []Procedure `json:"unchanged"`
	Orphaned  []Orphan    `json:"orphaned"`
}

// ClassOf returns the classification of a requested function, and false if
// the name is not part of the change set.
func (cs ChangeSet) ClassOf(name string) (Class, bool) {
	for _, group := range []struct {
		class Class
		procs []Procedure
	}{
		{ClassNew, cs.New},
		{ClassChanged, cs.Changed},
		{ClassUnchanged, cs.Unchanged},
	} {
		for _, p := range group.procs {
			if p.Name() == name {
				return group.class, true
			}
		}
	}
	for _, o := range cs.Orphaned {
		if o.Name == name {
			return ClassOrphaned, true
		}
	}
	return "", false
}

// Result is the outcome of reconciliation. Every requested function appears
// in exactly one of Enabled or Disabled.
type Result struct {
	Enabled  []Procedure `json:"enabled"`
	Disabled []Procedure `json:"disabled"`
}

// Outcome is what the synchronizer did with one function.
type Outcome string

const (
	OutcomeEnabled  Outcome = "enabled"  // unchanged, no write
	OutcomeCreated  Outcome = "created"  // new, definition executed
	OutcomeUpdated  Outcome = "updated"  // changed, definition overwritten
	OutcomeDisabled Outcome = "disabled" // refused by policy
	OutcomePurged   Outcome = "purged"   // orphan dropped
	OutcomeKept     Outcome = "kept"     // orphan left untouched
)

// ReportEntry records one function of a sync run.
type ReportEntry struct {
	Function string  `json:"function"`
	Class    Class   `json:"class"`
	Outcome  Outcome `json:"outcome"`
	Digest   string  `json:"digest,omitempty"`
}

// SyncReport summarizes one sync run for display and journaling.
type SyncReport struct {
	ID      string        `json:"id"`
	Schema  string        `json:"schema"`
	Entries []ReportEntry `json:"entries"`
}

// Count returns how many entries have the given outcome.
func (r SyncReport) Count(outcome Outcome) int {
	n := 0
	for _, e := range r.Entries {
		if e.Outcome == outcome {
			n++
		}
	}
	return n
}

// CallPayload is the wire shape of a reverse-call notification.
type CallPayload struct {
	Function string `json:"fn"`
	Params   Args   `json:"params"`
	Action   string `json:"action"`
}
