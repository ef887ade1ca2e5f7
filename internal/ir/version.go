package ir

// Naming and protocol constants shared by the compiler, detector and
// reverse channel.
const (
	// Prefix is prepended to every generated procedure name.
	Prefix = "pgproxy_"

	// Topic is the notification channel used for reverse calls.
	Topic = "pgproxy"

	// DefaultSchema is used when no schema is configured.
	DefaultSchema = "public"

	// BodyDelimiter is the dollar-quote tag wrapping every procedure body.
	BodyDelimiter = "$BODY$"

	// ActionCall is the only reverse-call action the channel dispatches.
	ActionCall = "call"

	// Version is the pgproxy library version.
	Version = "0.1.0"
)

// ProcedureName returns the unqualified remote name for a function.
func ProcedureName(function string) string {
	return Prefix + function
}
