// Package ir provides the shared data model for pgproxy.
//
// This package contains types and small pure helpers only. All other internal
// packages import ir; ir imports nothing internal.
//
// It holds:
//   - FunctionSpec / Procedure / RemoteProcedure: what is requested, what was
//     compiled, and what the server already has
//   - ChangeSet / Result: classification and reconciliation outcome
//   - Value / Args: the typed call convention; JSON lives only in value.go
//   - Normalize / Digest: source fingerprinting for change detection
//   - Error / RemoteError: the error taxonomy shared by every layer
package ir
