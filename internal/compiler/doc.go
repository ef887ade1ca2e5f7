// Package compiler renders function specs into plv8 procedure definitions.
//
// Every generated procedure takes a single json argument (the ordered call
// arguments) and returns json. Its body, between the $BODY$ delimiters, holds:
//
//  1. a shim per sibling function in the batch, calling that sibling's
//     deployed procedure synchronously
//  2. a shim per exposed name, publishing a reverse-call notification on the
//     pgproxy channel instead of running anything
//  3. the function itself, applied to the decoded argument list
//
// The body is the only part compared during change detection, so anything
// that should count as a change must be rendered inside it. Shims are emitted
// in sorted order to keep output deterministic.
package compiler
