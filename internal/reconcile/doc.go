// Package reconcile classifies requested procedures against the remote
// catalog and applies the sync policy.
//
// The flow is fetch-then-write with no locking: another process may change
// the catalog between Detect and Apply, and the classification is then stale.
// Writes run one function at a time with no rollback; a failure leaves earlier
// functions committed and the rest unattempted.
package reconcile
