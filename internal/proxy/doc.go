// Package proxy builds the callable surface over synchronized procedures and
// owns its lifecycle.
//
// A Proxier holds the connection and sync options. Create runs one sync:
//
//  1. compile the batch into plv8 procedure definitions
//  2. fetch the prefixed procedures of the target schema and classify them
//  3. reconcile according to the policy
//  4. build a Handle over the resulting enabled and disabled functions
//  5. start the reverse channel when functions are exposed
//  6. record the run in the journal, if one is configured
//
// At most one Handle per Proxier is live at a time. Destroy releases it.
//
// Enabled functions invoke their remote counterpart. Disabled functions fail
// every call without contacting the database, so a caller never runs code
// whose remote behavior differs from its local source.
package proxy
