// Package reverse implements the reverse-call channel: remote procedures
// publish call notifications and the channel dispatches them to local
// functions.
//
// Reverse calls are one-way messages. There is no response path, so a
// handler's outcome is logged and discarded and the remote side never learns
// whether the call happened. Delivery is at most once per notification,
// unordered across notifications, and without back-pressure: every accepted
// call runs on its own goroutine.
//
// A Channel is either inactive or listening. Start subscribes to the pgproxy
// topic; Stop detaches and is safe to call at any time, any number of times.
// Stop prevents further dispatch but does not wait for handlers already
// running.
package reverse
