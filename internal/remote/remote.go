// Package remote defines the connection capabilities pgproxy consumes and a
// PostgreSQL implementation backed by pgx.
package remote

import "context"

// Row is one result row with its columns in select order.
type Row struct {
	Columns []string
	Values  []any
}

// Get returns the value of a named column and whether it exists.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column && i < len(r.Values) {
			return r.Values[i], true
		}
	}
	return nil, false
}

// First returns the first column value, and false for a row with no columns.
func (r Row) First() (any, bool) {
	if len(r.Values) == 0 {
		return nil, false
	}
	return r.Values[0], true
}

// Querier runs a parameterized query and returns all rows.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) ([]Row, error)
}

// Executor runs a statement that returns no rows.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) error
}

// Notification is one inbound publish/subscribe message.
type Notification struct {
	Topic   string
	Payload string
}

// Subscription is a live subscription. Close stops delivery; it does not wait
// for a handler that is already running.
type Subscription interface {
	Close() error
}

// Subscriber delivers notifications for a topic to handle until the
// subscription is closed. handle is called from the subscriber's own
// goroutine.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handle func(Notification)) (Subscription, error)
}

// Conn is everything pgproxy needs from a database connection.
type Conn interface {
	Querier
	Executor
	Subscriber
}
