package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is a Conn backed by a pgx connection pool. Queries share the pool;
// every subscription holds one dedicated connection for LISTEN, so waiting for
// notifications never blocks outbound calls.
type Pool struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolLogger sets the logger used for subscription diagnostics.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

// Open connects to the database at dsn and verifies the connection.
func Open(ctx context.Context, dsn string, opts ...PoolOption) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return NewPool(pool, opts...), nil
}

// NewPool wraps an existing pgx pool.
func NewPool(pool *pgxpool.Pool, opts ...PoolOption) *Pool {
	p := &Pool{
		pool:   pool,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Close closes every pooled connection.
func (p *Pool) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Query implements Querier.
func (p *Pool) Query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		out = append(out, Row{Columns: columns, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Exec implements Executor.
func (p *Pool) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := p.pool.Exec(ctx, sql, args...)
	return err
}

// Subscribe implements Subscriber. It acquires a connection, issues LISTEN,
// and delivers notifications from a background goroutine until Close.
func (p *Pool) Subscribe(ctx context.Context, topic string, handle func(Notification)) (Subscription, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}

	listen := "listen " + pgx.Identifier{topic}.Sanitize()
	if _, err := conn.Exec(ctx, listen); err != nil {
		conn.Release()
		return nil, fmt.Errorf("%s: %w", listen, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &poolSubscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		defer p.releaseListener(conn, topic)

		for {
			n, err := conn.Conn().WaitForNotification(subCtx)
			if err != nil {
				if subCtx.Err() == nil && !errors.Is(err, context.Canceled) {
					p.logger.Warn("notification wait failed", "topic", topic, "error", err)
				}
				return
			}
			handle(Notification{Topic: n.Channel, Payload: n.Payload})
		}
	}()

	return sub, nil
}

// releaseListener drops the LISTEN and hands the connection back. A
// connection closed by cancellation is discarded by the pool.
func (p *Pool) releaseListener(conn *pgxpool.Conn, topic string) {
	if !conn.Conn().IsClosed() {
		unlisten := "unlisten " + pgx.Identifier{topic}.Sanitize()
		if _, err := conn.Exec(context.Background(), unlisten); err != nil {
			p.logger.Debug("unlisten failed", "topic", topic, "error", err)
		}
	}
	conn.Release()
}

type poolSubscription struct {
	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

// Close cancels the wait loop without blocking on it.
func (s *poolSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Done is closed once the wait loop has exited and the connection is released.
func (s *poolSubscription) Done() <-chan struct{} {
	return s.done
}
