package reverse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/pgproxy/internal/ir"
	"github.com/roach88/pgproxy/internal/remote"
)

// Func is a locally exposed function. Its error is logged, never returned to
// the caller.
type Func func(ctx context.Context, args ir.Args) error

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the logger for dispatch diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

// Channel dispatches reverse-call notifications to registered functions.
type Channel struct {
	funcs  map[string]Func
	logger *slog.Logger

	mu        sync.Mutex
	sub       remote.Subscription
	listening bool
	ctx       context.Context
	cancel    context.CancelFunc
	inflight  int        // dispatched handlers that have not returned
	idle      *sync.Cond // broadcast when inflight drops to zero
}

// New creates an inactive Channel exposing funcs. The map is copied.
func New(funcs map[string]Func, opts ...Option) *Channel {
	c := &Channel{
		funcs:  maps.Clone(funcs),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if c.funcs == nil {
		c.funcs = make(map[string]Func)
	}
	c.idle = sync.NewCond(&c.mu)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Names returns the exposed function names, sorted.
func (c *Channel) Names() []string {
	return slices.Sorted(maps.Keys(c.funcs))
}

// Listening reports whether the channel is subscribed.
func (c *Channel) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

// Start subscribes to the reverse-call topic. Starting a listening channel is
// an error.
func (c *Channel) Start(ctx context.Context, s remote.Subscriber) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listening {
		return fmt.Errorf("reverse channel already listening")
	}

	dispatchCtx, cancel := context.WithCancel(context.Background())
	c.ctx, c.cancel = dispatchCtx, cancel

	sub, err := s.Subscribe(ctx, ir.Topic, c.handle)
	if err != nil {
		cancel()
		return &ir.RemoteError{Op: "subscribe", Err: err}
	}
	c.sub = sub
	c.listening = true
	c.logger.Info("reverse channel listening", "topic", ir.Topic, "functions", c.Names())
	return nil
}

// Stop detaches the notification handler and cancels the dispatch context.
// It returns without waiting for in-flight handlers and is a no-op on an
// inactive channel.
func (c *Channel) Stop() error {
	c.mu.Lock()
	if !c.listening {
		c.mu.Unlock()
		return nil
	}
	sub, cancel := c.sub, c.cancel
	c.sub, c.listening = nil, false
	c.mu.Unlock()

	cancel()
	c.logger.Info("reverse channel stopped", "topic", ir.Topic)
	if err := sub.Close(); err != nil {
		return &ir.RemoteError{Op: "unsubscribe", Err: err}
	}
	return nil
}

// Wait blocks until every dispatched handler has returned. It is safe to call
// while notifications keep arriving; it returns once the channel is idle.
func (c *Channel) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.inflight > 0 {
		c.idle.Wait()
	}
}

func (c *Channel) done() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	if c.inflight == 0 {
		c.idle.Broadcast()
	}
}

// handle decodes one notification and dispatches it. Anything that is not a
// well-formed call to a registered function is dropped.
func (c *Channel) handle(n remote.Notification) {
	c.mu.Lock()
	if !c.listening {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	c.inflight++
	c.mu.Unlock()

	payload, fn, ok := c.accept(n)
	if !ok {
		c.done()
		return
	}

	callID := uuid.NewString()
	go func() {
		defer c.done()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("reverse call panicked", "function", payload.Function, "call_id", callID, "panic", r)
			}
		}()

		c.logger.Debug("reverse call", "function", payload.Function, "call_id", callID, "params", len(payload.Params))
		if err := fn(ctx, payload.Params); err != nil {
			c.logger.Warn("reverse call failed", "function", payload.Function, "call_id", callID, "error", err)
		}
	}()
}

func (c *Channel) accept(n remote.Notification) (ir.CallPayload, Func, bool) {
	if n.Topic != ir.Topic {
		c.logger.Debug("notification dropped: topic", "topic", n.Topic)
		return ir.CallPayload{}, nil, false
	}

	var payload ir.CallPayload
	if err := json.Unmarshal([]byte(n.Payload), &payload); err != nil {
		c.logger.Debug("notification dropped: malformed payload", "error", err)
		return ir.CallPayload{}, nil, false
	}
	if payload.Action != ir.ActionCall {
		c.logger.Debug("notification dropped: action", "action", payload.Action)
		return ir.CallPayload{}, nil, false
	}

	fn, ok := c.funcs[payload.Function]
	if !ok {
		c.logger.Debug("notification dropped: unknown function", "function", payload.Function)
		return ir.CallPayload{}, nil, false
	}
	return payload, fn, true
}
