package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/pgproxy/internal/ir"
	"github.com/roach88/pgproxy/internal/reverse"
)

// ListenOptions holds flags for the listen command.
type ListenOptions struct {
	*RootOptions
	PolicyFlags
}

// ReverseCallEvent is one reverse call printed by listen.
type ReverseCallEvent struct {
	Function string `json:"fn"`
	Params   any    `json:"params"`
}

// NewListenCommand creates the listen command.
func NewListenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "listen <manifest>",
		Short: "Synchronize a manifest and print reverse calls",
		Long: `Synchronize the manifest, then print every reverse call the database
makes to one of the manifest's expose names until interrupted.

With --format json each call is printed as one JSON object per line.

Example:
  pgproxy listen --dsn postgres://localhost/app functions.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(opts, args[0], cmd)
		},
	}
	addPolicyFlags(cmd, &opts.PolicyFlags)

	return cmd
}

func runListen(opts *ListenOptions, path string, cmd *cobra.Command) error {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			opts.log().Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	printer := &callPrinter{w: cmd.OutOrStdout(), asJSON: opts.Format == "json"}
	s, err := openSession(ctx, cmd, opts.RootOptions, path, &opts.PolicyFlags, printer.handler)
	if err != nil {
		return err
	}
	defer s.close()

	if len(s.manifest.Expose) == 0 {
		return NewExitError(ExitCommandError, "manifest exposes no functions")
	}

	h, err := s.proxier.Create(ctx, s.manifest.FunctionSpecs())
	if err != nil {
		return WrapExitError(ExitFailure, "sync failed", err)
	}
	defer h.Destroy()

	if !printer.asJSON {
		fmt.Fprintf(cmd.OutOrStdout(), "Listening on %q for %v. Press Ctrl-C to stop.\n", ir.Topic, s.manifest.Expose)
	}

	<-ctx.Done()
	return nil
}

// callPrinter writes reverse calls to w. Handlers run concurrently.
type callPrinter struct {
	mu     sync.Mutex
	w      io.Writer
	asJSON bool
}

func (p *callPrinter) handler(name string) reverse.Func {
	return func(ctx context.Context, args ir.Args) error {
		params := make([]any, 0, len(args))
		for _, a := range args {
			params = append(params, ir.ToGo(a))
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.asJSON {
			return json.NewEncoder(p.w).Encode(ReverseCallEvent{Function: name, Params: params})
		}
		raw, err := ir.MarshalArgs(args)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(p.w, "%s%s\n", name, raw)
		return err
	}
}
