package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/pgproxy/internal/ir"
	"github.com/roach88/pgproxy/internal/manifest"
	"github.com/roach88/pgproxy/internal/proxy"
	"github.com/roach88/pgproxy/internal/reverse"
)

// PolicyFlags are the sync policy overrides shared by manifest commands.
// A flag only overrides the manifest when it was set on the command line.
type PolicyFlags struct {
	Schema   string
	Purge    bool
	NoCreate bool
	NoUpdate bool
}

func addPolicyFlags(cmd *cobra.Command, f *PolicyFlags) {
	cmd.Flags().StringVar(&f.Schema, "schema", "", "target schema (overrides manifest)")
	cmd.Flags().BoolVar(&f.Purge, "purge", false, "drop prefixed procedures not in the manifest")
	cmd.Flags().BoolVar(&f.NoCreate, "no-create", false, "do not create missing procedures; disable them instead")
	cmd.Flags().BoolVar(&f.NoUpdate, "no-update", false, "do not overwrite drifted procedures; disable them instead")
}

// session is one manifest bound to an open connection.
type session struct {
	manifest *manifest.Manifest
	proxier  *proxy.Proxier
	close    func()
}

// exposedFunc handles a reverse call for one manifest expose name.
type exposedFunc func(name string) reverse.Func

// logExposed is the reverse handler used outside listen: it only logs.
func logExposed(logger *slog.Logger) exposedFunc {
	return func(name string) reverse.Func {
		return func(ctx context.Context, args ir.Args) error {
			logger.Info("reverse call", "function", name, "params", len(args))
			return nil
		}
	}
}

// openSession loads the manifest, connects, and builds a Proxier with the
// manifest options and flag overrides applied.
func openSession(ctx context.Context, cmd *cobra.Command, root *RootOptions, path string, flags *PolicyFlags, expose exposedFunc) (*session, error) {
	m, err := manifest.Load(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load manifest", err)
	}

	conn, release, err := root.connect(ctx)
	if err != nil {
		return nil, err
	}

	st, err := root.openJournal()
	if err != nil {
		release()
		return nil, err
	}

	opts := proxyOptions(cmd, m, flags)
	opts = append(opts, proxy.WithLogger(root.log()))
	if len(m.Expose) > 0 {
		funcs := make(map[string]reverse.Func, len(m.Expose))
		for _, name := range m.Expose {
			funcs[name] = expose(name)
		}
		opts = append(opts, proxy.WithExpose(funcs))
	}
	if st != nil {
		opts = append(opts, proxy.WithJournal(st))
	}

	p, err := proxy.New(conn, opts...)
	if err != nil {
		release()
		if st != nil {
			st.Close()
		}
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	return &session{
		manifest: m,
		proxier:  p,
		close: func() {
			if st != nil {
				if err := st.Close(); err != nil {
					root.log().Error("error closing journal", "error", err)
				}
			}
			release()
		},
	}, nil
}

// proxyOptions merges manifest settings with explicitly set flags.
func proxyOptions(cmd *cobra.Command, m *manifest.Manifest, flags *PolicyFlags) []proxy.Option {
	var opts []proxy.Option

	schema := m.Schema
	if flags != nil && cmd.Flags().Changed("schema") {
		schema = flags.Schema
	}
	if schema != "" {
		opts = append(opts, proxy.WithSchema(schema))
	}

	if m.CreateNew != nil {
		opts = append(opts, proxy.WithCreateNew(*m.CreateNew))
	}
	if m.UpdateChanged != nil {
		opts = append(opts, proxy.WithUpdateChanged(*m.UpdateChanged))
	}
	if m.PurgeOrphaned != nil {
		opts = append(opts, proxy.WithPurgeOrphaned(*m.PurgeOrphaned))
	}

	if flags == nil {
		return opts
	}
	if cmd.Flags().Changed("no-create") {
		opts = append(opts, proxy.WithCreateNew(!flags.NoCreate))
	}
	if cmd.Flags().Changed("no-update") {
		opts = append(opts, proxy.WithUpdateChanged(!flags.NoUpdate))
	}
	if cmd.Flags().Changed("purge") {
		opts = append(opts, proxy.WithPurgeOrphaned(flags.Purge))
	}
	return opts
}
