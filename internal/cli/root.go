package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/pgproxy/internal/ir"
	"github.com/roach88/pgproxy/internal/remote"
	"github.com/roach88/pgproxy/internal/store"
)

// DSNEnv names the environment variable read when --dsn is not given.
const DSNEnv = "PGPROXY_DSN"

// ConnectFunc opens a database connection and returns it with its release
// function.
type ConnectFunc func(ctx context.Context, dsn string, logger *slog.Logger) (remote.Conn, func(), error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	DSN     string
	Journal string // SQLite journal path; empty disables journaling

	// Connect allows overriding how connections are opened (for testing).
	// If nil, defaults to a pgx pool.
	Connect ConnectFunc

	logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the pgproxy CLI.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithOptions(&RootOptions{})
}

// NewRootCommandWithOptions creates the root command bound to opts.
func NewRootCommandWithOptions(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pgproxy",
		Short: "pgproxy - local functions as plv8 procedures",
		Long: `Synchronize local function definitions with plv8 stored procedures in
PostgreSQL, call them through a proxy that refuses out-of-sync functions,
and receive reverse calls from the database over LISTEN/NOTIFY.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.DSN == "" {
				opts.DSN = os.Getenv(DSNEnv)
			}
			opts.logger = newLogger(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "PostgreSQL connection string (default $"+DSNEnv+")")
	cmd.PersistentFlags().StringVar(&opts.Journal, "journal", "", "path to SQLite sync journal")

	// Add subcommands
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewDiffCommand(opts))
	cmd.AddCommand(NewCallCommand(opts))
	cmd.AddCommand(NewListenCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
// Errors are reported on stderr, or as a JSON envelope on stdout with
// --format json.
func Execute(ctx context.Context, opts *RootOptions, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommandWithOptions(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		// Flag and argument errors from cobra.
		err = WrapExitError(ExitCommandError, "invalid usage", err)
	} else if exitErr.Quiet {
		return exitErr.Code
	}

	f := &OutputFormatter{Format: opts.Format, Writer: stderr, Verbose: opts.Verbose}
	if opts.Format == "json" {
		f.Writer = stdout
	}
	_ = f.Error(ErrorCode(err), err.Error(), nil)
	return GetExitCode(err)
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func (o *RootOptions) log() *slog.Logger {
	if o.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.logger
}

// connect opens the configured database. The returned function releases it.
func (o *RootOptions) connect(ctx context.Context) (remote.Conn, func(), error) {
	if o.DSN == "" {
		return nil, nil, NewExitError(ExitCommandError, "no database: pass --dsn or set "+DSNEnv)
	}
	connect := o.Connect
	if connect == nil {
		connect = openPool
	}
	conn, release, err := connect(ctx, o.DSN, o.log())
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to connect", err)
	}
	return conn, release, nil
}

func openPool(ctx context.Context, dsn string, logger *slog.Logger) (remote.Conn, func(), error) {
	pool, err := remote.Open(ctx, dsn, remote.WithPoolLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return pool, pool.Close, nil
}

// openJournal opens the journal when --journal is set, and returns nil
// otherwise.
func (o *RootOptions) openJournal() (*store.Store, error) {
	if o.Journal == "" {
		return nil, nil
	}
	st, err := store.Open(o.Journal)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	return st, nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pgproxy version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			return f.Render(map[string]string{"version": ir.Version, "prefix": ir.Prefix, "topic": ir.Topic}, "", func(w io.Writer) {
				fmt.Fprintf(w, "pgproxy %s\n", ir.Version)
			})
		},
	}
}
