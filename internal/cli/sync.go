package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/pgproxy/internal/ir"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	PolicyFlags
}

// SyncResult is the sync command's output.
type SyncResult struct {
	Report   ir.SyncReport `json:"report"`
	Enabled  []string      `json:"enabled"`
	Disabled []string      `json:"disabled"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync <manifest>",
		Short: "Synchronize manifest functions with the database",
		Long: `Synchronize the functions of a manifest with plv8 procedures.

Missing procedures are created and drifted ones overwritten, unless the
manifest or flags refuse it; refused functions are reported as disabled.
Prefixed procedures not in the manifest are dropped only with --purge.

Examples:
  pgproxy sync --dsn postgres://localhost/app functions.yaml
  pgproxy sync --schema test --no-update functions.cue
  pgproxy sync --journal ./pgproxy.db --format json functions.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, args[0], cmd)
		},
	}
	addPolicyFlags(cmd, &opts.PolicyFlags)

	return cmd
}

func runSync(opts *SyncOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()

	s, err := openSession(ctx, cmd, opts.RootOptions, path, &opts.PolicyFlags, logExposed(opts.log()))
	if err != nil {
		return err
	}
	defer s.close()

	h, err := s.proxier.Create(ctx, s.manifest.FunctionSpecs())
	if err != nil {
		return WrapExitError(ExitFailure, "sync failed", err)
	}
	defer h.Destroy()

	result := SyncResult{
		Report:   h.Report(),
		Enabled:  nonNil(h.Enabled()),
		Disabled: nonNil(h.Disabled()),
	}
	return opts.formatter(cmd).Render(result, result.Report.ID, func(w io.Writer) {
		writeSyncText(w, result)
	})
}

func writeSyncText(w io.Writer, result SyncResult) {
	fmt.Fprintf(w, "Sync %s (schema %s)\n", result.Report.ID, result.Report.Schema)
	writeEntries(w, result.Report.Entries)
	fmt.Fprintf(w, "Enabled: %d  Disabled: %d\n", len(result.Enabled), len(result.Disabled))
	for _, name := range result.Disabled {
		fmt.Fprintf(w, "  warning: %s is disabled; calls will fail until it is synchronized\n", name)
	}
}

func writeEntries(w io.Writer, entries []ir.ReportEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "  (no functions)")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", e.Function, e.Class, e.Outcome)
	}
	tw.Flush()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
