package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/pgproxy/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit    int
	Run      string
	Function string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled sync runs",
		Long: `Show sync runs recorded in the journal, newest first.

With --run, show the entries of one run. With --function, show how one
function was classified and reconciled across runs.

Examples:
  pgproxy history --journal ./pgproxy.db
  pgproxy history --journal ./pgproxy.db --run 4f0c...
  pgproxy history --journal ./pgproxy.db --function add --limit 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of rows (0 for all)")
	cmd.Flags().StringVar(&opts.Run, "run", "", "show the entries of one run")
	cmd.Flags().StringVar(&opts.Function, "function", "", "show the history of one function")
	cmd.MarkFlagsMutuallyExclusive("run", "function")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	if opts.Journal == "" {
		return NewExitError(ExitCommandError, "no journal: pass --journal")
	}
	st, err := opts.openJournal()
	if err != nil {
		return err
	}
	defer st.Close()

	f := opts.formatter(cmd)

	switch {
	case opts.Run != "":
		report, err := st.LoadReport(ctx, opts.Run)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read run", err)
		}
		return f.Render(report, report.ID, func(w io.Writer) {
			fmt.Fprintf(w, "Run %s (schema %s)\n", report.ID, report.Schema)
			writeEntries(w, report.Entries)
		})

	case opts.Function != "":
		events, err := st.FunctionHistory(ctx, opts.Function, opts.Limit)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read function history", err)
		}
		return f.Render(events, "", func(w io.Writer) {
			writeFunctionHistory(w, opts.Function, events)
		})

	default:
		runs, err := st.ListRuns(ctx, opts.Limit)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		return f.Render(runs, "", func(w io.Writer) {
			writeRuns(w, runs)
		})
	}
}

func writeRuns(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No sync runs recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tRUN\tSCHEMA\tFUNCTIONS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", r.Seq, r.ID, r.Schema, r.Entries)
	}
	tw.Flush()
}

func writeFunctionHistory(w io.Writer, function string, events []store.FunctionEvent) {
	if len(events) == 0 {
		fmt.Fprintf(w, "No history for %s.\n", function)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tRUN\tSCHEMA\tCLASS\tOUTCOME\tDIGEST")
	for _, ev := range events {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			ev.RunSeq, ev.RunID, ev.Schema, ev.Entry.Class, ev.Entry.Outcome, ev.Entry.Digest)
	}
	tw.Flush()
}
