package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/pgproxy/internal/ir"
)

// DiffOptions holds flags for the diff command.
type DiffOptions struct {
	*RootOptions
	PolicyFlags
}

// DiffResult is the diff command's output.
type DiffResult struct {
	Schema    string   `json:"schema"`
	New       []string `json:"new"`
	Changed   []string `json:"changed"`
	Unchanged []string `json:"unchanged"`
	Orphaned  []string `json:"orphaned"`
}

// InSync reports whether the database already matches the manifest.
func (r DiffResult) InSync() bool {
	return len(r.New) == 0 && len(r.Changed) == 0 && len(r.Orphaned) == 0
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiffOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diff <manifest>",
		Short: "Classify manifest functions against the database",
		Long: `Classify every manifest function as new, changed or unchanged, and list
orphaned prefixed procedures, without writing anything.

Exits 1 when the database is out of sync with the manifest.

Example:
  pgproxy diff --schema test functions.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(opts, args[0], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "target schema (overrides manifest)")

	return cmd
}

func runDiff(opts *DiffOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()

	s, err := openSession(ctx, cmd, opts.RootOptions, path, &opts.PolicyFlags, logExposed(opts.log()))
	if err != nil {
		return err
	}
	defer s.close()

	cs, err := s.proxier.Diff(ctx, s.manifest.FunctionSpecs())
	if err != nil {
		return WrapExitError(ExitFailure, "diff failed", err)
	}

	result := DiffResult{
		Schema:    s.proxier.Schema(),
		New:       procNames(cs.New),
		Changed:   procNames(cs.Changed),
		Unchanged: procNames(cs.Unchanged),
		Orphaned:  []string{},
	}
	for _, o := range cs.Orphaned {
		result.Orphaned = append(result.Orphaned, o.Name)
	}

	err = opts.formatter(cmd).Render(result, "", func(w io.Writer) {
		fmt.Fprintf(w, "Schema %s\n", result.Schema)
		writeClass(w, ir.ClassNew, result.New)
		writeClass(w, ir.ClassChanged, result.Changed)
		writeClass(w, ir.ClassUnchanged, result.Unchanged)
		writeClass(w, ir.ClassOrphaned, result.Orphaned)
	})
	if err != nil {
		return err
	}
	if !result.InSync() {
		return NewQuietExit(ExitFailure, "database is out of sync with the manifest")
	}
	return nil
}

func writeClass(w io.Writer, class ir.Class, names []string) {
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s %s\n", class, name)
	}
}

func procNames(procs []ir.Procedure) []string {
	out := make([]string, 0, len(procs))
	for _, p := range procs {
		out = append(out, p.Name())
	}
	return out
}
