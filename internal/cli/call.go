package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/pgproxy/internal/ir"
)

// CallOptions holds flags for the call command.
type CallOptions struct {
	*RootOptions
	PolicyFlags
	Args string
}

// CallResult is the call command's output.
type CallResult struct {
	Function string `json:"function"`
	Result   any    `json:"result"`
}

// NewCallCommand creates the call command.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "call <manifest> <function>",
		Short: "Synchronize a manifest and call one of its functions",
		Long: `Synchronize the manifest, then call one function through the proxy.

Arguments are passed as a JSON array, in parameter order. A function the
sync disabled is refused without contacting the database.

Example:
  pgproxy call functions.yaml add --args '[2, 3]'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(opts, args[0], args[1], cmd)
		},
	}
	addPolicyFlags(cmd, &opts.PolicyFlags)
	cmd.Flags().StringVar(&opts.Args, "args", "[]", "function arguments as a JSON array")

	return cmd
}

func runCall(opts *CallOptions, path, function string, cmd *cobra.Command) error {
	ctx := cmd.Context()

	args, err := ir.UnmarshalArgs([]byte(opts.Args))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --args JSON", err)
	}

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

	out, err := h.Call(ctx, function, args...)
	if err != nil {
		return WrapExitError(ExitFailure, "call failed", err)
	}

	raw, err := ir.MarshalValue(out)
	if err != nil {
		return WrapExitError(ExitFailure, "encode result", err)
	}
	result := CallResult{Function: function, Result: ir.ToGo(out)}
	return opts.formatter(cmd).Render(result, h.Report().ID, func(w io.Writer) {
		fmt.Fprintln(w, string(raw))
	})
}
