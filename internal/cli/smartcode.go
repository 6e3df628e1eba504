package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/hera/pkg/smartcode"
	"github.com/mesh-intelligence/hera/pkg/types"
)

func newSmartCodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "smartcode",
		Aliases: []string{"sc"},
		Short:   "Validate and build smart codes",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <code>...",
		Short: "Validate smart codes; exits non-zero if any is invalid",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSmartCodeValidate,
	})

	var version int
	build := &cobra.Command{
		Use:   "build <industry> <module> <type> <subtype>",
		Short: "Build a valid smart code from free-form segments",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := smartcode.Build(args[0], args[1], args[2], args[3], version)
			if flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]string{"smart_code": code.String()})
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}
	build.Flags().IntVar(&version, "version", 1, "version number")
	cmd.AddCommand(build)
	return cmd
}

func runSmartCodeValidate(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	results := make(map[string]smartcode.Result, len(args))
	invalid := 0
	for _, raw := range args {
		res := smartcode.Validate(raw)
		results[raw] = res
		if !res.Valid {
			invalid++
		}
		if flags.jsonMode {
			continue
		}
		if res.Valid {
			okColor.Fprintf(w, "valid    %s\n", raw)
		} else {
			fmt.Fprintf(w, "invalid  %s\n", raw)
		}
		for _, is := range res.Errors {
			fmt.Fprintf(w, "  error:   %s\n", is)
		}
		for _, is := range res.Warnings {
			warnColor.Fprintf(w, "  warning: %s\n", is)
		}
	}
	if flags.jsonMode {
		if err := printJSON(w, results); err != nil {
			return err
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%d of %d smart codes invalid: %w", invalid, len(args), types.ErrInvalidSmartCode)
	}
	return nil
}
