package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/hera/pkg/hera"
)

const modulePath = "github.com/mesh-intelligence/hera"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the hera version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "hera v%s\nmodule: %s\n", hera.Version, modulePath)
			return nil
		},
	}
}
