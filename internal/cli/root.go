// Package cli implements the hera command-line interface.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/hera/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
	role      string
	actor     string
}

var flags rootFlags

// NewRootCmd creates the top-level "hera" command with global flags and all
// subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hera",
		Short: "Preset-driven entities and transactions",
		Long: "Hera stores business objects described by declarative presets: typed\n" +
			"dynamic fields, relationships and workflows over a shared backend.",
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "data directory (default: $(CWD)/.hera)")
	root.PersistentFlags().BoolVar(&flags.jsonMode, "json", false, "output in JSON format")
	root.PersistentFlags().StringVar(&flags.role, "role", "", "act as this role; presets enforce their permissions")
	root.PersistentFlags().StringVar(&flags.actor, "actor", "", "acting user id recorded on requests")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newPresetCmd())
	root.AddCommand(newSmartCodeCmd())
	root.AddCommand(newEntityCmd())
	root.AddCommand(newAppointmentCmd())
	root.AddCommand(newTxnCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newSnapshotCmd())
	root.AddCommand(newServeCmd())

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", color.New(color.FgRed).Sprint("error:"), err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitSuccess)
}

// exitCode maps an error to an exit code. Transport failures and errors
// outside the taxonomy are system errors; everything the caller can fix is
// a user error.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, errUsage):
		return exitUserError
	case errors.Is(err, types.ErrTransport):
		return exitSysError
	}
	for _, k := range types.Kinds {
		if errors.Is(err, k) {
			return exitUserError
		}
	}
	return exitSysError
}

// errUsage marks malformed command-line input.
var errUsage = errors.New("usage")

func usageErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}
