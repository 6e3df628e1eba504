package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/hera/internal/config"
	"github.com/mesh-intelligence/hera/internal/paths"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize hera configuration and storage",
		Long: "Create the configuration directory with a default config.yaml and a\n" +
			"presets directory, then create the database schema of the configured backend.",
		Args: cobra.NoArgs,
		RunE: runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	a, err := loadSettings()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := config.EnsureDefaultFile(a.configDir); err != nil {
		return err
	}
	if err := os.MkdirAll(paths.PresetDir(a.configDir), 0o755); err != nil {
		return fmt.Errorf("create presets directory: %w", err)
	}
	if err := a.open(); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	okColor.Fprintln(w, "Hera initialized successfully")
	fmt.Fprintln(w, "  config: ", a.configDir)
	fmt.Fprintln(w, "  backend:", a.cfg.Backend.Driver)
	if a.cfg.Backend.Driver == config.DriverSQLite {
		dataDir, err := paths.ResolveDataDir(flags.dataDir, a.cfg.Backend.DataDir)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "  data:   ", dataDir)
	}
	return nil
}
