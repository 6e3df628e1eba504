package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/hera/internal/export"
)

func newExportCmd() *cobra.Command {
	var (
		kinds []string
		out   string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export entities to an XLSX workbook, one sheet per type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runExport(ctx, cmd, a, kinds, out)
			})
		},
	}
	cmd.Flags().StringSliceVar(&kinds, "type", nil, "entity types to export (default: all)")
	cmd.Flags().StringVarP(&out, "out", "o", "hera.xlsx", "workbook path")
	return cmd
}

func runExport(ctx context.Context, cmd *cobra.Command, a *app, kinds []string, out string) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp := out + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	stats, err := export.Export(ctx, a.orch, kinds, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", out, err)
	}

	w := cmd.OutOrStdout()
	if flags.jsonMode {
		return printJSON(w, map[string]any{"path": out, "rows": stats})
	}
	okColor.Fprintf(w, "Exported to %s\n", out)
	for _, k := range sortedKeys(stats) {
		fmt.Fprintf(w, "  %-14s %d\n", k, stats[k])
	}
	return nil
}
