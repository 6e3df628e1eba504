package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/hera/internal/sqlstore"
	"github.com/mesh-intelligence/hera/pkg/store"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Dump or load every table as JSONL files",
		Long: "A snapshot directory holds one JSONL file per table. Import skips rows\n" +
			"whose primary key already exists.",
	}
	cmd.AddCommand(newSnapshotRunCmd("export", "Write a snapshot of the backend to <dir>",
		func(ctx context.Context, s store.Snapshotter, dir string) (sqlstore.SnapshotStats, error) {
			return s.ExportJSONL(ctx, dir)
		}))
	cmd.AddCommand(newSnapshotRunCmd("import", "Load a snapshot from <dir> into the backend",
		func(ctx context.Context, s store.Snapshotter, dir string) (sqlstore.SnapshotStats, error) {
			return s.ImportJSONL(ctx, dir)
		}))
	return cmd
}

type snapshotOp func(context.Context, store.Snapshotter, string) (sqlstore.SnapshotStats, error)

func newSnapshotRunCmd(use, short string, op snapshotOp) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <dir>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				s, ok := a.store.(store.Snapshotter)
				if !ok {
					return fmt.Errorf("snapshots need a local sqlite or postgres backend, not %q", a.cfg.Backend.Driver)
				}
				stats, err := op(ctx, s, args[0])
				if err != nil {
					return err
				}
				return printSnapshotStats(cmd.OutOrStdout(), use, args[0], stats)
			})
		},
	}
}

func printSnapshotStats(w io.Writer, op, dir string, stats sqlstore.SnapshotStats) error {
	if flags.jsonMode {
		return printJSON(w, stats)
	}
	okColor.Fprintf(w, "Snapshot %s %s\n", op, dir)
	for _, table := range sortedKeys(stats.Rows) {
		line := fmt.Sprintf("  %-18s %d", table, stats.Rows[table])
		if n := stats.Skipped[table]; n > 0 {
			line += fmt.Sprintf(" (%d skipped)", n)
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
