package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/hera/pkg/fields"
	"github.com/mesh-intelligence/hera/pkg/orchestrator"
	"github.com/mesh-intelligence/hera/pkg/types"
)

func newTxnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "txn",
		Aliases: []string{"transaction"},
		Short:   "Record and correct transactions",
	}
	cmd.AddCommand(newTxnCreateCmd())
	cmd.AddCommand(newTxnGetCmd())
	cmd.AddCommand(newTxnListCmd())
	cmd.AddCommand(newTxnTransitionCmd())
	cmd.AddCommand(newTxnCorrectCmd("reverse", "Reverse a completed transaction", (*orchestrator.Orchestrator).ReverseTransaction))
	cmd.AddCommand(newTxnCorrectCmd("void", "Void a completed transaction entered in error", (*orchestrator.Orchestrator).VoidTransaction))
	return cmd
}

func newTxnCreateCmd() *cobra.Command {
	var (
		in       types.NewTransaction
		date     string
		lineArgs []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a transaction with its lines",
		Example: `  hera txn create --type SALE --smart-code HERA.SALON.POS.TXN.SALE.V1 \
    --line type=SERVICE,entity=<id>,qty=1,unit=45 --line type=TIP,amount=5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if date != "" {
				t, err := fields.ParseDate(date)
				if err != nil {
					return usageErr("--date %q: %v", date, err)
				}
				in.TransactionDate = t
			}
			in.Lines = in.Lines[:0]
			for _, arg := range lineArgs {
				l, err := parseLine(arg)
				if err != nil {
					return err
				}
				in.Lines = append(in.Lines, l)
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				t, err := a.orch.CreateTransaction(ctx, in)
				if err != nil {
					return err
				}
				return printDone(cmd.OutOrStdout(), t, "Created %s: %s (total %s)", t.TransactionType, t.ID, t.TotalAmount.StringFixed(2))
			})
		},
	}
	cmd.Flags().StringVar(&in.TransactionType, "type", "", "transaction type (required)")
	cmd.Flags().StringVar(&in.TransactionCode, "code", "", "transaction code")
	cmd.Flags().StringVar(&in.SmartCode, "smart-code", "", "smart code (required)")
	cmd.Flags().StringVar(&in.SourceEntityID, "source", "", "source entity id")
	cmd.Flags().StringVar(&in.TargetEntityID, "target", "", "target entity id")
	cmd.Flags().StringVar(&in.Status, "status", "", "initial status (default: draft)")
	cmd.Flags().StringVar(&date, "date", "", "transaction date, ISO 8601 (default: now)")
	cmd.Flags().StringArrayVarP(&lineArgs, "line", "l", nil, "line as type=..,entity=..,qty=..,unit=..,amount=..,smart_code=.. (repeatable)")
	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("smart-code")
	return cmd
}

func newTxnGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a transaction with its lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				t, err := a.orch.GetTransaction(ctx, args[0])
				if err != nil {
					return err
				}
				return printTransaction(cmd.OutOrStdout(), t)
			})
		},
	}
}

func newTxnListCmd() *cobra.Command {
	var q types.TransactionQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				list, err := a.orch.QueryTransactions(ctx, q)
				if err != nil {
					return err
				}
				return printTransactions(cmd.OutOrStdout(), list)
			})
		},
	}
	cmd.Flags().StringVar(&q.TransactionType, "type", "", "transaction type")
	cmd.Flags().StringSliceVar(&q.Status, "status", nil, "statuses to include")
	cmd.Flags().StringVar(&q.EntityID, "entity", "", "only transactions involving this entity")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "maximum results (0 for all)")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "results to skip")
	return cmd
}

func newTxnTransitionCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "transition <id> <status>",
		Short: "Move a transaction along its workflow",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				t, err := a.orch.TransitionTransaction(ctx, args[0], args[1], reason)
				if err != nil {
					return err
				}
				return printDone(cmd.OutOrStdout(), t, "%s is %s", t.ID, t.Status)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded on a correcting transaction")
	return cmd
}

type correctOp func(*orchestrator.Orchestrator, context.Context, string, string) (*types.Transaction, error)

func newTxnCorrectCmd(use, short string, op correctOp) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				t, err := op(a.orch, ctx, args[0], reason)
				if err != nil {
					return err
				}
				return printDone(cmd.OutOrStdout(), t, "Recorded %s correcting %s", t.ID, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason for the correction")
	return cmd
}
