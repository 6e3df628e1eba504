package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/hera/pkg/orchestrator"
	"github.com/mesh-intelligence/hera/pkg/types"
)

func newEntityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "entity",
		Aliases: []string{"e"},
		Short:   "Create, inspect and remove entities",
	}
	cmd.AddCommand(newEntityCreateCmd())
	cmd.AddCommand(newEntityGetCmd())
	cmd.AddCommand(newEntityListCmd())
	cmd.AddCommand(newEntityUpdateCmd())
	cmd.AddCommand(newEntityLifecycleCmd("archive", "Archive an entity (reversible)", (*orchestrator.Orchestrator).Archive))
	cmd.AddCommand(newEntityLifecycleCmd("restore", "Restore an archived entity", (*orchestrator.Orchestrator).Restore))
	cmd.AddCommand(newEntityDeleteCmd())
	return cmd
}

func newEntityCreateCmd() *cobra.Command {
	var (
		name, code, smartCode string
		fieldArgs, relArgs    []string
	)
	cmd := &cobra.Command{
		Use:   "create <entity-type>",
		Short: "Create an entity",
		Example: `  hera entity create CATEGORY --name "Hair care"
  hera entity create PRODUCT --name "Argan oil" --field price=24 --rel HAS_CATEGORY=<id>`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				s, err := a.orch.Registry().Resolve(args[0])
				if err != nil {
					return err
				}
				values, err := parseFields(s, fieldArgs)
				if err != nil {
					return err
				}
				rels, err := parseRels(relArgs)
				if err != nil {
					return err
				}
				e, err := a.orch.Create(ctx, orchestrator.CreateRequest{
					EntityType:    s.EntityType,
					EntityName:    name,
					EntityCode:    code,
					SmartCode:     smartCode,
					Fields:        values,
					Relationships: rels,
				})
				if err != nil {
					return err
				}
				return printDone(cmd.OutOrStdout(), e, "Created %s: %s", e.EntityType, e.ID)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "entity name (required)")
	cmd.Flags().StringVar(&code, "code", "", "entity code")
	cmd.Flags().StringVar(&smartCode, "smart-code", "", "smart code (default: the preset's)")
	cmd.Flags().StringArrayVarP(&fieldArgs, "field", "f", nil, "dynamic field as name=value (repeatable)")
	cmd.Flags().StringArrayVarP(&relArgs, "rel", "r", nil, "relationship as TYPE=id[,id...] (repeatable)")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newEntityGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show an entity with its fields and relationships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				e, err := a.orch.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printEntity(cmd.OutOrStdout(), e)
			})
		},
	}
}

func newEntityListCmd() *cobra.Command {
	var (
		statuses, relArgs []string
		search            string
		limit, offset     int
	)
	cmd := &cobra.Command{
		Use:   "list <entity-type>",
		Short: "List entities of one type, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := types.EntityQuery{EntityType: args[0], Search: search, Limit: limit, Offset: offset}
			var err error
			if q.Status, err = parseStatuses(statuses); err != nil {
				return err
			}
			if q.RelFilters, err = parseRelFilters(relArgs); err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				list, err := a.orch.Query(ctx, q)
				if err != nil {
					return err
				}
				return printEntities(cmd.OutOrStdout(), list)
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", []string{string(types.StatusActive)}, "statuses to include")
	cmd.Flags().StringVar(&search, "search", "", "match name or code")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "results to skip")
	cmd.Flags().StringArrayVarP(&relArgs, "rel", "r", nil, "only entities related as TYPE=id (repeatable)")
	return cmd
}

func newEntityUpdateCmd() *cobra.Command {
	var (
		name, code         string
		fieldArgs, relArgs []string
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an entity; listed relationships are replaced whole",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				current, err := a.orch.Get(ctx, args[0])
				if err != nil {
					return err
				}
				s, err := a.orch.Registry().Resolve(current.EntityType)
				if err != nil {
					return err
				}
				req := orchestrator.UpdateRequest{}
				if cmd.Flags().Changed("name") {
					req.EntityName = &name
				}
				if cmd.Flags().Changed("code") {
					req.EntityCode = &code
				}
				if req.Fields, err = parseFields(s, fieldArgs); err != nil {
					return err
				}
				if req.Relationships, err = parseRels(relArgs); err != nil {
					return err
				}
				e, err := a.orch.Update(ctx, current.ID, req)
				if err != nil {
					return err
				}
				return printDone(cmd.OutOrStdout(), e, "Updated %s: %s", e.EntityType, e.ID)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new entity name")
	cmd.Flags().StringVar(&code, "code", "", "new entity code")
	cmd.Flags().StringArrayVarP(&fieldArgs, "field", "f", nil, "dynamic field as name=value; name= clears it")
	cmd.Flags().StringArrayVarP(&relArgs, "rel", "r", nil, "relationship as TYPE=id[,id...]; TYPE= clears it")
	return cmd
}

type lifecycleOp func(*orchestrator.Orchestrator, context.Context, string) (*types.Entity, error)

func newEntityLifecycleCmd(use, short string, op lifecycleOp) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				e, err := op(a.orch, ctx, args[0])
				if err != nil {
					return err
				}
				return printDone(cmd.OutOrStdout(), e, "%s is %s", e.ID, e.Status)
			})
		},
	}
}

func newEntityDeleteCmd() *cobra.Command {
	var opts types.DeleteOptions
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Archive an entity, or remove it with --hard",
		Long: "Without --hard the entity is archived. With --hard it is removed along\n" +
			"with its own fields and relationships; if other records still reference\n" +
			"it, it is archived as deleted instead.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return printOutcome(cmd.OutOrStdout(), args[0], a.orch.Delete(ctx, args[0], opts))
			})
		},
	}
	cmd.Flags().BoolVar(&opts.HardDelete, "hard", false, "remove the entity physically")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "reason recorded with the delete")
	return cmd
}
