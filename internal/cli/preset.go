package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/hera/pkg/preset"
)

func newPresetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Inspect entity presets",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered entity types",
		Args:  cobra.NoArgs,
		RunE:  runPresetList,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <entity-type>",
		Short: "Print a preset as YAML",
		Args:  cobra.ExactArgs(1),
		RunE:  runPresetShow,
	})
	return cmd
}

func loadRegistry() (*preset.Registry, error) {
	a, err := loadSettings()
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return a.registry()
}

func runPresetList(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if flags.jsonMode {
		out := make([]*preset.EntitySchema, 0)
		for _, t := range reg.EntityTypes() {
			s, _ := reg.Resolve(t)
			out = append(out, s)
		}
		return printJSON(w, out)
	}
	for _, t := range reg.EntityTypes() {
		s, err := reg.Resolve(t)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%-14s %-40s %2d fields  %d relationships\n",
			s.EntityType, s.SmartCode, len(s.Fields), len(s.Relationships))
	}
	return nil
}

func runPresetShow(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	s, err := reg.Resolve(args[0])
	if err != nil {
		return err
	}
	if flags.jsonMode {
		return printJSON(cmd.OutOrStdout(), s)
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(preset.File{Presets: []preset.EntitySchema{*s}}); err != nil {
		return fmt.Errorf("encode preset: %w", err)
	}
	return enc.Close()
}
