package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/user/opla/internal/types"
)

func init() {
	rootCmd.AddCommand(presetCmd)
	presetCmd.AddCommand(presetListCmd, presetAddCmd)

	presetAddCmd.Flags().String("name", "", "preset name (required)")
	presetAddCmd.Flags().String("id", "", "id of the preset to replace")
	presetAddCmd.Flags().String("system", "", "system prompt")
	presetAddCmd.Flags().String("parent", "", "parent preset id")
	presetAddCmd.Flags().String("policy", "", "context window policy (none, rolling, stop, last)")
	presetAddCmd.Flags().StringArray("param", nil, "parameter as key=value, value parsed as JSON when possible")
	_ = presetAddCmd.MarkFlagRequired("name")
}

var presetCmd = &cobra.Command{
	Use:   "preset",
	Short: "Manage presets",
}

var presetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List presets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPARENT\tPOLICY\tREADONLY")
		for _, p := range e.app.Presets() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\n",
				p.ID,
				p.Name,
				p.ParentID,
				p.ContextWindowPolicy,
				p.Readonly,
			)
		}
		return w.Flush()
	},
}

var presetAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or replace a user preset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		id, _ := cmd.Flags().GetString("id")
		system, _ := cmd.Flags().GetString("system")
		parent, _ := cmd.Flags().GetString("parent")
		policy, _ := cmd.Flags().GetString("policy")
		params, _ := cmd.Flags().GetStringArray("param")

		p := types.Preset{
			ID:                  types.PresetID(id),
			Name:                name,
			System:              system,
			ParentID:            types.PresetID(parent),
			ContextWindowPolicy: types.ContextWindowPolicy(policy),
			KeepSystem:          true,
		}
		for _, kv := range params {
			key, value, ok := strings.Cut(kv, "=")
			if !ok || key == "" {
				return fmt.Errorf("invalid parameter %q, want key=value", kv)
			}
			if p.Parameters == nil {
				p.Parameters = make(map[string]any)
			}
			var v any
			if err := json.Unmarshal([]byte(value), &v); err != nil {
				v = value
			}
			p.Parameters[key] = v
		}

		ctx := context.Background()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		saved, err := e.app.UpdatePreset(p)
		if err != nil {
			return fmt.Errorf("save preset: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Preset %q saved as %s.\n", saved.Name, saved.ID)
		return nil
	},
}
