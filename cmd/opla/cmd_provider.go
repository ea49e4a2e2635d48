package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/user/opla/internal/state"
	"github.com/user/opla/internal/types"
)

func init() {
	rootCmd.AddCommand(providerCmd)
	providerCmd.AddCommand(providerAddCmd, providerListCmd, providerRemoveCmd, providerEnableCmd, providerDisableCmd, providerErrorsCmd)

	providerAddCmd.Flags().String("name", "", "provider name (required)")
	providerAddCmd.Flags().String("url", "", "OpenAI-compatible base URL (required)")
	providerAddCmd.Flags().String("key", "", "API key")
	providerAddCmd.Flags().String("type", string(types.ProviderAPI), "provider type (api, server, proxy)")
	_ = providerAddCmd.MarkFlagRequired("name")
	_ = providerAddCmd.MarkFlagRequired("url")
}

func providerStore() *state.ProviderStore {
	cfg := loadConfig()
	return state.NewProviderStore(filepath.Join(cfg.DataDir, "providers.json"))
}

var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Manage completion providers",
}

var providerAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a provider",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		url, _ := cmd.Flags().GetString("url")
		key, _ := cmd.Flags().GetString("key")
		kind, _ := cmd.Flags().GetString("type")

		store := providerStore()
		if _, err := store.Get(name); err == nil {
			return fmt.Errorf("provider %q already exists", name)
		}
		p := types.Provider{
			ID:     types.NewProviderID(),
			Record: types.NewRecord(time.Now()),
			Name:   name,
			Type:   types.ProviderType(kind),
			URL:    url,
			Key:    key,
		}
		if err := store.Put(p); err != nil {
			return fmt.Errorf("add provider: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Provider %q added.\n", name)
		return nil
	},
}

var providerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := providerStore()
		list, err := store.List()
		if err != nil {
			return fmt.Errorf("list providers: %w", err)
		}

		if len(list) == 0 {
			fmt.Println("No providers configured.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTYPE\tURL\tENABLED\tERRORS\tUPDATED")
		for _, p := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%d\t%s\n",
				p.Name,
				p.Type,
				p.URL,
				!p.Disabled,
				len(p.Errors),
				humanize.Time(p.UpdatedAt),
			)
		}
		return w.Flush()
	},
}

var providerRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := providerStore()
		if err := store.Remove(args[0]); err != nil {
			return fmt.Errorf("remove provider: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Provider %q removed.\n", args[0])
		return nil
	},
}

func setProviderDisabled(name string, disabled bool) error {
	store := providerStore()
	p, err := store.Get(name)
	if err != nil {
		return err
	}
	p.Disabled = disabled
	p.Touch(time.Now())
	return store.Put(p)
}

var providerEnableCmd = &cobra.Command{
	Use:   "enable <name>",
	Short: "Enable a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setProviderDisabled(args[0], false); err != nil {
			return fmt.Errorf("enable provider: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Provider %q enabled.\n", args[0])
		return nil
	},
}

var providerDisableCmd = &cobra.Command{
	Use:   "disable <name>",
	Short: "Disable a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setProviderDisabled(args[0], true); err != nil {
			return fmt.Errorf("disable provider: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Provider %q disabled.\n", args[0])
		return nil
	},
}

var providerErrorsCmd = &cobra.Command{
	Use:   "errors <name>",
	Short: "Show the recent errors of a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := providerStore().Get(args[0])
		if err != nil {
			return err
		}
		if len(p.Errors) == 0 {
			fmt.Println("No errors recorded.")
			return nil
		}
		for _, line := range p.Errors {
			fmt.Fprintln(os.Stdout, line)
		}
		return nil
	},
}
