package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/user/opla/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("Opla Setup")
		fmt.Println("Press Enter to accept the value shown in brackets.")
		fmt.Println()

		cfg.LLM.BaseURL = ask(scanner, "OpenAI-compatible base URL", cfg.LLM.BaseURL)
		cfg.LLM.APIKey = ask(scanner, "API key", cfg.LLM.APIKey)
		cfg.LLM.Model = ask(scanner, "Default model", cfg.LLM.Model)

		if n, err := strconv.Atoi(ask(scanner, "Context window (tokens, 0 for unlimited)", strconv.Itoa(cfg.LLM.MaxContextTokens))); err == nil {
			cfg.LLM.MaxContextTokens = n
		}

		for {
			storage := ask(scanner, "Storage (json or bolt)", cfg.Storage)
			if storage == config.StorageJSON || storage == config.StorageBolt {
				cfg.Storage = storage
				break
			}
			fmt.Println("Storage must be json or bolt.")
		}

		cfg.DataDir = ask(scanner, "Data directory", cfg.DataDir)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// ask displays label with its current value and reads a line. An empty
// answer keeps the current value.
func ask(scanner *bufio.Scanner, label, current string) string {
	if current != "" {
		fmt.Printf("%s [%s]: ", label, current)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		if input := strings.TrimSpace(scanner.Text()); input != "" {
			return input
		}
	}
	return current
}
