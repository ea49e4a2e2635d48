package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/user/opla/internal/app"
)

func init() {
	rootCmd.AddCommand(importCmd, exportCmd)
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Merge conversations from an export file",
	Long: `Merge conversations from an export file.

A conversation present on both sides keeps the most recently updated copy.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read export: %w", err)
		}
		var exp app.Export
		if err := json.Unmarshal(data, &exp); err != nil {
			return fmt.Errorf("parse export: %w", err)
		}

		ctx := context.Background()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		n, err := e.app.Import(ctx, exp)
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		fmt.Fprintf(os.Stdout, "%d conversations imported from %s (%s).\n", n, args[0], humanize.Bytes(uint64(len(data))))
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write all conversations and their messages as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		exp, err := e.app.Export(ctx)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		data, err := json.MarshalIndent(exp, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal export: %w", err)
		}
		data = append(data, '\n')

		var w io.Writer = os.Stdout
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			defer f.Close()
			w = f
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		return nil
	},
}
