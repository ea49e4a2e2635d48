package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/user/opla/internal/conversations"
	"github.com/user/opla/internal/messages"
	"github.com/user/opla/internal/types"
)

func init() {
	rootCmd.AddCommand(conversationCmd)
	conversationCmd.AddCommand(conversationListCmd, conversationNewCmd, conversationShowCmd, conversationRenameCmd, conversationRemoveCmd, conversationPresetCmd)

	conversationShowCmd.Flags().Bool("history", false, "show previous versions of edited messages")
}

var conversationCmd = &cobra.Command{
	Use:     "conversation",
	Aliases: []string{"conv"},
	Short:   "Manage conversations",
}

var conversationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		list := e.app.Conversations()
		if len(list) == 0 {
			fmt.Println("No conversations found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTOKENS\tUPDATED")
		for _, c := range list {
			tokens := "-"
			if c.Usage != nil {
				tokens = humanize.Comma(int64(c.Usage.TokenCount))
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				c.ID,
				conversations.Title(c),
				tokens,
				humanize.Time(c.UpdatedAt),
			)
		}
		return w.Flush()
	},
}

var conversationNewCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		c, err := e.app.Create(ctx, args[0])
		if err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
		fmt.Fprintln(os.Stdout, c.ID)
		return nil
	},
}

var conversationShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		history, _ := cmd.Flags().GetBool("history")

		ctx := context.Background()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		id := types.ConversationID(args[0])
		c, err := e.app.Conversation(id)
		if err != nil {
			return err
		}
		list, err := e.app.Messages(ctx, id)
		if err != nil {
			return fmt.Errorf("read messages: %w", err)
		}

		fmt.Fprintf(os.Stdout, "# %s\n", conversations.Title(c))
		for _, a := range c.Assets {
			fmt.Fprintf(os.Stdout, "attached: %s%s\n", a.File, a.URL)
		}
		for _, m := range list {
			fmt.Fprintf(os.Stdout, "\n[%s] %s (%s, %s)\n", m.ID, m.Author.Name, m.Status, humanize.Time(m.CreatedAt))
			fmt.Fprintln(os.Stdout, types.TextOf(m.Content))
			if !history {
				continue
			}
			for i := 1; i < messages.Versions(m); i++ {
				prev, err := messages.HistoryAt(m, i, false)
				if err != nil {
					break
				}
				fmt.Fprintf(os.Stdout, "  -%d: %s\n", i, strings.ReplaceAll(prev, "\n", " "))
			}
		}
		return nil
	},
}

var conversationRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a conversation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		return e.app.Rename(ctx, types.ConversationID(args[0]), args[1])
	},
}

var conversationRemoveCmd = &cobra.Command{
	Use:   "rm <id|all>",
	Short: "Delete a conversation or all conversations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		if args[0] == "all" {
			list := e.app.Conversations()
			for _, c := range list {
				if err := e.app.Delete(ctx, c.ID); err != nil {
					return fmt.Errorf("delete conversation %s: %w", c.ID, err)
				}
			}
			fmt.Fprintf(os.Stdout, "%d conversations deleted.\n", len(list))
			return nil
		}

		if err := e.app.Delete(ctx, types.ConversationID(args[0])); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Conversation %s deleted.\n", args[0])
		return nil
	},
}

var conversationPresetCmd = &cobra.Command{
	Use:   "preset <id> <preset-id>",
	Short: "Select the preset of a conversation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		return e.app.SetPreset(ctx, types.ConversationID(args[0]), types.PresetID(args[1]))
	},
}
