package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/user/opla/internal/app"
	"github.com/user/opla/internal/gateway"
	"github.com/user/opla/internal/messages"
	"github.com/user/opla/internal/types"
)

func init() {
	rootCmd.AddCommand(sendCmd, messageCmd)
	messageCmd.AddCommand(messageResendCmd, messageEditCmd, messageRemoveCmd)

	sendCmd.Flags().StringP("conversation", "c", "", "conversation id (default: start a new conversation)")
	sendCmd.Flags().String("model", "", "model to bind the conversation to")
	sendCmd.Flags().String("provider", "", "provider serving --model (default: configured provider)")
	sendCmd.Flags().StringSlice("attach", nil, "files or URLs to attach to the conversation")
}

var sendCmd = &cobra.Command{
	Use:   "send <prompt>",
	Short: "Send a prompt and stream the response",
	Long: `Send a prompt and stream the response.

Mention a model with @name to use it for this message only.
Press Ctrl-C to stop the response; what arrived so far is kept.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	convID, _ := cmd.Flags().GetString("conversation")
	model, _ := cmd.Flags().GetString("model")
	provider, _ := cmd.Flags().GetString("provider")
	attach, _ := cmd.Flags().GetStringSlice("attach")
	raw := strings.Join(args, " ")

	ctx := context.Background()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	var id types.ConversationID
	if convID == "" {
		id = e.app.NewTemp().ID
	} else {
		id = types.ConversationID(convID)
	}

	if len(attach) > 0 {
		if _, err := e.app.AttachFiles(ctx, id, attach); err != nil {
			return fmt.Errorf("attach files: %w", err)
		}
	}
	if model != "" {
		if provider == "" {
			provider = e.cfg.LLM.Provider
		}
		conn := types.Connector{Type: types.ConnectorModel, ModelID: model, ProviderID: provider}
		if err := e.app.SetConnector(ctx, id, conn); err != nil {
			return fmt.Errorf("set model: %w", err)
		}
	}
	if _, err := e.app.SetPrompt(id, raw, len(raw)); err != nil {
		return err
	}

	return stream(ctx, e.app, id, func(opts ...gateway.RunOption) (*gateway.Run, error) {
		return e.app.Send(ctx, id, opts...)
	})
}

// stream starts a run with start, prints the assistant text as it arrives
// and cancels the run on SIGINT.
func stream(ctx context.Context, a *app.App, id types.ConversationID, start func(...gateway.RunOption) (*gateway.Run, error)) error {
	var printed int
	updates := make(chan string, 64)

	// Only the response of this run is streaming.
	run, err := start(gateway.WithOnUpdate(func(list []types.Message) {
		for _, m := range list {
			if m.Author.Role != types.RoleAssistant || m.Status != types.StatusStream {
				continue
			}
			select {
			case updates <- types.TextOf(m.Content):
			default:
			}
		}
	}))
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	started := time.Now()
	for {
		select {
		case text := <-updates:
			if len(text) > printed {
				fmt.Fprint(os.Stdout, text[printed:])
				printed = len(text)
			}
		case sig := <-sigChan:
			slog.Debug("cancelling completion", "signal", sig, "conversation_id", id)
			a.Cancel(id)
		case <-run.Done():
			return finishStream(ctx, a, id, run, printed, started)
		}
	}
}

func finishStream(ctx context.Context, a *app.App, id types.ConversationID, run *gateway.Run, printed int, started time.Time) error {
	list, err := a.Messages(ctx, id)
	if err != nil {
		return err
	}
	msg, ok := messages.Find(list, run.AssistantMessageID)
	if !ok {
		return fmt.Errorf("response %s not found", run.AssistantMessageID)
	}

	text := types.TextOf(msg.Content)
	switch {
	case msg.Status == types.StatusError:
		fmt.Fprintln(os.Stderr, text)
		if cause := msg.Metadata[messages.MetadataError]; cause != "" {
			return fmt.Errorf("completion failed: %s", cause)
		}
		return fmt.Errorf("completion failed")
	case printed < len(text):
		fmt.Fprint(os.Stdout, text[printed:])
	}
	fmt.Fprintln(os.Stdout)

	line := fmt.Sprintf("[%s] %s", id, msg.Metadata[messages.MetadataOutcome])
	if msg.Usage != nil {
		line += fmt.Sprintf(", %s tokens, %.1f tok/s", humanize.Comma(int64(msg.Usage.TokenCount)), msg.Usage.TotalPerSecond)
	}
	line += ", started " + humanize.Time(started)
	fmt.Fprintln(os.Stderr, line)
	return nil
}

var messageCmd = &cobra.Command{
	Use:   "message",
	Short: "Work with the messages of a conversation",
}

var messageResendCmd = &cobra.Command{
	Use:   "resend <conversation-id> <message-id>",
	Short: "Generate a new response; the previous one is kept in its history",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		id := types.ConversationID(args[0])
		return stream(ctx, e.app, id, func(opts ...gateway.RunOption) (*gateway.Run, error) {
			return e.app.Resend(ctx, id, types.MessageID(args[1]), opts...)
		})
	},
}

var messageEditCmd = &cobra.Command{
	Use:   "edit <conversation-id> <message-id> <text>",
	Short: "Replace the text of a message",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		msg, err := e.app.EditMessage(ctx, types.ConversationID(args[0]), types.MessageID(args[1]), args[2])
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Message %s edited (%d versions).\n", msg.ID, messages.Versions(msg))
		return nil
	},
}

var messageRemoveCmd = &cobra.Command{
	Use:   "rm <conversation-id> <message-id>",
	Short: "Delete a message and the response linked to it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		if err := e.app.DeleteMessage(ctx, types.ConversationID(args[0]), types.MessageID(args[1])); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Message %s deleted.\n", args[1])
		return nil
	},
}
