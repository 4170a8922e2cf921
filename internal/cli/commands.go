package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/infrastructure/realtime"
	"campusmarket/pkg/errors"
)

var (
	idColor     = color.New(color.FgCyan)
	senderColor = color.New(color.FgGreen, color.Bold)
	errColor    = color.New(color.FgRed)
	dimColor    = color.New(color.Faint)
)

// RootCmd assembles chatctl.
func RootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chatctl",
		Short: "Inspect and drive campus marketplace conversations",
		Long: `chatctl talks to the same store and realtime bus as the API server,
configured through the usual environment variables (STORE_BACKEND,
SQLITE_PATH, BUS_BACKEND, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(ResolveCmd())
	rootCmd.AddCommand(SendCmd())
	rootCmd.AddCommand(HistoryCmd())
	rootCmd.AddCommand(TailCmd())
	return rootCmd
}

// ResolveCmd finds or creates the conversation between two users.
func ResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Find or create the conversation between two users",
		Long: `Resolve returns the conversation between --as and --with about --listing,
creating it with --as as the buyer when none exists.

Examples:
  chatctl resolve --as b1 --with s1 --listing listing-42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, _ := cmd.Flags().GetString("as")
			counterparty, _ := cmd.Flags().GetString("with")
			listing, _ := cmd.Flags().GetString("listing")

			b, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			conversationID, err := b.resolver.Resolve(cmd.Context(), actor, counterparty, listing)
			if err != nil {
				return describe(err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), idColor.Sprint(conversationID))
			return nil
		},
	}

	cmd.Flags().String("as", "", "Acting user id (becomes the buyer on creation)")
	cmd.Flags().String("with", "", "Counterparty user id")
	cmd.Flags().String("listing", "", "Listing id the conversation is about")
	cmd.MarkFlagRequired("as")
	cmd.MarkFlagRequired("with")
	return cmd
}

// SendCmd posts a message as a participant.
func SendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <conversation-id> <text...>",
		Short: "Send a message into a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sender, _ := cmd.Flags().GetString("as")

			b, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			message, err := b.messages.Send(cmd.Context(), args[0], sender, strings.Join(args[1:], " "))
			if err != nil {
				return describe(err)
			}

			printMessage(cmd.OutOrStdout(), message)
			return nil
		},
	}

	cmd.Flags().String("as", "", "Sending user id")
	cmd.MarkFlagRequired("as")
	return cmd
}

// HistoryCmd prints a conversation in order.
func HistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <conversation-id>",
		Short: "Print the ordered history of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			viewer, _ := cmd.Flags().GetString("as")

			b, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			messages, err := b.messages.History(cmd.Context(), args[0], viewer)
			if err != nil {
				return describe(err)
			}

			out := cmd.OutOrStdout()
			if len(messages) == 0 {
				fmt.Fprintln(out, dimColor.Sprint("(no messages)"))
			}
			for _, message := range messages {
				printMessage(out, message)
			}
			return nil
		},
	}

	cmd.Flags().String("as", "", "Viewing participant id")
	cmd.MarkFlagRequired("as")
	return cmd
}

// TailCmd follows live message events.
func TailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Stream new messages as they are inserted",
		Long: `Tail prints message events until interrupted.

Without --conversation it follows every conversation the --as user takes part
in; with it, only that conversation.

Examples:
  chatctl tail --as s1
  chatctl tail --as s1 --conversation 6f1c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("as")
			conversationID, _ := cmd.Flags().GetString("conversation")
			ctx := cmd.Context()

			b, err := open(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			scope := entity.GlobalScope(userID)
			if conversationID != "" {
				if _, err := b.messages.Conversation(ctx, conversationID, userID); err != nil {
					return describe(err)
				}
				scope = entity.ConversationScope(conversationID)
			}

			sub, err := b.bus.Subscribe(ctx, scope)
			if err != nil {
				return describe(err)
			}
			defer sub.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, dimColor.Sprintf("following %s", scope))
			return follow(cmd, sub, out)
		},
	}

	cmd.Flags().String("as", "", "User id whose conversations are followed")
	cmd.Flags().String("conversation", "", "Follow a single conversation")
	cmd.MarkFlagRequired("as")
	return cmd
}

func follow(cmd *cobra.Command, sub *realtime.Subscription, out io.Writer) error {
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case <-sub.Done():
			if err := sub.Err(); err != nil {
				return describe(err)
			}
			return nil
		case event := <-sub.Events():
			printMessage(out, event.Message)
		}
	}
}

func printMessage(out io.Writer, message *entity.Message) {
	fmt.Fprintf(out, "%s %s %s %s\n",
		dimColor.Sprintf("#%d", message.Seq),
		dimColor.Sprint(message.CreatedAt.Local().Format(time.Kitchen)),
		senderColor.Sprintf("%s:", message.SenderID),
		message.Text,
	)
}

func describe(err error) error {
	return fmt.Errorf("%s %w", errColor.Sprintf("[%s]", errors.Code(err)), err)
}
