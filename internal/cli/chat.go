package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/ashureev/career-advisor/internal/chatview"
	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/spf13/cobra"
)

func printEntry(w io.Writer, e chatview.Entry) {
	who := "You"
	if e.Message.Role == domain.RoleAssistant {
		who = "Advisor"
	}
	fmt.Fprintf(w, "%s: %s\n", who, e.Message.Content)
	for _, a := range e.Message.Attachments {
		fmt.Fprintf(w, "  [attachment] %s\n", a)
	}
	fmt.Fprintln(w)
}

func (a *app) chatCmd() *cobra.Command {
	var attachments []string
	cmd := &cobra.Command{
		Use:   "chat <conversation-id>",
		Short: "Chat in a conversation; one message per line, /quit to leave",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			view := chatview.New(a.client, notifier{out, cmd.ErrOrStderr()})
			defer view.Close()

			if err := view.Load(cmd.Context(), args[0]); err != nil {
				return err
			}
			conv := view.Conversation()
			fmt.Fprintf(out, "# %s\n\n", conv.Title)
			for _, e := range view.Entries() {
				printEntry(out, e)
			}

			pending := attachments
			scanner := bufio.NewScanner(cmd.InOrStdin())
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					fmt.Fprintln(out)
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				switch {
				case line == "":
					continue
				case line == "/quit" || line == "/exit":
					return nil
				case strings.HasPrefix(line, "/attach "):
					pending = append(pending, strings.TrimSpace(strings.TrimPrefix(line, "/attach ")))
					fmt.Fprintf(out, "%d attachment(s) will be sent with your next message\n", len(pending))
					continue
				}

				fmt.Fprintln(out, chatview.ThinkingText)
				if !view.Submit(cmd.Context(), line, pending) {
					continue
				}
				pending = nil
				entries := view.Entries()
				printEntry(out, entries[len(entries)-1])
			}
		},
	}
	cmd.Flags().StringSliceVar(&attachments, "attach", nil, "file URLs to send with the first message")
	return cmd
}
