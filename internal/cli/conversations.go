package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/ashureev/career-advisor/internal/chatview"
	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/spf13/cobra"
)

func (a *app) conversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv", "c"},
		Short:   "Manage conversations",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(); err != nil {
				return err
			}
			return a.requireSession()
		},
	}
	cmd.AddCommand(
		a.conversationsListCmd(),
		a.conversationsNewCmd(),
		a.conversationsShowCmd(),
		a.conversationsRenameCmd(),
		a.conversationsDeleteCmd(),
		a.conversationsExportCmd(),
	)
	return cmd
}

func (a *app) conversationsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List conversations, most recent first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			convs, err := a.client.ListConversations(cmd.Context())
			if err != nil {
				return err
			}
			if len(convs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No conversations yet. Start one with: advisor conversations new --type general")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tTITLE\tUPDATED")
			for _, c := range convs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Type, c.Title, c.UpdatedAt.Local().Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
}

func typeNames() string {
	names := make([]string, len(domain.ConversationTypes))
	for i, t := range domain.ConversationTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func (a *app) conversationsNewCmd() *cobra.Command {
	var typ, documentID, jobDescription string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a conversation with an advisor persona",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := domain.ConversationType(typ)
			if !t.Valid() {
				return fmt.Errorf("unknown type %q (one of: %s)", typ, typeNames())
			}
			conv, err := a.client.CreateConversation(cmd.Context(), t, documentID, jobDescription)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %q: %s\n", conv.Title, conv.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&typ, "type", "t", string(domain.TypeGeneral), "advisor persona: "+typeNames())
	cmd.Flags().StringVar(&documentID, "document", "", "uploaded document to discuss")
	cmd.Flags().StringVar(&jobDescription, "job", "", "job description for context")
	return cmd
}

func (a *app) conversationsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view := chatview.New(a.client, notifier{cmd.OutOrStdout(), cmd.ErrOrStderr()})
			defer view.Close()
			if err := view.Load(cmd.Context(), args[0]); err != nil {
				return err
			}
			conv := view.Conversation()
			fmt.Fprintf(cmd.OutOrStdout(), "# %s (%s)\n\n", conv.Title, conv.Type)
			for _, e := range view.Entries() {
				printEntry(cmd.OutOrStdout(), e)
			}
			return nil
		},
	}
}

func (a *app) conversationsRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := a.client.RenameConversation(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed to %q\n", conv.Title)
			return nil
		},
	}
}

func (a *app) conversationsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a conversation and its messages",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list := chatview.NewConversationList(a.client, notifier{cmd.OutOrStdout(), cmd.ErrOrStderr()})
			if err := list.Refresh(cmd.Context()); err != nil {
				return err
			}
			next, err := list.Delete(cmd.Context(), args[0], args[0])
			if err != nil {
				return err
			}
			if next != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Most recent conversation: %s\n", next)
			}
			return nil
		},
	}
}

func (a *app) conversationsExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a conversation as HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" || output == "-" {
				return a.client.ExportConversation(cmd.Context(), args[0], cmd.OutOrStdout())
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := a.client.ExportConversation(cmd.Context(), args[0], f); err != nil {
				_ = f.Close()
				_ = os.Remove(output)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default stdout)")
	return cmd
}
