package cli

import (
	"fmt"

	"github.com/ashureev/career-advisor/internal/advisor"
	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/spf13/cobra"
)

func (a *app) analyzeCmd() *cobra.Command {
	var discuss bool
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Upload a resume or document and get feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			stored, err := a.client.UploadFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Uploaded %s (%d bytes)\n", stored.Name, stored.Size)

			analysis, err := a.client.AnalyzeFile(cmd.Context(), advisor.FileRequest{
				FileURL:  stored.URL,
				FileName: stored.Name,
				FileType: stored.ContentType,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(out, analysis)

			if discuss {
				conv, err := a.client.CreateConversation(cmd.Context(), domain.TypeResume, stored.Key, "")
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\nContinue with: advisor chat %s --attach %s\n", conv.ID, stored.URL)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&discuss, "discuss", false, "also open a resume conversation about the file")
	return cmd
}
