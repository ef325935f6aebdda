package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func (a *app) profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update your career profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			p, err := a.client.Profile(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:        %s\n", p.FullName)
			fmt.Fprintf(out, "Headline:    %s\n", p.Headline)
			fmt.Fprintf(out, "Target role: %s\n", p.TargetRole)
			fmt.Fprintf(out, "Location:    %s\n", p.Location)
			fmt.Fprintf(out, "Skills:      %s\n", strings.Join(p.Skills, ", "))
			return nil
		},
	}
	cmd.AddCommand(a.profileSetCmd())
	return cmd
}

func (a *app) profileSetCmd() *cobra.Command {
	var name, headline, role, location string
	var skills []string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update profile fields; omitted flags keep their value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			p, err := a.client.Profile(cmd.Context())
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("name") {
				p.FullName = name
			}
			if flags.Changed("headline") {
				p.Headline = headline
			}
			if flags.Changed("role") {
				p.TargetRole = role
			}
			if flags.Changed("location") {
				p.Location = location
			}
			if flags.Changed("skills") {
				p.Skills = skills
			}
			if _, err := a.client.UpdateProfile(cmd.Context(), p); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Profile updated.")
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&headline, "headline", "", "professional headline")
	cmd.Flags().StringVar(&role, "role", "", "target role")
	cmd.Flags().StringVar(&location, "location", "", "location")
	cmd.Flags().StringSliceVar(&skills, "skills", nil, "comma-separated skills")
	return cmd
}
