package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/spf13/cobra"
)

type credentialFlags struct {
	email    string
	password string
}

func (f *credentialFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&f.password, "password", "p", "", "account password (read from stdin when omitted)")
	_ = cmd.MarkFlagRequired("email")
}

// resolve reads the password from in when it was not given as a flag.
func (f *credentialFlags) resolve(cmd *cobra.Command) error {
	if f.password != "" {
		return nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("read password: %w", err)
	}
	f.password = strings.TrimRight(line, "\r\n")
	return nil
}

func printSignedIn(cmd *cobra.Command, s *domain.Session) {
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (session valid until %s)\n",
		s.Email, s.ExpiresAt.Local().Format("2006-01-02 15:04"))
}

func (a *app) signupCmd() *cobra.Command {
	var f credentialFlags
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.resolve(cmd); err != nil {
				return err
			}
			s, err := a.client.SignUp(cmd.Context(), f.email, f.password)
			if err != nil {
				return err
			}
			printSignedIn(cmd, s)
			return nil
		},
	}
	f.bind(cmd)
	return cmd
}

func (a *app) loginCmd() *cobra.Command {
	var f credentialFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.resolve(cmd); err != nil {
				return err
			}
			s, err := a.client.SignIn(cmd.Context(), f.email, f.password)
			if err != nil {
				return err
			}
			printSignedIn(cmd, s)
			return nil
		},
	}
	f.bind(cmd)
	return cmd
}

func (a *app) magicLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "magic-link <email>",
		Short: "Email yourself a one-time sign-in link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.RequestMagicLink(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Check your inbox, then run: advisor verify <token>")
			return nil
		},
	}
}

func (a *app) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Sign in with the token from a magic link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.client.VerifyMagicLink(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printSignedIn(cmd, s)
			return nil
		},
	}
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.client.Sessions().Current() == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return nil
			}
			if err := a.client.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			s, err := a.client.Session(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", s.Email, s.UserID)
			return nil
		},
	}
}
