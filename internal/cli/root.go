// Package cli defines the Cobra commands of the advisor terminal client.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ashureev/career-advisor/internal/client"
	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

var version = "dev" // set via ldflags at build time

// app holds the state shared by every command.
type app struct {
	server      string
	sessionFile string
	client      *client.Client
}

// NewRootCommand builds the advisor command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "advisor",
		Short: "AI career advisor in your terminal",
		Long: `advisor talks to a career advisor server: chat with specialized
advisor personas, get feedback on your resume and take skill assessments.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	server := os.Getenv("ADVISOR_SERVER")
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().StringVar(&a.server, "server", server, "advisor server URL (env ADVISOR_SERVER)")
	root.PersistentFlags().StringVar(&a.sessionFile, "session-file", "", "where the session is stored (default $XDG_CONFIG_HOME/career-advisor/session.json)")

	root.AddCommand(
		a.signupCmd(),
		a.loginCmd(),
		a.magicLinkCmd(),
		a.verifyCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.conversationsCmd(),
		a.chatCmd(),
		a.quizCmd(),
		a.analyzeCmd(),
		a.profileCmd(),
	)
	return root
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", friendly(err))
		os.Exit(1)
	}
}

func (a *app) init() error {
	if a.client != nil {
		return nil
	}
	path := a.sessionFile
	if path == "" {
		p, err := client.DefaultSessionPath()
		if err != nil {
			return err
		}
		path = p
	}
	a.client = client.New(a.server, client.LoadSessionProvider(path))
	return nil
}

// requireSession fails early when no one is signed in.
func (a *app) requireSession() error {
	if a.client.Sessions().Current() == nil {
		return errors.New("not signed in; run: advisor login")
	}
	return nil
}

// friendly turns common failures into short messages.
func friendly(err error) string {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, domain.ErrStoreUnavailable) && !errors.As(err, &apiErr):
		return "cannot reach the advisor server"
	case errors.As(err, &apiErr):
		return apiErr.Message
	default:
		return err.Error()
	}
}

// notifier prints view-model notices.
type notifier struct {
	out, err io.Writer
}

func (n notifier) Info(msg string)  { fmt.Fprintln(n.out, msg) }
func (n notifier) Error(msg string) { fmt.Fprintln(n.err, msg) }
