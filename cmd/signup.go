package cmd

import (
	"errors"
	"fmt"

	"github.com/iksnae/chatsync/internal/auth"
	"github.com/spf13/cobra"
)

var (
	signupEmail    string
	signupUsername string
)

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account on the configured auth platform",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		p := newPrompter(cmd.InOrStdin(), out)
		email, err := p.Line("Email", signupEmail)
		if err != nil {
			return err
		}
		username, err := p.Line("Username", signupUsername)
		if err != nil {
			return err
		}
		password, err := p.Password("Password")
		if err != nil {
			return err
		}
		if len(password) < 6 {
			return fmt.Errorf("password must be at least 6 characters")
		}

		_, err = a.auth.Provider().SignUp(ctx, email, password, username)
		if errors.Is(err, auth.ErrConfirmationPending) {
			fmt.Fprintln(out, infoStyle.Render("Account created. Check your inbox to confirm it, then run 'chatsync login'."))
			return nil
		}
		if err != nil {
			return err
		}
		if err := a.auth.Refresh(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, successStyle.Render("Account created, signed in as "+email))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(signupCmd)
	signupCmd.Flags().StringVarP(&signupEmail, "email", "e", "", "Account email")
	signupCmd.Flags().StringVarP(&signupUsername, "username", "u", "", "Display name")
}
