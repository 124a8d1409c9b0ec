package cmd

import (
	"fmt"

	"github.com/iksnae/chatsync/internal"
	"github.com/spf13/cobra"
)

var loginEmail string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in so conversations are saved to your account",
	Long: `Sign in with email and password against the configured auth platform
(supabase_url / supabase_anon_key). The session is kept in the local store and
refreshed automatically.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		p := newPrompter(cmd.InOrStdin(), out)
		email, err := p.Line("Email", loginEmail)
		if err != nil {
			return err
		}
		password, err := p.Password("Password")
		if err != nil {
			return err
		}

		session, err := a.auth.Provider().SignIn(ctx, email, password)
		if err != nil {
			return err
		}
		if err := a.auth.Refresh(ctx); err != nil {
			return err
		}
		internal.LogDebug("signed in until %s", session.ExpiresAt)
		fmt.Fprintln(out, successStyle.Render("Signed in as "+email))
		if guest, _ := a.local.List(ctx); len(guest) > 0 {
			fmt.Fprintln(out, infoStyle.Render(fmt.Sprintf("%d guest conversation(s) are stored locally. Run 'chatsync migrate' to upload them.", len(guest))))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Account email")
}
