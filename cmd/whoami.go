package cmd

import (
	"fmt"
	"time"

	"github.com/iksnae/chatsync/internal"
	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user and where conversations are saved",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		session := a.auth.Current()
		if a.auth.Mode() != internal.ModeAuthenticated {
			fmt.Fprintln(out, "Guest")
			fmt.Fprintf(out, "Conversations are saved to %s\n", a.storage.Path())
			return nil
		}

		name := "token user"
		if session.User != nil {
			name = session.User.Email
			if session.User.Username != "" {
				name = fmt.Sprintf("%s (%s)", session.User.Username, session.User.Email)
			}
			fmt.Fprintf(out, "%s\nUser ID: %s\n", name, session.User.ID)
		} else {
			fmt.Fprintln(out, name)
		}
		if !session.ExpiresAt.IsZero() {
			fmt.Fprintf(out, "Session expires %s\n", session.ExpiresAt.Local().Format(time.RFC1123))
		}
		fmt.Fprintf(out, "Conversations are saved to %s\n", cfg.APIURL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
