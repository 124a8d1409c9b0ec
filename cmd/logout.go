package cmd

import (
	"fmt"

	"github.com/iksnae/chatsync/internal"
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear the offline history cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		if !a.auth.IsAuthenticated() {
			fmt.Fprintln(out, infoStyle.Render("Not signed in"))
			return nil
		}
		err = internal.ShowProgressWithSteps(ctx, []internal.ProgressStep{
			{Message: "Signing out", Fn: func() error { return a.auth.Provider().SignOut(ctx) }},
			{Message: "Clearing offline history", Fn: func() error {
				if err := a.cache.ClearCache(); err != nil {
					internal.LogWarn("Failed to clear cache: %v", err)
				}
				return nil
			}},
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(out, successStyle.Render("Signed out. New conversations are saved locally."))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
