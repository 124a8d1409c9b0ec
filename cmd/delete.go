package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/iksnae/chatsync/internal"
	"github.com/spf13/cobra"
)

var deleteYes bool

var deleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a saved conversation",
	Long: `Delete a saved conversation from the active store.

You are asked to confirm unless --yes is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		view := a.history()
		if err := view.Refresh(ctx); err != nil {
			return err
		}
		if offline, _ := view.Offline(); offline {
			return fmt.Errorf("cannot delete while offline: %w", internal.ErrTransport)
		}
		if err := view.RequestDelete(args[0]); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if !deleteYes {
			title := args[0]
			for _, s := range view.Sessions() {
				if s.ID == args[0] {
					title = displayTitle(s.Title)
				}
			}
			fmt.Fprintf(out, "Delete %q? [y/N] ", title)
			answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if reply := strings.ToLower(strings.TrimSpace(answer)); reply != "y" && reply != "yes" {
				view.CancelDelete()
				fmt.Fprintln(out, infoStyle.Render("Cancelled"))
				return nil
			}
		}

		if err := view.ConfirmDelete(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, successStyle.Render("Deleted "+args[0]))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Delete without asking")
}
