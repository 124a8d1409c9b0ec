package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var renameCmd = &cobra.Command{
	Use:   "rename <session-id> <title>",
	Short: "Change the title of a saved conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		title := strings.Join(args[1:], " ")
		if err := a.history().Rename(ctx, args[0], title); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("Renamed %s to %q", args[0], strings.TrimSpace(title))))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(renameCmd)
}
