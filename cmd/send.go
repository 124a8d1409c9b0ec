package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var sendSession string

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send one message and print the reply",
	Long: `Send one message and print the reply. The turn is saved like any chat
turn; with --session it continues that saved conversation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		shell := a.shell()
		if sendSession != "" {
			if _, err := shell.Load(ctx, sendSession); err != nil {
				return err
			}
		}

		res, err := shell.Send(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, newMarkdown(out).Render(res.Reply.Text))
		if res.SyncErr != nil {
			return fmt.Errorf("reply received but not saved: %w", res.SyncErr)
		}
		if b := shell.State().Binding(); b.Bound() {
			fmt.Fprintln(cmd.ErrOrStderr(), idStyle.Render(fmt.Sprintf("saved to %s session %s", b.Mode, b.ID)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&sendSession, "session", "", "Continue this saved conversation")
}
