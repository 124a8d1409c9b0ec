package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var showLimit int

var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show the messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		session, err := a.getSession(ctx, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		renderSessionHeader(out, session)

		messages := session.Messages
		total := len(messages)
		if showLimit > 0 && showLimit < total {
			messages = messages[total-showLimit:]
		}
		md := newMarkdown(out)
		first := total - len(messages)
		for i, msg := range messages {
			renderMessage(out, md, first+i+1, total, msg)
		}
		if first > 0 {
			fmt.Fprintln(out, idStyle.Render(fmt.Sprintf("(%d earlier message(s) not shown)", first)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().IntVarP(&showLimit, "limit", "n", 0, "Only show the last n messages")
}
