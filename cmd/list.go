package cmd

import (
	"fmt"
	"time"

	"github.com/iksnae/chatsync/internal"
	"github.com/spf13/cobra"
)

var (
	listSearch     string
	listClearCache bool
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"history"},
	Short:   "List saved conversations",
	Long: `List saved conversations grouped by recency (Today, Yesterday, Last 7 days, Older).

Signed-in users see their remote conversations; guests see the local ones.
When the backend is unreachable the last cached listing is shown instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if listClearCache {
			if err := a.cache.ClearCache(); err != nil {
				internal.LogWarn("Failed to clear cache: %v", err)
			} else {
				internal.LogInfo("Cache cleared")
			}
		}

		view := a.history()
		if err := view.Refresh(ctx); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if offline, at := view.Offline(); offline {
			fmt.Fprintln(out, warningStyle.Render(fmt.Sprintf("Offline: showing history cached %s", formatWhen(at, time.Now()))))
		}
		renderGroups(out, view.Groups(listSearch), time.Now())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVarP(&listSearch, "search", "s", "", "Only show conversations whose title contains this text")
	listCmd.Flags().BoolVar(&listClearCache, "clear-cache", false, "Clear the offline cache before listing")
}
