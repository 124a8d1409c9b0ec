package cmd

import (
	"fmt"
	"sort"

	"github.com/iksnae/chatsync/internal"
	"github.com/iksnae/chatsync/internal/store"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upload guest conversations to your account",
	Long: `Upload every conversation saved locally as a guest to the signed-in
account, message by message in order. Uploaded conversations are removed from
the local store. Conversations with identical content are uploaded once, and a
re-run after a partial failure never uploads a conversation twice.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		remote, err := a.remote(ctx)
		if err != nil {
			return err
		}

		var result *store.MigrateResult
		migrateErr := internal.ShowProgress(ctx, "Uploading guest conversations", func() error {
			var err error
			result, err = store.Migrate(ctx, a.local, remote, a.storage, cfg.MigrateConcurrency)
			return err
		})
		if result == nil {
			return migrateErr
		}

		out := cmd.OutOrStdout()
		if len(result.Uploaded)+len(result.Skipped)+len(result.Failed) == 0 {
			fmt.Fprintln(out, infoStyle.Render("No guest conversations to migrate"))
			return nil
		}
		ids := make([]string, 0, len(result.Uploaded))
		for id := range result.Uploaded {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(out, "  %s -> %s\n", idStyle.Render(id), result.Uploaded[id])
		}
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("Uploaded %d, skipped %d already uploaded or duplicate", len(result.Uploaded), len(result.Skipped))))
		if len(result.Failed) > 0 {
			fmt.Fprintln(out, warningStyle.Render(fmt.Sprintf("%d conversation(s) failed and stay local; run migrate again to retry", len(result.Failed))))
		}
		return migrateErr
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
