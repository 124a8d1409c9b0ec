package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iksnae/chatsync/internal"
	"github.com/iksnae/chatsync/internal/export"
	"github.com/spf13/cobra"
)

var (
	format    string
	outputDir string
	exportAll bool
)

var exportCmd = &cobra.Command{
	Use:   "export [session-id...]",
	Short: "Export conversations to files",
	Long: `Export saved conversations to md, json, jsonl or yaml files.

Name the conversations to export, or pass --all for every conversation in the
active store. Use 'chatsync list' to see the ids.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		exporter, err := export.NewExporter(format)
		if err != nil {
			return err
		}
		if len(args) == 0 && !exportAll {
			return fmt.Errorf("name at least one session id or pass --all")
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		ids := args
		if exportAll {
			st, err := a.store(ctx)
			if err != nil {
				return err
			}
			sessions, err := st.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}
			ids = ids[:0:0]
			for _, s := range sessions {
				ids = append(ids, s.ID)
			}
		}

		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		written := 0
		err = internal.ShowProgress(ctx, fmt.Sprintf("Exporting %d conversation(s) to %s", len(ids), outputDir), func() error {
			for _, id := range ids {
				if err := exportOne(ctx, a, exporter, id); err != nil {
					internal.LogError("%v", err)
					continue
				}
				written++
			}
			return nil
		})
		if err != nil {
			return err
		}

		if written < len(ids) {
			return fmt.Errorf("exported %d of %d conversation(s)", written, len(ids))
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("Exported %d conversation(s) to %s", written, outputDir)))
		return nil
	},
}

func exportOne(ctx context.Context, a *app, exporter export.Exporter, id string) error {
	session, err := a.getSession(ctx, id)
	if err != nil {
		return &internal.ExportError{Format: exporter.Extension(), Path: id, Err: err}
	}
	path := filepath.Join(outputDir, export.FileName(session, exporter))
	file, err := os.Create(path)
	if err != nil {
		return &internal.ExportError{Format: exporter.Extension(), Path: path, Err: err}
	}
	if err := exporter.Export(session, file); err != nil {
		_ = file.Close()
		return &internal.ExportError{Format: exporter.Extension(), Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return &internal.ExportError{Format: exporter.Extension(), Path: path, Err: err}
	}
	internal.LogDebug("wrote %s", path)
	return nil
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&format, "format", "f", "md", "Export format (md, json, jsonl, yaml)")
	exportCmd.Flags().StringVarP(&outputDir, "out", "o", "./exports", "Output directory")
	exportCmd.Flags().BoolVar(&exportAll, "all", false, "Export every conversation in the active store")
}
