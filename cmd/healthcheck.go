package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var healthcheckVerbose bool

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check configuration, local store, backend and auth",
	Long: `Check the health of chatsync by verifying:
  • Configuration loading
  • Local store accessibility
  • Chat backend reachability
  • Auth platform configuration and session state
  • Offline cache directory

This command is useful for debugging connectivity and setup issues.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, sectionStyle.Render("chatsync health check"))
		fmt.Fprintln(out)

		ok := true
		step := func(n int, title string) {
			fmt.Fprintln(out, infoStyle.Render(fmt.Sprintf("Step %d: %s...", n, title)))
		}
		pass := func(msg string) { fmt.Fprintln(out, successStyle.Render("✅ "+msg)) }
		warn := func(msg string) { fmt.Fprintln(out, warningStyle.Render("⚠️  "+msg)) }
		fail := func(msg string, err error) {
			ok = false
			fmt.Fprintln(out, errorStyle.Render("❌ "+msg+":"), err)
		}
		detail := func(format string, args ...interface{}) {
			if healthcheckVerbose {
				fmt.Fprintf(out, "   "+format+"\n", args...)
			}
		}

		step(1, "Loading configuration")
		if cfg.ConfigFile != "" {
			pass("Config file loaded")
			detail("File: %s", cfg.ConfigFile)
		} else {
			pass("Using defaults and environment")
		}
		detail("API URL: %s", cfg.APIURL)
		fmt.Fprintln(out)

		ctx := cmd.Context()
		step(2, "Opening local store")
		a, err := newApp(ctx)
		if err != nil {
			fail("Local store unavailable", err)
			return summary(out, false)
		}
		defer a.Close()
		keys, err := a.storage.Keys(ctx)
		if err != nil {
			fail("Local store unreadable", err)
		} else {
			pass("Local store ready")
			detail("Path: %s", a.storage.Path())
			detail("Keys: %d", len(keys))
		}
		if guest, err := a.local.List(ctx); err != nil {
			fail("Guest conversations unreadable", err)
		} else {
			detail("Guest conversations: %d", len(guest))
		}
		fmt.Fprintln(out)

		step(3, "Contacting chat backend")
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		start := time.Now()
		err = a.client.Ping(pingCtx)
		cancel()
		if err != nil {
			fail("Backend unreachable", err)
		} else {
			pass("Backend reachable")
			detail("Round trip: %s", time.Since(start).Round(time.Millisecond))
		}
		fmt.Fprintln(out)

		step(4, "Checking auth")
		switch {
		case cfg.AccessToken != "":
			pass("Using a pre-issued access token")
		case cfg.AuthConfigured():
			pass("Auth platform configured")
			detail("Auth URL: %s", cfg.SupabaseURL)
		default:
			warn("No auth platform configured, conversations are saved locally")
		}
		detail("Mode: %s", a.auth.Mode())
		fmt.Fprintln(out)

		step(5, "Checking offline cache")
		if err := a.cache.EnsureCacheDir(); err != nil {
			warn(fmt.Sprintf("Cache directory unusable: %v", err))
		} else if _, err := os.Stat(a.cache.GetIndexPath()); err == nil {
			pass("Cached history present")
		} else {
			pass("Cache directory ready")
		}
		detail("Directory: %s", a.cache.GetCacheDir())
		fmt.Fprintln(out)

		return summary(out, ok)
	},
}

func summary(out io.Writer, ok bool) error {
	fmt.Fprintln(out, sectionStyle.Render("Summary"))
	if ok {
		fmt.Fprintln(out, successStyle.Render("✅ Health check passed!"))
		return nil
	}
	fmt.Fprintln(out, errorStyle.Render("❌ Health check failed"))
	return fmt.Errorf("health check failed")
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().BoolVarP(&healthcheckVerbose, "detail", "d", false, "Show detailed diagnostic information")
}
