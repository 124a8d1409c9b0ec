package cmd

import (
	"fmt"
	"os"

	"github.com/iksnae/chatsync/internal"
	"github.com/iksnae/chatsync/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	verbose bool
	cfgFile string
	logFile string
	version string = "dev"
	commit  string = "unknown"
	date    string = "unknown"

	v   *viper.Viper
	cfg *config.Config

	logSink *os.File
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatsync",
	Short: "Chat with the assistant backend and keep every conversation",
	Long: `A terminal client for the chat assistant backend.

Conversations are saved after every assistant reply: to the remote backend
when you are signed in, to a local SQLite file when you are not.

Features:
  • Interactive chat with markdown-rendered replies
  • History grouped by recency, with search, rename and delete
  • Email/password sign-in with persisted, auto-refreshed sessions
  • Offline history cache for signed-in users
  • Guest-to-account migration of local conversations
  • Export in multiple formats (md, json, jsonl, yaml)

Quick Start:
  chatsync chat                  # Start chatting
  chatsync list                  # Browse saved conversations
  chatsync show <session-id>     # Read one conversation
  chatsync login                 # Save conversations to your account`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		internal.SetLogLevel(internal.ParseLogLevel(cfg.LogLevel))
		if verbose {
			internal.SetVerbose(true)
		}
		if logFile != "" {
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("failed to open log file: %w", err)
			}
			logSink = f
			internal.SetLogOutput(f)
		}
		if cfg.ConfigFile != "" {
			internal.LogDebug("using config file %s", cfg.ConfigFile)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logSink != nil {
			internal.SetLogOutput(os.Stderr)
			_ = logSink.Close()
			logSink = nil
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if internal.IsAuthRequired(err) {
			fmt.Fprintln(os.Stderr, "Error: not signed in or session expired. Run 'chatsync login'.")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	flags.StringVar(&cfgFile, "config", "", "Config file (default ~/.chatsync/config.yaml)")
	flags.StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")
	flags.String("api-url", "", "Chat backend base URL")
	flags.String("store", "", "Path of the local SQLite store")
	flags.String("token", "", "Use a pre-issued access token instead of signing in")
	v = newViper()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// newViper returns a viper instance with the root flags bound to their keys
func newViper() *viper.Viper {
	nv := viper.New()
	flags := rootCmd.PersistentFlags()
	_ = nv.BindPFlag(config.KeyAPIURL, flags.Lookup("api-url"))
	_ = nv.BindPFlag(config.KeyStorePath, flags.Lookup("store"))
	_ = nv.BindPFlag(config.KeyAccessToken, flags.Lookup("token"))
	return nv
}
