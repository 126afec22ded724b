package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"cascade/internal/slogutil"
	"cascade/internal/version"
)

var (
	manifestFlags []string
	scipFlag      string
	formatFlag    string
	rootFlag      string
	verbosity     int
	quietFlag     bool
)

var rootCmd = &cobra.Command{
	Use:   "cascade",
	Short: "Cascade regeneration scheduler",
	Long: `cascade finds the weakest artifacts in a repository, plans the cascade of
regenerations a change to one of them sets off, and walks that plan wave by
wave, pausing for approval after every wave.

Import graphs and weakness signals come from scanner manifests (JSON, YAML
or TOML) and, optionally, a SCIP index.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("cascade version {{.Version}}\n")

	flags := rootCmd.PersistentFlags()
	flags.StringArrayVar(&manifestFlags, "manifest", nil, "Scanner manifest to load (repeatable)")
	flags.StringVar(&scipFlag, "scip", "", "SCIP index to derive import edges from")
	flags.StringVar(&formatFlag, "format", string(FormatHuman), "Output format (json, human)")
	flags.StringVar(&rootFlag, "root", "", "Repository root (default: current directory)")
	flags.CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	flags.BoolVarP(&quietFlag, "quiet", "q", false, "Suppress all logs")
}

// newLogger returns the CLI logger; logs go to stderr so stdout stays parseable.
func newLogger() *slog.Logger {
	return slogutil.NewLogger(os.Stderr, slogutil.LevelFromVerbosity(verbosity, quietFlag))
}
