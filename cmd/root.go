package cmd

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/signalnine/skillbench/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "skillbench",
		Short:        "Measure whether an agent skill improves model output",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "skillbench.yaml", "config file path")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	root.AddCommand(newRunCmd())
	root.AddCommand(newScoreCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newLeaderboardCmd())
	root.AddCommand(newValidateCmd())
	return root
}

// loadConfig reads --config. The default path is optional; an explicit one
// is not.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if _, err := os.Stat(cfgFile); errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		slog.Debug("no config file, using defaults", "path", cfgFile)
		return config.Default(), nil
	}
	return config.Load(cfgFile)
}
