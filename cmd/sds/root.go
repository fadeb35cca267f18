package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/arkilian/sds/internal/config"
)

var (
	verbose    bool
	configFile string
	envFile    string
	dataDir    string
	logFormat  string

	cfg    *config.Config
	logger *slog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sds",
	Short: "A typed time-series store",
	Long: `sds stores ordered events of declared types in streams, reads them
back with interpolation, and projects them through stream views.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(cmd)
		if err != nil {
			return err
		}
		logger = newLogger(cfg.Log)
		slog.SetDefault(logger)
		return nil
	},
}

// loadConfig applies, in increasing precedence, the defaults, the config
// file, the .env file and environment, and the command line flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	c := config.DefaultConfig()
	if configFile != "" {
		var err error
		if c, err = config.LoadFromFile(configFile); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	if err := config.LoadFromEnv(c); err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("data-dir") {
		c.DataDir = dataDir
	}
	if cmd.Flags().Changed("log-format") {
		c.Log.Format = logFormat
	}
	if verbose {
		c.Log.Level = "debug"
	}
	return c, nil
}

func newLogger(lc config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(lc.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before SDS_ variables are read")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")
}
