package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	cfg        *Config
)

// rootCmd is the "login-tool" command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "login-tool",
	Short:         "Manage device logins and PIN credentials",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
			zerolog.SetGlobalLevel(level)
		}
		if cfg.Harden {
			harden()
		}
		return nil
	},
}

func init() {
	defaultConfig := "loginkit.yaml"
	if dir, err := os.UserConfigDir(); err == nil {
		defaultConfig = filepath.Join(dir, "loginkit", "config.yaml")
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfig, "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")
}

// Execute runs the root command.
func Execute() int {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("Command failed")
		return 1
	}
	return 0
}
