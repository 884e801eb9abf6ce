package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/shashin/internal/config"
	"github.com/hyperjump/shashin/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/shashin/config.yaml"

var (
	configPath string
	debugFlag  bool

	globalConfig     *config.Config
	globalConfigPath string
	globalLogger     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "shashin",
	Short: "On-device semantic photo search",
	Long: `shashin indexes the photos in your library with CLIP and finds them by
natural-language description, entirely on this machine.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}
		cfg, resolved, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if debugFlag {
			cfg.Debug = true
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		globalConfig = cfg
		globalConfigPath = resolved
		globalLogger = logger
		logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", cfg.Debug))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if globalLogger != nil {
			_ = globalLogger.Sync()
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "shashin version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "config file path")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if present, and a missing default file yields the built-in
// defaults. Returns the config and the path that was loaded ("" for built-in defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			cfg := &config.Config{}
			if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
				return nil, "", err
			}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}
