package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"tagindex/config"
	"tagindex/internal/logging"
)

var (
	cfgFile  string
	cfg      *config.Config
	rootDir  string
	logLevel string
)

// dataDirArg marks commands whose first positional argument is the data
// directory.
const dataDirArg = "data-dir-arg"

var rootCmd = &cobra.Command{
	Use:   "tagindex",
	Short: "Tag inverted index - build and query tag to post posting lists",
	Long: `tagindex turns line-delimited JSON dumps of tags and posts into a static
inverted index (tag id -> post ids) and answers AND queries over it.

Example usage:
  tagindex parse ./data          # JSON dumps -> parse cache
  tagindex build ./data          # parse cache -> posting store
  tagindex query -d ./data 0 1   # posts tagged with both 0 and 1
  tagindex serve ./data          # HTTP query service`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if cmd.Annotations[dataDirArg] == "true" && len(args) > 0 {
			rootDir = args[0]
		}
		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}
		rootDir, err = filepath.Abs(rootDir)
		if err != nil {
			return fmt.Errorf("invalid data directory: %w", err)
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
			if err == nil && (cfg.Data.Dir == "" || cfg.Data.Dir == ".") {
				cfg.Data.Dir = rootDir
			}
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level := cfg.Logging.Level
		if logLevel != "" {
			level = logLevel
		}
		logging.Setup(level, cfg.Logging.Format)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <dir>/tagindex.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "data directory (default is current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default from config)")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}
