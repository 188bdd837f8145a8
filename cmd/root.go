package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mspro-labs/cfe-tariffs/internal/config"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "cfe-tariffs",
	Short: "Scrapes CFE industrial tariffs into bilingual JSON, SQLite and Excel.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
	SilenceUsage: true,
}

func init() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML site config (overrides CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
}

// Execute runs the CLI.
func Execute() {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, using environment")
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging() error {
	level := logLevel
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if level == "" {
		level = "info"
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(parsed)
	return nil
}

// loadConfig reads the env settings and the site config, applying flag overrides.
func loadConfig() (config.AppConfig, *config.SiteConfig, error) {
	appCfg, err := config.GetAppConfig()
	if err != nil {
		return appCfg, nil, fmt.Errorf("config error: %w", err)
	}
	if configPath != "" {
		appCfg.ConfigPath = configPath
	}
	if logLevel != "" {
		appCfg.LogLevel = logLevel
	}
	siteCfg, err := config.LoadSiteConfig(appCfg.ConfigPath)
	if err != nil {
		return appCfg, nil, fmt.Errorf("failed to load site config: %w", err)
	}
	return appCfg, siteCfg, nil
}
