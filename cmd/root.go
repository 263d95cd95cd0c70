package cmd

import (
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AzielCF/az-users/core/config"
)

// cfg is filled by initConfig before any subcommand runs.
var cfg *config.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "az-users",
	Short: "User registration API with shared cache and rate limiting",
	Long: `az-users serves user registration and a cached view of an external data API.
Cache entries and rate-limit counters live in Valkey so every instance shares them;
when Valkey is down the service keeps answering with stale data and local limits.`,
}

func init() {
	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Flags first, before any subcommands are added
	initFlags()

	cobra.OnInitialize(initConfig, initLogging)
}

func initFlags() {
	flags := rootCmd.PersistentFlags()

	flags.StringP("port", "p", "", "change port number with --port <number> | example: --port=8080")
	flags.BoolP("debug", "d", false, "hide or displaying log with --debug <true/false> | example: --debug=true")
	flags.String("env", "", `runtime environment --env <string> | example: --env="production"`)
	flags.String("trusted-proxies", "", `trusted proxy IP ranges --trusted-proxies <string> | example: --trusted-proxies="10.0.0.0/8,172.16.0.0/12"`)

	flags.String("db-driver", "", `database driver --db-driver <sqlite|postgres>`)
	flags.String("db-name", "", `sqlite file path or postgres database name --db-name <string> | example: --db-name="storages/users.db"`)

	flags.Bool("valkey-enabled", true, "use Valkey as shared store --valkey-enabled <true/false>")
	flags.String("valkey-address", "", `valkey address --valkey-address <host:port> | example: --valkey-address="localhost:6379"`)

	flags.String("extra-api-url", "", `external data API --extra-api-url <url> | example: --extra-api-url="https://api.example.com/data"`)

	bind := map[string]string{
		"app_port":            "port",
		"app_debug":           "debug",
		"app_env":             "env",
		"app_trusted_proxies": "trusted-proxies",
		"db_driver":           "db-driver",
		"db_name":             "db-name",
		"valkey_enabled":      "valkey-enabled",
		"valkey_address":      "valkey-address",
		"extra_api_url":       "extra-api-url",
	}
	for key, flag := range bind {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			logrus.Fatalf("[CONFIG] bind flag %s: %v", flag, err)
		}
	}
}

// initConfig loads .env, environment variables and flags into cfg.
func initConfig() {
	loaded, err := config.LoadConfig(viper.GetViper())
	if err != nil {
		logrus.Fatalf("[CONFIG] %v", err)
	}
	cfg = loaded
}

func initLogging() {
	if cfg.IsProduction() {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level := logrus.InfoLevel
	if cfg.App.Debug {
		level = logrus.DebugLevel
	}
	if raw := strings.TrimSpace(cfg.App.LogLevel); raw != "" {
		parsed, err := logrus.ParseLevel(raw)
		if err != nil {
			logrus.Warnf("[CONFIG] unknown LOG_LEVEL %q, keeping %s", raw, level)
		} else {
			level = parsed
		}
	}
	logrus.SetLevel(level)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
