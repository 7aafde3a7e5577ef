package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Matozap/DistributedCache/env"
	"github.com/Matozap/DistributedCache/logger"
	"github.com/Matozap/DistributedCache/memento"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "memento",
	Short:         "Inspect and manage a memento cache",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to a YAML options file (env MEMENTO_CONFIG)")
	flags.String("type", "", "cache type: inmemory, redis, sqlite, postgres or tiered")
	flags.String("connection", "", "connection string for the store")
	flags.String("instance", "", "redis key prefix or sql table name")
	flags.String("prefix", "", "key prefix, defaults to SERVICE_NAME or memento")
	flags.String("log-level", "", "log level: trace, debug, info, warn or error")
	flags.String("log-format", "", "log output: console or json (env MEMENTO_LOG_FORMAT)")

	rootCmd.AddCommand(getCmd, setCmd, removeCmd, clearCmd, keysCmd, initTableCmd)
}

// loadOptions reads the config file when given, otherwise the environment,
// and applies the command line flags on top.
func loadOptions(cmd *cobra.Command) (*memento.Options, error) {
	var (
		o   *memento.Options
		err error
	)
	if path := env.FlagOrEnv(cmd, "config", "MEMENTO_CONFIG", ""); path != "" {
		o, err = memento.LoadOptions(path)
	} else {
		o, err = memento.LoadOptionsFromEnv()
	}
	if err != nil {
		return nil, err
	}
	if val, _ := cmd.Flags().GetString("type"); val != "" {
		if o.Type, err = memento.ParseCacheType(val); err != nil {
			return nil, err
		}
	}
	if val, _ := cmd.Flags().GetString("connection"); val != "" {
		o.ConnectionString = val
	}
	if val, _ := cmd.Flags().GetString("instance"); val != "" {
		o.InstanceName = val
	}
	if val, _ := cmd.Flags().GetString("prefix"); val != "" {
		o.Prefix = val
	}
	return o, nil
}

// openCache opens the configured cache. configure may adjust the options
// before the store is opened.
func openCache(cmd *cobra.Command, log logger.Logger, configure func(*memento.Options)) (*memento.Cache, error) {
	o, err := loadOptions(cmd)
	if err != nil {
		return nil, err
	}
	if configure != nil {
		configure(o)
	}
	return memento.Open(cmd.Context(), o, log)
}

// reportHealth warns when the store failed during the command, since the
// cache itself only ever reports a miss.
func reportHealth(log logger.Logger, c *memento.Cache) {
	if h := c.Health(); h.ConsecutiveErrors > 0 || len(h.RecentErrors) > 0 {
		log.Warn("store errors during command (state %s): %v", h.State, h.RecentErrors)
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.NewConsoleLogger(logger.LevelError).Error("%s", err)
		cancel()
		os.Exit(1)
	}
}
