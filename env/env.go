package env

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Matozap/DistributedCache/logger"
	"github.com/spf13/cobra"
	"github.com/xhit/go-str2duration/v2"
)

// FlagOrEnv will try and get a flag from the cobra.Command and if not found, look it up in the environment
// and fallback to defaultValue if non found
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	if cmd != nil {
		if flagValue, _ := cmd.Flags().GetString(flagName); flagValue != "" {
			return flagValue
		}
	}
	if val, ok := os.LookupEnv(envName); ok {
		return val
	}
	return defaultValue
}

// String returns the value of envName, or defaultValue when unset or empty.
func String(envName string, defaultValue string) string {
	if val := os.Getenv(envName); val != "" {
		return val
	}
	return defaultValue
}

// Int returns envName parsed as an int, or defaultValue when unset or invalid.
func Int(envName string, defaultValue int) int {
	if val := os.Getenv(envName); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultValue
}

// Bool returns envName parsed as a bool, or defaultValue when unset or invalid.
func Bool(envName string, defaultValue bool) bool {
	if val := os.Getenv(envName); val != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			return b
		}
	}
	return defaultValue
}

// ParseDuration accepts Go durations plus day and week units ("1d12h", "2w").
func ParseDuration(val string) (time.Duration, error) {
	return str2duration.ParseDuration(strings.TrimSpace(val))
}

// LogLevel resolves the log level from the --log-level flag, then MEMENTO_LOG_LEVEL, defaulting to info.
func LogLevel(cmd *cobra.Command) logger.LogLevel {
	level, ok := logger.ParseLevel(FlagOrEnv(cmd, "log-level", logger.EnvLogLevel, "info"))
	if !ok {
		return logger.LevelInfo
	}
	return level
}

// LogFormat resolves the output format from the --log-format flag, then MEMENTO_LOG_FORMAT.
// Anything other than "json" selects the console format.
func LogFormat(cmd *cobra.Command) string {
	if strings.EqualFold(strings.TrimSpace(FlagOrEnv(cmd, "log-format", logger.EnvLogFormat, "")), "json") {
		return "json"
	}
	return "console"
}

// NewLogger returns a logger by first checking the cobra.Command log-level flag, then use the
// MEMENTO_LOG_LEVEL environment value and falling back to the info logger level.
// The --log-format flag or MEMENTO_LOG_FORMAT selects JSON lines instead of console output.
func NewLogger(cmd *cobra.Command) logger.Logger {
	level := LogLevel(cmd)
	if LogFormat(cmd) == "json" {
		return logger.NewJSONLogger(level)
	}
	log.SetFlags(0)
	return logger.NewConsoleLogger(level)
}
