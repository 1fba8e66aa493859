package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/corray333/backend-labs/dispatcher/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultRetryInterval  = 500 * time.Millisecond
	defaultMaxBacklogSize = 1000
	defaultStatusTimeout  = 15 * time.Second
)

// MustInit loads .env and config.yaml into viper and installs the default logger.
func MustInit() {
	if err := godotenv.Load("./.env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic("error while loading .env file: " + err.Error())
	}
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/dispatcher")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		panic("error while reading config file: " + err.Error())
	}
	SetupLogger()
}

// SetupLogger installs the JSON slog handler at log.level as the default logger.
func SetupLogger() {
	handler := logger.NewHandler(&logger.Options{Level: viper.GetString("log.level")})
	log := slog.New(handler)
	slog.SetDefault(log)
}

// RetryInterval returns the drain cadence and the delay before a rejected
// delivery becomes due.
func RetryInterval() time.Duration {
	return millis("dispatcher.retry_interval_ms", defaultRetryInterval)
}

// MaxBacklogSize returns the backlog size at which dispatch pauses.
func MaxBacklogSize() int {
	if size := viper.GetInt("dispatcher.max_backlog_size"); size > 0 {
		return size
	}

	return defaultMaxBacklogSize
}

// MaxAttempts returns the resend cap; 0 means retry until accepted.
func MaxAttempts() int {
	if attempts := viper.GetInt("retry.max_attempts"); attempts > 0 {
		return attempts
	}

	return 0
}

// SourceKind returns the configured event source: "amqp" or "kafka".
func SourceKind() string {
	if kind := viper.GetString("source.kind"); kind != "" {
		return kind
	}

	return "amqp"
}

// StatusTimeout returns the overall budget of one status check.
func StatusTimeout() time.Duration {
	return millis("status.timeout_ms", defaultStatusTimeout)
}

func millis(key string, fallback time.Duration) time.Duration {
	if ms := viper.GetInt(key); ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}

	return fallback
}
