package main

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"credvault/internal/config"
)

const logLevelEnvKey = "CREDVAULT_LOG_LEVEL"

// levelSource names where the effective log level came from.
type levelSource int

const (
	levelFromDefault levelSource = iota
	levelFromFlag
	levelFromEnv
	levelFromConfig
)

func (s levelSource) String() string {
	switch s {
	case levelFromFlag:
		return "--log-level"
	case levelFromEnv:
		return logLevelEnvKey
	case levelFromConfig:
		return "log_level in .credvault.toml"
	default:
		return "default"
	}
}

// configureLoggerForCLI installs the process logger. A bad --log-level is an
// error; a bad env or config value falls back to the default level and returns
// a warning for stderr.
func configureLoggerForCLI(flagLevel, configLevel string) (string, error) {
	rawLevel, source := selectedLogLevel(flagLevel, os.Getenv(logLevelEnvKey), configLevel)
	level, err := parseLogLevel(rawLevel)
	if err != nil {
		if source == levelFromFlag {
			return "", fmt.Errorf("invalid --log-level %q (want debug, info, warn or error)", flagLevel)
		}
		slog.SetDefault(newLogger(defaultLogLevel()))
		return fmt.Sprintf("warning: ignoring %s=%q; defaulting to %s", source, rawLevel, config.DefaultLogLevel), nil
	}
	slog.SetDefault(newLogger(level))
	return "", nil
}

func selectedLogLevel(flagLevel, envLevel, configLevel string) (string, levelSource) {
	if strings.TrimSpace(flagLevel) != "" {
		return flagLevel, levelFromFlag
	}
	if strings.TrimSpace(envLevel) != "" {
		return envLevel, levelFromEnv
	}
	if strings.TrimSpace(configLevel) != "" {
		return configLevel, levelFromConfig
	}
	return "", levelFromDefault
}

func defaultLogLevel() slog.Level {
	level, err := parseLogLevel(config.DefaultLogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// parseLogLevel maps a level name or number; empty selects the configured default.
func parseLogLevel(raw string) (slog.Level, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		value = config.DefaultLogLevel
	}
	if strings.EqualFold(value, "warning") {
		value = "warn"
	}

	if numeric, err := strconv.Atoi(value); err == nil {
		return slog.Level(numeric), nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

// secretLogKeys are attribute keys whose values never reach the log.
var secretLogKeys = map[string]bool{
	"password":          true,
	"token":             true,
	"admin_token":       true,
	"secret_access_key": true,
}

// urlLogKeys are attribute keys holding URLs or DSNs that may embed credentials.
var urlLogKeys = map[string]bool{
	"amqp_url": true,
	"dsn":      true,
	"endpoint": true,
}

const redacted = "[redacted]"

// redactSecrets hides credentials carried in log attributes: secret values are
// replaced outright and URL userinfo passwords are masked.
func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	switch {
	case secretLogKeys[a.Key]:
		if a.Value.String() == "" {
			return a
		}
		return slog.String(a.Key, redacted)
	case urlLogKeys[a.Key]:
		return slog.String(a.Key, redactURL(a.Value.String()))
	default:
		return a
	}
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		if strings.Contains(raw, "password=") {
			return redacted
		}
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	query := u.Query()
	if query.Has("password") {
		query.Set("password", "xxxxx")
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactSecrets,
	}))
}
