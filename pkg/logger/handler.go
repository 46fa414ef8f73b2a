package logger

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

func createHandler(config Config) (slog.Handler, error) {
	env := strings.ToLower(config.Env)

	opts := &slog.HandlerOptions{
		Level:     resolveLevel(env, config.Level),
		AddSource: config.AddSource,
	}

	switch env {
	case "prod":
		// JSON keeps RFC3339 timestamps for log shippers
		opts.ReplaceAttr = replacer("", config.SourcePathLength)
		return slog.NewJSONHandler(config.Output, opts), nil

	case "dev", "test":
		opts.ReplaceAttr = replacer(config.TimeFormat, config.SourcePathLength)
		return slog.NewTextHandler(config.Output, opts), nil

	default:
		return nil, fmt.Errorf("unknown environment: %s (use 'dev', 'prod', or 'test')", config.Env)
	}
}

// resolveLevel prefers an explicit level such as "warn" or "debug+2" and
// falls back to the environment default
func resolveLevel(env, explicit string) slog.Level {
	if explicit != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(explicit)); err == nil {
			return lvl
		}
	}

	switch env {
	case "dev":
		return slog.LevelDebug
	case "test":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// replacer formats the time key and trims source paths. An empty timeFormat
// leaves timestamps alone; pathLength 0 keeps full paths.
func replacer(timeFormat string, pathLength int) func([]string, slog.Attr) slog.Attr {
	if timeFormat == "" && pathLength == 0 {
		return nil
	}

	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}

		switch a.Key {
		case slog.TimeKey:
			if t, ok := a.Value.Any().(time.Time); ok && timeFormat != "" {
				a.Value = slog.StringValue(t.Format(timeFormat))
			}
		case slog.SourceKey:
			if src, ok := a.Value.Any().(*slog.Source); ok && src != nil && pathLength > 0 {
				src.File = shortenPath(src.File, pathLength)
			}
		}
		return a
	}
}

// shortenPath keeps the last segments of a file path
func shortenPath(path string, segments int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if segments <= 0 || len(parts) <= segments {
		return path
	}
	return strings.Join(parts[len(parts)-segments:], "/")
}
