package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

const defaultTimeFormat = "15:04:05.000"

type Config struct {
	Env              string
	Level            string
	AddSource        bool
	SourcePathLength int
	TimeFormat       string
	Output           io.Writer
}

// Logger is a wrapper around slog.Logger with additional methods
type Logger struct {
	*slog.Logger
}

// New builds a logger for the given environment and installs it as the slog default
func New(config Config) (*Logger, error) {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.TimeFormat == "" {
		config.TimeFormat = defaultTimeFormat
	}

	handler, err := createHandler(config)
	if err != nil {
		return nil, fmt.Errorf("failed to determine handler: %w", err)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return &Logger{
		Logger: logger,
	}, nil
}

// Must panics if logger creation fails
// Useful for process start-up where errors are unrecoverable
func Must(logger *Logger, err error) *Logger {
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	return logger
}

// Discard returns a logger that drops everything, for tests
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

// With returns a child logger carrying a component attribute
func (l *Logger) With(component string) *slog.Logger {
	return l.Logger.With("component", component)
}
