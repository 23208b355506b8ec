package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

const LoggerKey = "logger"

// main.log is append-only for its day, rotation never triggers.
const maxLogSizeMB = 1 << 20

type Options struct {
	Level   string // debug, info, error
	Type    string // text or json for the console
	Console io.Writer
	NoColor bool
}

// TodaysDir returns <root>/<year>/<month>/<day> for t.
func TodaysDir(root string, t time.Time) string {
	return filepath.Join(root, strconv.Itoa(t.Year()), strconv.Itoa(int(t.Month())), strconv.Itoa(t.Day()))
}

// Setup builds the run logger: console output plus an append-only main.log in logsDir.
// The returned closer flushes the log file.
func Setup(logsDir string, opts Options) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, nil, err
	}
	file := &lumberjack.Logger{
		Filename: filepath.Join(logsDir, "main.log"),
		MaxSize:  maxLogSizeMB,
	}

	level := resolveLevel(opts.Level)
	replaceAttrs := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.SourceKey {
			source := a.Value.Any().(*slog.Source)
			source.File = filepath.Base(source.File)
		}
		return a
	}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	var consoleHandler slog.Handler
	if strings.ToLower(opts.Type) == "json" {
		consoleHandler = slog.NewJSONHandler(console, &slog.HandlerOptions{
			AddSource:   true,
			Level:       level,
			ReplaceAttr: replaceAttrs})
	} else {
		consoleHandler = tint.NewHandler(console, &tint.Options{
			AddSource:   true,
			Level:       level,
			ReplaceAttr: replaceAttrs,
			NoColor:     opts.NoColor})
	}
	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{
		Level:       maxLevel(level, slog.LevelInfo),
		ReplaceAttr: replaceAttrs,
	})

	logger := slog.New(slogmulti.Fanout(consoleHandler, fileHandler))
	logger.Debug("debug messages are enabled.")

	return logger, file, nil
}

// Named narrows log to a dotted logger name.
func Named(log *slog.Logger, name string) *slog.Logger {
	return log.With(slog.String(LoggerKey, name))
}

func resolveLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

func maxLevel(a, b slog.Level) slog.Level {
	if a > b {
		return a
	}
	return b
}
