package logx

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultLevel      = "info"
	defaultFormat     = "json"
	defaultOutput     = "stdout"
	defaultFilePath   = "./logs/gmshgen.log"
	defaultMaxSizeMB  = 100
	defaultMaxBackups = 7
	defaultMaxAgeDays = 7

	envLogLevel          = "LOG_LEVEL"
	envLogFormat         = "LOG_FORMAT"
	envLogOutput         = "LOG_OUTPUT"
	envLogFilePath       = "LOG_FILE_PATH"
	envLogFileMaxSizeMB  = "LOG_FILE_MAX_SIZE_MB"
	envLogFileMaxBackups = "LOG_FILE_MAX_BACKUPS"
	envLogFileMaxAgeDays = "LOG_FILE_MAX_AGE_DAYS"
	envLogFileCompress   = "LOG_FILE_COMPRESS"
	envLogAddSource      = "LOG_ADD_SOURCE"
)

type Config struct {
	Level       slog.Level
	Format      string
	Output      string
	FilePath    string
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
	Compress    bool
	AddSource   bool
	ServiceName string
}

func LoadConfig(serviceName string, getenv func(string) string) Config {
	env := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}
	envInt := func(key string, fallback int) int {
		parsed, err := strconv.Atoi(env(key, ""))
		if err != nil || parsed <= 0 {
			return fallback
		}
		return parsed
	}
	envBool := func(key string, fallback bool) bool {
		parsed, err := strconv.ParseBool(env(key, ""))
		if err != nil {
			return fallback
		}
		return parsed
	}

	return Config{
		Level:       ParseLevel(env(envLogLevel, defaultLevel)),
		Format:      normalizeFormat(env(envLogFormat, defaultFormat)),
		Output:      normalizeOutput(env(envLogOutput, defaultOutput)),
		FilePath:    env(envLogFilePath, defaultFilePath),
		MaxSizeMB:   envInt(envLogFileMaxSizeMB, defaultMaxSizeMB),
		MaxBackups:  envInt(envLogFileMaxBackups, defaultMaxBackups),
		MaxAgeDays:  envInt(envLogFileMaxAgeDays, defaultMaxAgeDays),
		Compress:    envBool(envLogFileCompress, true),
		AddSource:   envBool(envLogAddSource, false),
		ServiceName: serviceName,
	}
}

// Init installs the process-wide slog default for serviceName and returns a
// closer for any rotating file writer.
func Init(serviceName string) (*slog.Logger, func() error, error) {
	return New(LoadConfig(serviceName, os.Getenv))
}

func New(cfg Config) (*slog.Logger, func() error, error) {
	writer, closer, err := buildWriter(cfg)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(buildHandler(cfg, writer)).With("service", cfg.ServiceName)
	slog.SetDefault(logger)
	return logger, closer, nil
}

func buildHandler(cfg Config, writer io.Writer) slog.Handler {
	options := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}
	if cfg.Format == "text" {
		return slog.NewTextHandler(writer, options)
	}
	return slog.NewJSONHandler(writer, options)
}

func buildWriter(cfg Config) (io.Writer, func() error, error) {
	useStdout := strings.Contains(cfg.Output, "stdout")
	useFile := strings.Contains(cfg.Output, "file")
	if !useStdout && !useFile {
		useStdout = true
	}

	writers := make([]io.Writer, 0, 2)
	var closers []io.Closer

	if useStdout {
		writers = append(writers, os.Stdout)
	}
	if useFile {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, nil, err
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		writers = append(writers, rotator)
		closers = append(closers, rotator)
	}

	closeFn := func() error {
		var lastErr error
		for _, c := range closers {
			if err := c.Close(); err != nil {
				lastErr = err
			}
		}
		return lastErr
	}

	if len(writers) == 1 {
		return writers[0], closeFn, nil
	}
	return io.MultiWriter(writers...), closeFn, nil
}

func normalizeFormat(v string) string {
	if strings.EqualFold(strings.TrimSpace(v), "text") {
		return "text"
	}
	return "json"
}

func normalizeOutput(v string) string {
	out := strings.ToLower(strings.ReplaceAll(v, " ", ""))
	switch out {
	case "stdout", "file", "stdout,file", "file,stdout":
		return out
	default:
		return defaultOutput
	}
}

func ParseLevel(v string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
