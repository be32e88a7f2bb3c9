package logger

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// fileMaxSizeMB is the size at which the log file is rotated.
	fileMaxSizeMB = 50
	// fileMaxBackups is the number of rotated log files kept on disk.
	fileMaxBackups = 5
	// fileMaxAgeDays is how long rotated log files are kept.
	fileMaxAgeDays = 7
)

var (
	// global is the shared logger instance used throughout the application.
	//nolint:gochecknoglobals // Logger is used all over the project, so it's okay.
	global *zap.SugaredLogger
	// defaultLevel is the minimum log level for messages to be processed.
	//nolint:gochecknoglobals // If the logging level is not set, the application will have no logs.
	defaultLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
)

func init() { //nolint:gochecknoinits // If the logging level is not set, the application will have no logs.
	SetLogger(New(defaultLevel))
}

// New creates a new instance of *zap.SugaredLogger with output in simple console format.
// If the logging level is not provided, the shared atomic level is used.
func New(level zapcore.LevelEnabler, options ...zap.Option) *zap.SugaredLogger {
	if level == nil {
		level = defaultLevel
	}

	core := zapcore.NewCore(
		consoleEncoder(),
		zapcore.AddSync(os.Stdout),
		level,
	)

	return zap.New(core, options...).Sugar()
}

// NewWithFile creates a logger that writes to the console and, in JSON form,
// to a size-rotated file at path. Rotation is handled by lumberjack.
func NewWithFile(level zapcore.LevelEnabler, path string, options ...zap.Option) *zap.SugaredLogger {
	return newTee(level, zapcore.AddSync(os.Stdout), path, options...)
}

// newTee writes console output to console and JSON entries to the rotated file at path.
func newTee(
	level zapcore.LevelEnabler,
	console zapcore.WriteSyncer,
	path string,
	options ...zap.Option,
) *zap.SugaredLogger {
	if level == nil {
		level = defaultLevel
	}

	//nolint:exhaustruct // Remaining lumberjack fields keep their defaults.
	rotator := &lumberjack.Logger{
		Filename:   filepath.Clean(path),
		MaxSize:    fileMaxSizeMB,
		MaxBackups: fileMaxBackups,
		MaxAge:     fileMaxAgeDays,
		Compress:   true,
	}

	fileEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())

	core := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder(), console, level),
		zapcore.NewCore(fileEncoder, zapcore.AddSync(rotator), level),
	)

	return zap.New(core, options...).Sugar()
}

// Setup configures the global logger from textual settings.
// An empty file keeps console-only output. Unknown levels fall back to info.
func Setup(level, file string) {
	parsed, _ := ParseLogLevel(level)
	defaultLevel.SetLevel(parsed)

	if strings.TrimSpace(file) == "" {
		SetLogger(New(defaultLevel))
		return
	}

	SetLogger(NewWithFile(defaultLevel, file))
}

// consoleEncoder returns the human-friendly encoder used for terminal output.
func consoleEncoder() zapcore.Encoder {
	//nolint:exhaustruct // I'm okay with default encoder configuration values.
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "time",
		MessageKey:       "message",
		LevelKey:         "level",
		NameKey:          "logger",
		CallerKey:        "caller",
		StacktraceKey:    "stacktrace",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalColorLevelEncoder,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: ", ",
	})
}

// ParseLogLevel converts string input to zap log level.
func ParseLogLevel(s string) (zapcore.Level, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "debug":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	case "fatal":
		return zapcore.FatalLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

// Level returns the current logging level of the global logger.
func Level() zapcore.Level {
	return defaultLevel.Level()
}

// Logger returns the global logger.
func Logger() *zap.SugaredLogger {
	return global
}

// SetLogger sets the global logger.
// This function is not thread-safe.
func SetLogger(l *zap.SugaredLogger) {
	global = l
}

// SetLevel sets the log level for the global logger.
func SetLevel(level zapcore.Level) {
	//nolint: errcheck // No need to check the error here.
	defer global.Sync()

	defaultLevel.SetLevel(level)
}

// Sync flushes buffered entries of the global logger.
func Sync() {
	_ = global.Sync()
}
