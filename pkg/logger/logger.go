package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/prepkit/prepkit/pkg/errors"
)

var logger zerolog.Logger

func init() {
	logger = New(zerolog.InfoLevel)
}

// New returns a console logger that writes debug through warn to stdout
// and error and above to stderr.
func New(level zerolog.Level) zerolog.Logger {
	return zerolog.New(ConsoleWriter()).Level(level).With().Timestamp().Logger()
}

// ConsoleWriter builds the split console writer used by every logger in
// the module.
func ConsoleWriter() io.Writer {
	return zerolog.MultiLevelWriter(
		SpecificLevelWriter{
			Writer: zerolog.ConsoleWriter{
				Out:        os.Stdout,
				TimeFormat: time.RFC3339,
			},
			Levels: []zerolog.Level{
				zerolog.DebugLevel, zerolog.InfoLevel, zerolog.WarnLevel,
			},
		},
		SpecificLevelWriter{
			Writer: zerolog.ConsoleWriter{
				Out: os.Stderr,
			},
			Levels: []zerolog.Level{
				zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel,
			},
		},
	)
}

// NewRunLogger returns a logger that mirrors console output into
// {dir}/run.log so every preparation run leaves a log next to its
// artifacts. The returned closer releases the log file.
func NewRunLogger(level zerolog.Level, dir string) (zerolog.Logger, io.Closer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return zerolog.Nop(), nil, errors.Wrapf(err, "logger", "cannot create log directory %s", dir)
	}
	path := filepath.Join(dir, "run.log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, errors.Wrapf(err, "logger", "cannot open log file %s", path)
	}
	writer := zerolog.MultiLevelWriter(ConsoleWriter(), file)
	log := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	return log, file, nil
}

// ForWorker derives a chunk worker's logger from the run logger.
func ForWorker(parent zerolog.Logger, worker int) zerolog.Logger {
	return parent.With().Int("worker", worker).Logger()
}

// Default returns the package-level console logger.
func Default() zerolog.Logger {
	return logger
}

func Info(msg string) {
	logger.Info().Msg(msg)
}

func Infof(format string, args ...interface{}) {
	logger.Info().Msgf(format, args...)
}

func Warn(msg string) {
	logger.Warn().Msg(msg)
}

func Warnf(format string, args ...interface{}) {
	logger.Warn().Msgf(format, args...)
}

func Error(msg string) {
	logger.Error().Msg(msg)
}

func Errorf(format string, args ...interface{}) {
	logger.Error().Msgf(format, args...)
}

func Debug(msg string) {
	logger.Debug().Msg(msg)
}

func Debugf(format string, args ...interface{}) {
	logger.Debug().Msgf(format, args...)
}

// multilevel writer from https://stackoverflow.com/questions/76858037/how-to-use-zerolog-to-filter-info-logs-to-stdout-and-error-logs-to-stderr
type SpecificLevelWriter struct {
	io.Writer
	Levels []zerolog.Level
}

func (w SpecificLevelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	for _, l := range w.Levels {
		if l == level {
			return w.Write(p)
		}
	}
	return len(p), nil
}
