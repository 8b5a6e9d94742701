// Package logging adapts zerolog to the chatbridge.Logger interface.
package logging

import (
	"io"

	"github.com/rs/zerolog"
)

// Logger implements chatbridge.Logger on top of a zerolog.Logger.
type Logger struct {
	zl zerolog.Logger
}

// New returns a console Logger writing to w at the given level
// ("debug", "info", "warn", "error").
func New(w io.Writer, level string) (*Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zl := zerolog.New(zerolog.ConsoleWriter{Out: w}).Level(lvl).With().Timestamp().Logger()
	return &Logger{zl: zl}, nil
}

// Wrap adapts an existing zerolog.Logger.
func Wrap(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

// Zerolog returns the underlying logger.
func (l *Logger) Zerolog() zerolog.Logger { return l.zl }

func (l *Logger) Debugf(format string, args ...interface{}) { l.zl.Debug().Msgf(format, args...) }

func (l *Logger) Infof(format string, args ...interface{}) { l.zl.Info().Msgf(format, args...) }

func (l *Logger) Warnf(format string, args ...interface{}) { l.zl.Warn().Msgf(format, args...) }

func (l *Logger) Errorf(format string, args ...interface{}) { l.zl.Error().Msgf(format, args...) }

func (l *Logger) Info(message string) { l.zl.Info().Msg(message) }
