// Package pgvlog provides a package-level logging sink used across the
// program, wrapping zerolog the way the rest of this codebase's ambient
// stack wraps its third-party libraries.
package pgvlog

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the shared logger instance. Tests may swap its level or output
// via SetLevel/SetOutputFile.
var Logger zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().Timestamp().Logger().
		Level(zerolog.InfoLevel)
}

// SetLevel adjusts the minimum level emitted; level is one of
// "debug","info","warn","error".
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	Logger = Logger.Level(lvl)
}

// SetOutputFile redirects the logger to path (spec §6's -l FILE), opening
// it for append so repeated runs don't clobber prior history.
func SetOutputFile(path string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	Logger = Logger.Output(zerolog.ConsoleWriter{Out: f, TimeFormat: "15:04:05", NoColor: true})
	return nil
}

func Debug(args ...interface{})                 { Logger.Debug().Msg(sprint(args...)) }
func Debugf(format string, args ...interface{}) { Logger.Debug().Msgf(format, args...) }
func Debugln(args ...interface{})               { Logger.Debug().Msg(sprint(args...)) }

func Info(args ...interface{})                 { Logger.Info().Msg(sprint(args...)) }
func Infof(format string, args ...interface{}) { Logger.Info().Msgf(format, args...) }
func Infoln(args ...interface{})               { Logger.Info().Msg(sprint(args...)) }

func Warn(args ...interface{})                 { Logger.Warn().Msg(sprint(args...)) }
func Warnf(format string, args ...interface{}) { Logger.Warn().Msgf(format, args...) }
func Warnln(args ...interface{})               { Logger.Warn().Msg(sprint(args...)) }

func Error(args ...interface{})                 { Logger.Error().Msg(sprint(args...)) }
func Errorf(format string, args ...interface{}) { Logger.Error().Msgf(format, args...) }
func Errorln(args ...interface{})               { Logger.Error().Msg(sprint(args...)) }

func sprint(args ...interface{}) string {
	if len(args) == 1 {
		if s, ok := args[0].(string); ok {
			return s
		}
	}
	return fmt.Sprint(args...)
}
