package logger

import (
	"io"
	"os"
	"strings"

	"github.com/funnyzak/retweak/internal/config"
	"github.com/rs/zerolog"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the structured logger shared by the engine, the transport and the stores.
// Fields are alternating key/value pairs; pairs with a non-string key are dropped.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	// With returns a logger that adds fields to every event.
	With(fields ...interface{}) Logger
}

type zerologAdapter struct {
	zl zerolog.Logger
}

func emit(event *zerolog.Event, msg string, fields []interface{}) {
	if len(fields) > 0 {
		event = event.Fields(fields)
	}
	event.Msg(msg)
}

func (z zerologAdapter) Debug(msg string, fields ...interface{}) { emit(z.zl.Debug(), msg, fields) }
func (z zerologAdapter) Info(msg string, fields ...interface{})  { emit(z.zl.Info(), msg, fields) }
func (z zerologAdapter) Warn(msg string, fields ...interface{})  { emit(z.zl.Warn(), msg, fields) }
func (z zerologAdapter) Error(msg string, fields ...interface{}) { emit(z.zl.Error(), msg, fields) }

func (z zerologAdapter) With(fields ...interface{}) Logger {
	return zerologAdapter{zl: z.zl.With().Fields(fields).Logger()}
}

// New creates a logger writing to out. Structured output emits JSON lines,
// otherwise a human readable console format is used.
func New(out io.Writer, cfg *config.LogConfig, structured bool) Logger {
	logLevel, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		logLevel = zerolog.WarnLevel
	}

	var writers []io.Writer
	if structured {
		writers = append(writers, out)
	} else {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
			NoColor:    !isTerminal(out),
		})
	}

	// File logging always uses JSON lines
	if cfg.FileLogging.Enable {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FileLogging.Path,
			MaxSize:    cfg.FileLogging.MaxSizeMB,
			MaxBackups: cfg.FileLogging.MaxBackups,
			MaxAge:     cfg.FileLogging.MaxAgeDays,
			Compress:   cfg.FileLogging.Compress,
		})
	}

	return zerologAdapter{
		zl: zerolog.New(io.MultiWriter(writers...)).Level(logLevel).With().Timestamp().Logger(),
	}
}

// Nop returns a logger that discards everything
func Nop() Logger {
	return zerologAdapter{zl: zerolog.Nop()}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
