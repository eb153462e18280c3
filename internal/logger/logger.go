package logger

import (
	"io"
	"os"
	"time"

	"github.com/Wyydra/nexuscall/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the process logger. Console output goes to out; when a file is
// configured, JSON lines are also written there with size based rotation.
// The returned closer flushes the file and must be closed on shutdown.
func New(cfg config.LogConfig, out io.Writer) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nil, err
	}

	var stdout io.Writer = out
	if cfg.Format == "console" {
		stdout = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	var closer io.Closer = nopCloser{}
	w := stdout
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,  // megabytes
			MaxBackups: cfg.MaxBackups, // number of backups
			MaxAge:     cfg.MaxAgeDays, // days
			Compress:   cfg.Compress,
		}
		w = zerolog.MultiLevelWriter(stdout, file)
		closer = file
	}

	l := zerolog.New(w).Level(level).With().Timestamp().Caller().Logger()
	return l, closer, nil
}

// Setup installs the logger as the global zerolog logger.
func Setup(cfg config.LogConfig) (io.Closer, error) {
	l, closer, err := New(cfg, os.Stdout)
	if err != nil {
		return nil, err
	}
	log.Logger = l
	zerolog.DefaultContextLogger = &l
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
