package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/chootka/sLLM/internal/config"
)

// Log file rotation
const (
	logMaxSize    = 10 // megabytes
	logMaxBackups = 5
	logMaxAge     = 30 // days
)

// setupLogger configures the global zerolog logger. The returned func
// flushes and closes the rotated log file, if any.
func setupLogger(cfg config.LogConfig) func() error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(cfg.ParseLevel())

	console := zerolog.ConsoleWriter{Out: os.Stderr}
	if cfg.File == "" {
		log.Logger = log.Output(console)
		return func() error { return nil }
	}

	fileLog := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackups,
		MaxAge:     logMaxAge,
	}
	log.Logger = log.Output(zerolog.MultiLevelWriter(console, fileLog))
	return fileLog.Close
}
