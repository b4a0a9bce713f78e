package cmd

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

func setupLogger(level string, useSyslog bool) zerolog.Logger {
	var lvl zerolog.Level
	switch level {
	case "trace":
		lvl = zerolog.TraceLevel
	case "debug":
		lvl = zerolog.DebugLevel
	case "info":
		lvl = zerolog.InfoLevel
	case "warn":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	default:
		lvl = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stdout
	if os.Getenv("PRETTY") == "1" {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	var syslogErr error
	if useSyslog {
		sw, err := syslogWriter()
		if err == nil {
			out = zerolog.MultiLevelWriter(out, sw)
		}
		syslogErr = err
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	if syslogErr != nil {
		logger.Warn().Err(syslogErr).Msg("syslog unavailable, logging to stdout only")
	}
	return logger
}
