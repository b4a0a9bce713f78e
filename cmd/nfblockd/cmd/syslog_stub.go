//go:build windows || plan9

package cmd

import (
	"errors"

	"github.com/rs/zerolog"
)

func syslogWriter() (zerolog.LevelWriter, error) {
	return nil, errors.New("syslog is not supported on this platform")
}
