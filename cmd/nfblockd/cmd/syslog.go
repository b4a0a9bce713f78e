//go:build !windows && !plan9

package cmd

import (
	"log/syslog"

	"github.com/rs/zerolog"
)

func syslogWriter() (zerolog.LevelWriter, error) {
	w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, "nfblockd")
	if err != nil {
		return nil, err
	}
	return zerolog.SyslogLevelWriter(w), nil
}
