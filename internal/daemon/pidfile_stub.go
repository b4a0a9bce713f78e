//go:build !linux

package daemon

import (
	"errors"
	"syscall"
)

var ErrAlreadyRunning = errors.New("another instance is already running")

type Pidfile struct{}

func CreatePidfile(_ string) (*Pidfile, error) {
	return nil, errors.New("pidfile is only supported on linux")
}

func (p *Pidfile) Path() string { return "" }

func (p *Pidfile) Remove() error { return nil }

func ReadPid(_ string) (int, error) {
	return 0, errors.New("pidfile is only supported on linux")
}

func SignalDaemon(_ string, _ syscall.Signal) (int, error) {
	return 0, errors.New("pidfile is only supported on linux")
}
