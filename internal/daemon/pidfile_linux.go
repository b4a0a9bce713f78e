//go:build linux

package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

var ErrAlreadyRunning = errors.New("another instance is already running")

// Pidfile is an exclusively locked file holding the daemon's pid. The lock
// is held until Remove.
type Pidfile struct {
	path string
	f    *os.File
}

func CreatePidfile(path string) (*Pidfile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening pidfile: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", path, ErrAlreadyRunning)
		}
		return nil, fmt.Errorf("locking pidfile: %w", err)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncating pidfile: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing pidfile: %w", err)
	}

	return &Pidfile{path: path, f: f}, nil
}

func (p *Pidfile) Path() string { return p.path }

// Remove deletes the file and releases the lock.
func (p *Pidfile) Remove() error {
	rmErr := os.Remove(p.path)
	closeErr := p.f.Close()
	return errors.Join(rmErr, closeErr)
}

func ReadPid(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading pidfile: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pidfile %s does not hold a valid pid", path)
	}
	return pid, nil
}

// SignalDaemon sends sig to the process named in the pidfile.
func SignalDaemon(path string, sig syscall.Signal) (int, error) {
	pid, err := ReadPid(path)
	if err != nil {
		return 0, err
	}
	if err := unix.Kill(pid, sig); err != nil {
		return pid, fmt.Errorf("signalling pid %d: %w", pid, err)
	}
	return pid, nil
}
