package notify

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/jmakovicka/nfblock/internal/classifier"
)

const (
	DBusName      = "org.netfilter.nfblock"
	DBusPath      = dbus.ObjectPath("/org/netfilter/nfblock")
	DBusInterface = "org.netfilter.nfblock.Blocked"
)

type emitter interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
	Close() error
}

// DBus emits blocked_in for source addresses and blocked_out for
// destination addresses, with arguments
// (address, label, "HH:MM:SS", hits uint32, dropped bool).
type DBus struct {
	conn emitter
}

// NewDBus connects to the system bus and claims DBusName. It fails if
// another daemon already owns the name.
func NewDBus() (*DBus, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to system bus: %w", err)
	}

	reply, err := conn.RequestName(DBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("requesting name %s: %w", DBusName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("name %s is already owned, nfblockd is already running", DBusName)
	}

	return &DBus{conn: conn}, nil
}

func (d *DBus) Name() string { return "dbus" }

func signalMember(e classifier.Event) string {
	if e.Side == classifier.SideDestination {
		return "blocked_out"
	}
	return "blocked_in"
}

func (d *DBus) Send(_ context.Context, e classifier.Event) error {
	return d.conn.Emit(DBusPath, DBusInterface+"."+signalMember(e),
		e.AddressString(),
		e.Label(),
		e.Time.Local().Format("15:04:05"),
		uint32(e.Hits),
		e.Action == classifier.ActionDrop,
	)
}

func (d *DBus) Close() error {
	return d.conn.Close()
}
