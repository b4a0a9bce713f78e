package classifier

import (
	"time"

	"github.com/jmakovicka/nfblock/internal/blocklist"
)

// Hook is the netfilter interception point, numbered as NF_INET_*.
type Hook uint8

const (
	HookPreRouting  Hook = 0
	HookLocalIn     Hook = 1
	HookForward     Hook = 2
	HookLocalOut    Hook = 3
	HookPostRouting Hook = 4
)

func (h Hook) String() string {
	switch h {
	case HookLocalIn:
		return "IN"
	case HookForward:
		return "FWD"
	case HookLocalOut:
		return "OUT"
	case HookPreRouting:
		return "PREROUTING"
	case HookPostRouting:
		return "POSTROUTING"
	default:
		return "unknown"
	}
}

type Verdict int

const (
	VerdictAccept Verdict = iota
	VerdictDrop
	VerdictRepeat
)

func (v Verdict) String() string {
	switch v {
	case VerdictAccept:
		return "ACCEPT"
	case VerdictDrop:
		return "DROP"
	case VerdictRepeat:
		return "REPEAT"
	default:
		return "unknown"
	}
}

// Action tells report consumers what happened to a blocked packet.
type Action int

const (
	ActionDrop Action = iota
	// ActionMarked means the packet was re-queued with the reject mark and
	// the firewall rules decide its fate.
	ActionMarked
)

func (a Action) String() string {
	if a == ActionMarked {
		return "MARKED"
	}
	return "DROP"
}

// Side is the packet address an event refers to.
type Side int

const (
	SideSource Side = iota
	SideDestination
)

func (s Side) String() string {
	if s == SideDestination {
		return "DST"
	}
	return "SRC"
}

type Packet struct {
	Hook Hook
	Src  uint32
	Dst  uint32
}

// Decision is the verdict for one packet. Handled is false for hooks the
// classifier does not act on; the caller should accept those.
type Decision struct {
	Handled bool
	Verdict Verdict
	Mark    uint32
	Blocked bool
}

// Event reports a blocked address, at most once per MinInterval per range.
type Event struct {
	Time    time.Time
	Hook    Hook
	Side    Side
	Address uint32
	Labels  []string
	Hits    int
	Action  Action
}

func (e Event) AddressString() string {
	return blocklist.FormatIP(e.Address)
}

// Label returns the first attributed label, or "(unknown)".
func (e Event) Label() string {
	if len(e.Labels) == 0 || e.Labels[0] == "" {
		return "(unknown)"
	}
	return e.Labels[0]
}

// Notifier receives report events. Implementations must not block.
type Notifier interface {
	Notify(Event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}

// Nop discards every event.
var Nop Notifier = nopNotifier{}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }
