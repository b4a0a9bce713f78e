// Package classifier maps queued packets to netfilter verdicts using a
// blocklist, and reports blocked addresses at a bounded rate.
package classifier

import (
	"time"

	"github.com/jmakovicka/nfblock/internal/blocklist"
)

// MinInterval is the minimum time between two reports for the same range.
const MinInterval = 60 * time.Second

type Config struct {
	// AcceptMark, when non-zero, re-queues unmatched packets with this mark
	// instead of accepting them.
	AcceptMark uint32
	// RejectMark, when non-zero, re-queues outgoing and forwarded matches
	// with this mark instead of dropping them.
	RejectMark uint32
}

// Classifier is not safe for concurrent use; the blocklist it reads is
// mutated on every hit.
type Classifier struct {
	cfg      Config
	list     *blocklist.Blocklist
	notifier Notifier

	srcBuf []blocklist.SubRange
	dstBuf []blocklist.SubRange
}

func New(list *blocklist.Blocklist, cfg Config, notifier Notifier) *Classifier {
	if notifier == nil {
		notifier = Nop
	}
	return &Classifier{
		cfg:      cfg,
		list:     list,
		notifier: notifier,
		srcBuf:   make([]blocklist.SubRange, 0, blocklist.MaxRanges),
		dstBuf:   make([]blocklist.SubRange, 0, blocklist.MaxRanges),
	}
}

// SetBlocklist replaces the list used for lookups.
func (c *Classifier) SetBlocklist(list *blocklist.Blocklist) {
	c.list = list
}

func (c *Classifier) Blocklist() *blocklist.Blocklist {
	return c.list
}

func (c *Classifier) Config() Config {
	return c.cfg
}

func (c *Classifier) find(ip uint32, buf []blocklist.SubRange) (*blocklist.Range, []blocklist.SubRange) {
	if c.list == nil {
		return nil, nil
	}
	return c.list.Find(ip, buf)
}

func (c *Classifier) pass() Decision {
	if c.cfg.AcceptMark != 0 {
		return Decision{Handled: true, Verdict: VerdictRepeat, Mark: c.cfg.AcceptMark}
	}
	return Decision{Handled: true, Verdict: VerdictAccept}
}

func (c *Classifier) block() Decision {
	if c.cfg.RejectMark != 0 {
		return Decision{Handled: true, Verdict: VerdictRepeat, Mark: c.cfg.RejectMark, Blocked: true}
	}
	return Decision{Handled: true, Verdict: VerdictDrop, Blocked: true}
}

func (c *Classifier) action() Action {
	if c.cfg.RejectMark != 0 {
		return ActionMarked
	}
	return ActionDrop
}

// Classify decides the verdict for pkt and updates hit counters.
func (c *Classifier) Classify(pkt Packet, now time.Time) Decision {
	switch pkt.Hook {
	case HookLocalIn:
		r, subs := c.find(pkt.Src, c.srcBuf)
		if r == nil {
			return c.pass()
		}
		// Incoming matches are always dropped so the remote side gets no
		// sign of life.
		r.Hits++
		if due(r.LastHit, now) {
			r.LastHit = now
			c.report(now, pkt.Hook, SideSource, pkt.Src, r, subs, ActionDrop)
		}
		return Decision{Handled: true, Verdict: VerdictDrop, Blocked: true}

	case HookLocalOut:
		r, subs := c.find(pkt.Dst, c.dstBuf)
		if r == nil {
			return c.pass()
		}
		r.Hits++
		if due(r.LastHit, now) {
			r.LastHit = now
			c.report(now, pkt.Hook, SideDestination, pkt.Dst, r, subs, c.action())
		}
		return c.block()

	case HookForward:
		src, srcSubs := c.find(pkt.Src, c.srcBuf)
		dst, dstSubs := c.find(pkt.Dst, c.dstBuf)
		if src == nil && dst == nil {
			return c.pass()
		}

		var last time.Time
		if src != nil {
			src.Hits++
			last = src.LastHit
		}
		if dst != nil {
			dst.Hits++
			if dst.LastHit.After(last) {
				last = dst.LastHit
			}
		}
		if due(last, now) {
			if src != nil {
				src.LastHit = now
				c.report(now, pkt.Hook, SideSource, pkt.Src, src, srcSubs, c.action())
			}
			if dst != nil {
				dst.LastHit = now
				c.report(now, pkt.Hook, SideDestination, pkt.Dst, dst, dstSubs, c.action())
			}
		}
		return c.block()
	}

	return Decision{}
}

func due(last, now time.Time) bool {
	return last.Before(now.Add(-MinInterval))
}

func (c *Classifier) report(now time.Time, hook Hook, side Side, addr uint32, r *blocklist.Range, subs []blocklist.SubRange, action Action) {
	labels := make([]string, 0, len(subs))
	for _, s := range subs {
		labels = append(labels, s.Label)
	}
	c.notifier.Notify(Event{
		Time:    now,
		Hook:    hook,
		Side:    side,
		Address: addr,
		Labels:  labels,
		Hits:    r.Hits,
		Action:  action,
	})
}
