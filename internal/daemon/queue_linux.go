//go:build linux

package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/florianl/go-nfqueue"
	"github.com/mdlayher/netlink"
	"github.com/rs/zerolog"

	"github.com/jmakovicka/nfblock/internal/classifier"
)

// Queue reads packets from an NFQUEUE.
type Queue struct {
	logger  zerolog.Logger
	num     uint16
	nf      *nfqueue.Nfqueue
	packets chan QueuedPacket
	cancel  context.CancelFunc

	closeOnce sync.Once
}

// OpenQueue binds to queue num and starts receiving packets. Packets that
// cannot be decoded as IPv4 are accepted without being delivered.
func OpenQueue(ctx context.Context, logger zerolog.Logger, num uint16) (*Queue, error) {
	cfg := nfqueue.Config{
		NfQueue:      num,
		MaxPacketLen: copyRange,
		MaxQueueLen:  0xffff,
		Copymode:     nfqueue.NfQnlCopyPacket,
		WriteTimeout: 15 * time.Millisecond,
	}

	nf, err := nfqueue.Open(&cfg)
	if err != nil {
		return nil, fmt.Errorf("opening nfqueue %d: %w", num, err)
	}

	if err := nf.Con.SetOption(netlink.NoENOBUFS, true); err != nil {
		nf.Close()
		return nil, fmt.Errorf("setting NoENOBUFS on nfqueue %d: %w", num, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	q := &Queue{
		logger:  logger.With().Str("component", "nfqueue").Uint16("queue", num).Logger(),
		num:     num,
		nf:      nf,
		packets: make(chan QueuedPacket, 1024),
		cancel:  cancel,
	}

	if err := nf.RegisterWithErrorFunc(ctx, q.onPacket(ctx), q.onError); err != nil {
		cancel()
		nf.Close()
		return nil, fmt.Errorf("registering nfqueue %d: %w", num, err)
	}

	q.logger.Info().Msg("bound to queue")
	return q, nil
}

func (q *Queue) onPacket(ctx context.Context) nfqueue.HookFunc {
	return func(a nfqueue.Attribute) int {
		if a.PacketID == nil {
			q.logger.Error().Msg("can't get msg packet header")
			return 0
		}
		id := *a.PacketID

		var hook uint8
		if a.Hook != nil {
			hook = *a.Hook
		}
		var payload []byte
		if a.Payload != nil {
			payload = *a.Payload
		}

		p, err := decodePacket(id, hook, payload)
		if err != nil {
			q.logger.Debug().Err(err).Uint32("packet_id", id).Msg("accepting undecodable packet")
			if err := q.nf.SetVerdict(id, nfqueue.NfAccept); err != nil {
				q.logger.Error().Err(err).Msg("failed to set verdict")
			}
			return 0
		}

		select {
		case q.packets <- p:
		case <-ctx.Done():
			return 1
		}
		return 0
	}
}

func (q *Queue) onError(err error) int {
	if opError, ok := err.(*netlink.OpError); ok {
		if opError.Timeout() || opError.Temporary() {
			return 0
		}
	}
	q.logger.Error().Err(err).Msg("nfqueue receive error")
	return 1
}

func (q *Queue) Packets() <-chan QueuedPacket {
	return q.packets
}

func (q *Queue) SetVerdict(p QueuedPacket, d classifier.Decision) error {
	switch d.Verdict {
	case classifier.VerdictDrop:
		return q.nf.SetVerdict(p.ID, nfqueue.NfDrop)
	case classifier.VerdictRepeat:
		return q.nf.SetVerdictWithMark(p.ID, nfqueue.NfRepeat, int(d.Mark))
	default:
		return q.nf.SetVerdict(p.ID, nfqueue.NfAccept)
	}
}

// Close unbinds from the queue.
func (q *Queue) Close() error {
	var err error
	q.closeOnce.Do(func() {
		q.logger.Info().Msg("unbinding from queue")
		q.cancel()
		err = q.nf.Close()
	})
	return err
}
