//go:build !linux

package daemon

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/jmakovicka/nfblock/internal/classifier"
)

type Queue struct{}

func OpenQueue(_ context.Context, _ zerolog.Logger, _ uint16) (*Queue, error) {
	return nil, errors.New("nfqueue is only supported on linux")
}

func (q *Queue) Packets() <-chan QueuedPacket { return nil }

func (q *Queue) SetVerdict(_ QueuedPacket, _ classifier.Decision) error {
	return errors.New("nfqueue is only supported on linux")
}

func (q *Queue) Close() error { return nil }
