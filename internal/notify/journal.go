package notify

import (
	"context"

	"github.com/google/uuid"

	"github.com/jmakovicka/nfblock/internal/classifier"
	"github.com/jmakovicka/nfblock/internal/store"
)

type eventSaver interface {
	SaveEvent(e *store.Event) error
	Close() error
}

// Journal records reports in the sqlite event store.
type Journal struct {
	store eventSaver
}

func NewJournal(s *store.Store) *Journal {
	return &Journal{store: s}
}

func (j *Journal) Name() string { return "journal" }

func (j *Journal) Send(_ context.Context, e classifier.Event) error {
	return j.store.SaveEvent(&store.Event{
		ID:         uuid.Must(uuid.NewV7()).String(),
		OccurredAt: e.Time,
		Hook:       e.Hook.String(),
		Side:       e.Side.String(),
		Address:    e.AddressString(),
		Labels:     e.Labels,
		Hits:       e.Hits,
		Action:     e.Action.String(),
	})
}

func (j *Journal) Close() error {
	return j.store.Close()
}
