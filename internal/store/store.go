package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// timeFormat is fixed-width so that stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

type Store struct {
	db *sql.DB
}

// Event is one reported block, as kept in the journal.
type Event struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	Hook       string    `json:"hook"`
	Side       string    `json:"side"`
	Address    string    `json:"address"`
	Labels     []string  `json:"labels"`
	Hits       int       `json:"hits"`
	Action     string    `json:"action"`
}

func New(dbPath string) (*Store, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting WAL mode: %w", err)
		}
		if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting busy timeout: %w", err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			occurred_at TEXT NOT NULL,
			hook TEXT NOT NULL,
			side TEXT NOT NULL,
			address TEXT NOT NULL,
			labels TEXT NOT NULL,
			hits INTEGER NOT NULL,
			action TEXT NOT NULL
		) STRICT, WITHOUT ROWID;
		CREATE INDEX IF NOT EXISTS events_occurred_at ON events (occurred_at, id);
	`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveEvent(e *Event) error {
	if e.ID == "" {
		return errors.New("event id is required")
	}
	labels, err := json.Marshal(e.Labels)
	if err != nil {
		return fmt.Errorf("marshaling labels: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO events (id, occurred_at, hook, side, address, labels, hits, action)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.OccurredAt.UTC().Format(timeFormat), e.Hook, e.Side, e.Address, string(labels), e.Hits, e.Action)
	return err
}

func (s *Store) GetEvent(id string) (*Event, error) {
	row := s.db.QueryRow(`
		SELECT id, occurred_at, hook, side, address, labels, hits, action
		FROM events WHERE id = ?
	`, id)

	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// ListEvents pages through the journal oldest first. The returned token is
// empty on the last page.
func (s *Store) ListEvents(pageSize int, pageToken string) ([]Event, string, int, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	if pageSize > 1000 {
		pageSize = 1000
	}

	var totalCount int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&totalCount); err != nil {
		return nil, "", 0, fmt.Errorf("counting events: %w", err)
	}

	query := `
		SELECT id, occurred_at, hook, side, address, labels, hits, action
		FROM events
		WHERE (occurred_at, id) > (?, ?)
		ORDER BY occurred_at, id
		LIMIT ?
	`

	var afterTime, afterID string
	if pageToken != "" {
		parts := strings.SplitN(pageToken, "|", 2)
		if len(parts) == 2 {
			afterTime = parts[0]
			afterID = parts[1]
		}
	}
	if afterTime == "" {
		afterTime = "0001-01-01T00:00:00Z"
	}

	rows, err := s.db.Query(query, afterTime, afterID, pageSize+1)
	if err != nil {
		return nil, "", 0, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, "", 0, err
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", 0, fmt.Errorf("iterating events: %w", err)
	}

	var nextPageToken string
	if len(events) > pageSize {
		last := events[pageSize-1]
		nextPageToken = last.OccurredAt.UTC().Format(timeFormat) + "|" + last.ID
		events = events[:pageSize]
	}

	return events, nextPageToken, totalCount, nil
}

// PruneBefore deletes events older than t and returns how many were removed.
func (s *Store) PruneBefore(t time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM events WHERE occurred_at < ?", t.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("pruning events: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*Event, error) {
	var e Event
	var labels, occurredAt string
	err := row.Scan(&e.ID, &occurredAt, &e.Hook, &e.Side, &e.Address, &labels, &e.Hits, &e.Action)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning event: %w", err)
	}

	if err := json.Unmarshal([]byte(labels), &e.Labels); err != nil {
		return nil, fmt.Errorf("unmarshaling labels: %w", err)
	}
	if e.OccurredAt, err = time.Parse(timeFormat, occurredAt); err != nil {
		return nil, fmt.Errorf("parsing occurred_at: %w", err)
	}
	return &e, nil
}
