package channel

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// StateStore persists the last known state of each channel.
type StateStore interface {
	Save(ctx context.Context, id int, state State) error
	Load(ctx context.Context) (map[int]State, error)
}

// SQLiteStore implements StateStore on the channel_states table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a state store on db.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Save upserts the state of channel id.
func (s *SQLiteStore) Save(ctx context.Context, id int, state State) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channel_states (channel_id, asserted, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(channel_id) DO UPDATE SET
		     asserted = excluded.asserted,
		     updated_at = excluded.updated_at`,
		id, state.Int(), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving channel %d state: %w", id, err)
	}
	return nil
}

// Load returns every stored channel state keyed by channel id.
func (s *SQLiteStore) Load(ctx context.Context) (map[int]State, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT channel_id, asserted FROM channel_states")
	if err != nil {
		return nil, fmt.Errorf("querying channel states: %w", err)
	}
	defer rows.Close()

	states := make(map[int]State)
	for rows.Next() {
		var id, asserted int
		if err := rows.Scan(&id, &asserted); err != nil {
			return nil, fmt.Errorf("scanning channel state: %w", err)
		}
		states[id] = State(asserted != 0)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating channel states: %w", err)
	}
	return states, nil
}
