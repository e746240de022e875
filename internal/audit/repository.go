// Package audit keeps a local journal of every message the controller
// received on its command topic, alongside the outcome of dispatch and of
// the audit republish.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// List page size limits.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// timeFormat is fixed-width so created_at sorts lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Entry represents a single journal row.
type Entry struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	AuditTopic string    `json:"audit_topic"`
	EventUUID  string    `json:"event_uuid,omitempty"`
	EventType  string    `json:"event_type,omitempty"`
	Source     string    `json:"source,omitempty"`
	SentAt     int64     `json:"sent_at,omitempty"`
	Handled    bool      `json:"handled"`
	Payload    string    `json:"payload"`
	AuditError string    `json:"audit_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filter controls which entries to return.
type Filter struct {
	EventType string // optional: exact match on the event type
	Handled   *bool  // optional: only handled or only ignored messages
	Limit     int    // default 50, max 200
	Offset    int    // pagination offset
}

// ListResult contains a page of entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines the journal operations.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores entries in the audit_logs table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a journal repository on db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an entry. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = "aud-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, topic, audit_topic, event_uuid, event_type, source,
		                         sent_at, handled, payload, audit_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Topic, e.AuditTopic, e.EventUUID, e.EventType, e.Source,
		e.SentAt, boolToInt(e.Handled), e.Payload, nullableString(e.AuditError),
		e.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	return nil
}

// List returns entries matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.EventType != "" {
		conditions = append(conditions, "event_type = ?")
		args = append(args, filter.EventType)
	}
	if filter.Handled != nil {
		conditions = append(conditions, "handled = ?")
		args = append(args, boolToInt(*filter.Handled))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM audit_logs " + where //nolint:gosec // WHERE built from parameterised conditions
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	query := `SELECT id, topic, audit_topic, event_uuid, event_type, source,
	                 sent_at, handled, payload, audit_error, created_at
	          FROM audit_logs ` + where + //nolint:gosec // WHERE built from parameterised conditions
		` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var handled int
		var auditErr sql.NullString
		var createdAt string

		if err := rows.Scan(&e.ID, &e.Topic, &e.AuditTopic, &e.EventUUID, &e.EventType,
			&e.Source, &e.SentAt, &handled, &e.Payload, &auditErr, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}

		e.Handled = handled != 0
		if auditErr.Valid {
			e.AuditError = auditErr.String
		}
		t, err := time.Parse(timeFormat, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing audit entry timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// nullableString returns nil for empty strings so the column stays NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
