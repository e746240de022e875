package audit

import (
	"context"
	"time"

	"github.com/lightmanager/lightmanager/internal/session"
)

// writeTimeout bounds a single journal insert so a slow disk cannot stall
// the poll loop for long.
const writeTimeout = 2 * time.Second

// Logger defines the logging interface used by the recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Recorder journals session observations. It implements session.Observer.
// Journal failures are logged and never reach the message pipeline.
type Recorder struct {
	repo   Repository
	logger Logger
}

// NewRecorder creates a recorder writing to repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo, logger: noopLogger{}}
}

// SetLogger sets the logger for journal failures.
func (r *Recorder) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Observe stores o as a journal entry.
func (r *Recorder) Observe(ctx context.Context, o session.Observation) {
	e := EntryFromObservation(o)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := r.repo.Create(ctx, &e); err != nil {
		r.logger.Warn("audit journal write failed",
			"topic", o.Topic,
			"uuid", o.Event.UUID,
			"error", err,
		)
	}
}

// EntryFromObservation converts an observation to an unsaved entry.
func EntryFromObservation(o session.Observation) Entry {
	e := Entry{
		Topic:      o.Topic,
		AuditTopic: o.AuditTopic,
		EventUUID:  o.Event.UUID,
		EventType:  o.Event.Type,
		Source:     o.Event.Source,
		SentAt:     o.Event.Timestamp,
		Handled:    o.Handled,
		Payload:    string(o.Payload),
	}
	if o.AuditErr != nil {
		e.AuditError = o.AuditErr.Error()
	}
	if !o.ReceivedAt.IsZero() {
		e.CreatedAt = o.ReceivedAt.UTC()
	}
	return e
}
