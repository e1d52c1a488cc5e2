// Package audit records engine-level operations into the append-only trail.
// The store-backed logger is the production path; the writer logger serves
// tests and environments without a database.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/proptrust/engine/pkg/contracts"
	"github.com/proptrust/engine/pkg/store"
)

// Logger records one audit entry. Implementations must never block the
// caller on audit delivery failure longer than the passed context allows.
type Logger interface {
	Record(ctx context.Context, op contracts.AuditOperation, propertyID string, status contracts.AuditStatus, message string) error
}

// StoreLogger appends entries to the relational audit table.
type StoreLogger struct {
	store *store.Store
	log   *slog.Logger
	now   func() time.Time
	newID func() string
}

// StoreOption configures a StoreLogger.
type StoreOption func(*StoreLogger)

// WithClock fixes the logger clock. Tests pin it.
func WithClock(now func() time.Time) StoreOption {
	return func(l *StoreLogger) { l.now = now }
}

// WithIDGenerator overrides entry id allocation. Tests pin it.
func WithIDGenerator(newID func() string) StoreOption {
	return func(l *StoreLogger) { l.newID = newID }
}

// NewStoreLogger builds the store-backed logger. Failures to persist are
// logged and returned; the caller decides whether they are fatal.
func NewStoreLogger(s *store.Store, log *slog.Logger, opts ...StoreOption) *StoreLogger {
	l := &StoreLogger{
		store: s,
		log:   log,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *StoreLogger) Record(ctx context.Context, op contracts.AuditOperation, propertyID string, status contracts.AuditStatus, message string) error {
	entry := contracts.AuditEntry{
		ID:         l.newID(),
		Operation:  op,
		PropertyID: propertyID,
		Status:     status,
		Message:    message,
		CreatedAt:  l.now().UTC(),
	}
	if err := l.store.AppendAudit(ctx, entry); err != nil {
		l.log.ErrorContext(ctx, "audit append failed",
			"operation", string(op),
			"property_id", propertyID,
			"error", err,
		)
		return err
	}
	return nil
}

// WriterLogger emits entries as JSON lines. It backs tests and the CLI's
// database-free paths.
type WriterLogger struct {
	mu     sync.Mutex
	writer io.Writer
	now    func() time.Time
}

// NewWriterLogger writes to the given writer, defaulting to os.Stdout.
func NewWriterLogger(w io.Writer) *WriterLogger {
	if w == nil {
		w = os.Stdout
	}
	return &WriterLogger{writer: w, now: time.Now}
}

func (l *WriterLogger) Record(_ context.Context, op contracts.AuditOperation, propertyID string, status contracts.AuditStatus, message string) error {
	entry := contracts.AuditEntry{
		ID:         uuid.NewString(),
		Operation:  op,
		PropertyID: propertyID,
		Status:     status,
		Message:    message,
		CreatedAt:  l.now().UTC(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = l.writer.Write(append([]byte("AUDIT: "), append(b, '\n')...))
	return err
}
