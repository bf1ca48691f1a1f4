package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"profittracker/internal/amqp"
	"profittracker/internal/core"
	applog "profittracker/internal/log"
	"profittracker/internal/store"
)

// EventPublisher announces entry changes to downstream consumers.
type EventPublisher interface {
	PublishEntryEvent(ctx context.Context, msg *amqp.EntryEventMessage) error
}

var errNoRowReturned = errors.New("write returned no row")

// EntryStore owns the upsert-by-date rules for profit entries on top of any
// store.Backend. Reads are fail-soft; writes report *core.PersistenceError.
type EntryStore struct {
	backend   store.Backend
	publisher EventPublisher
	logger    *applog.Logger
	events    *applog.StructuredLogger
	timeout   time.Duration
	// publishTimeout bounds how long a request waits on an event after
	// the write has succeeded.
	publishTimeout time.Duration
	newID          func() string
}

type Option func(*EntryStore)

// WithPublisher enables entry events. A nil publisher disables them.
func WithPublisher(p EventPublisher) Option {
	return func(s *EntryStore) { s.publisher = p }
}

func WithLogger(l *applog.Logger) Option {
	return func(s *EntryStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTimeout bounds every backend call. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(s *EntryStore) { s.timeout = d }
}

// WithPublishTimeout bounds each event publish.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *EntryStore) {
		if d > 0 {
			s.publishTimeout = d
		}
	}
}

// WithIDGenerator replaces uuid.NewString for minting entry ids.
func WithIDGenerator(gen func() string) Option {
	return func(s *EntryStore) { s.newID = gen }
}

func NewEntryStore(backend store.Backend, opts ...Option) *EntryStore {
	s := &EntryStore{
		backend: backend,
		logger:  applog.New(applog.DefaultConfig()),
		timeout:        5 * time.Second,
		publishTimeout: 2 * time.Second,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent(applog.ComponentStorage)
	s.events = applog.NewStructuredLogger(s.logger)
	return s
}

func (s *EntryStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// ListAll returns every entry in ascending date order. A backend failure is
// logged and yields an empty, non-nil slice.
func (s *EntryStore) ListAll(ctx context.Context) []core.ProfitEntry {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	records, err := s.backend.SelectAll(ctx)
	if err != nil {
		s.events.LogError(ctx, "Failed to list entries", err, applog.ComponentStorage, applog.OpList, nil)
		return []core.ProfitEntry{}
	}

	entries := make([]core.ProfitEntry, 0, len(records))
	for _, rec := range records {
		e, err := rec.ToEntry()
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping unreadable entry", applog.FieldEntryID, rec.ID, applog.FieldError, err.Error())
			continue
		}
		entries = append(entries, e)
	}
	return core.SortByDate(entries)
}

// FindByDate returns the entry for date or nil when there is none. Backend
// failures are logged and reported as absence.
func (s *EntryStore) FindByDate(ctx context.Context, date core.Date) (*core.ProfitEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rec, err := s.backend.SelectByDate(ctx, date.String())
	if errors.Is(err, store.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.events.LogError(ctx, "Failed to look up entry by date", err, applog.ComponentStorage, applog.OpFind,
			applog.NewFields().WithEntry("", date.String()))
		return nil, nil
	}

	e, err := rec.ToEntry()
	if err != nil {
		return nil, &core.PersistenceError{Op: "read", Err: err}
	}
	return &e, nil
}

// Upsert creates the entry for entry.Date or replaces the four numeric
// fields of the existing one. The returned bool is true only when a new row
// was inserted by this call.
func (s *EntryStore) Upsert(ctx context.Context, entry core.ProfitEntry) (core.ProfitEntry, bool, error) {
	if err := entry.Validate(); err != nil {
		return core.ProfitEntry{}, false, err
	}

	existing, err := s.FindByDate(ctx, entry.Date)
	if err != nil {
		return core.ProfitEntry{}, false, err
	}

	minted := ""
	rec := store.FromEntry(entry)
	if existing != nil {
		rec.ID = existing.ID
	} else {
		minted = s.newID()
		rec.ID = minted
	}

	wctx, cancel := s.withTimeout(ctx)
	saved, err := s.backend.Upsert(wctx, rec)
	cancel()
	if err == nil && saved.ID == "" {
		err = errNoRowReturned
	}
	if err != nil {
		s.events.LogError(ctx, "Failed to save entry", err, applog.ComponentStorage, applog.OpUpsert,
			applog.NewFields().WithEntry(rec.ID, rec.Date))
		return core.ProfitEntry{}, false, &core.PersistenceError{Op: "save", Err: err}
	}

	out, err := saved.ToEntry()
	if err != nil {
		return core.ProfitEntry{}, false, &core.PersistenceError{Op: "save", Err: err}
	}

	// A concurrent insert for the same date wins the conflict and keeps its
	// id; this call then counts as an update.
	created := existing == nil && saved.ID == minted
	s.events.LogEntrySaved(ctx, out.ID, out.Date.String(), created)
	s.publish(ctx, amqp.NewUpsertedEvent(out.ID, out.Date.String(), created))

	return out, created, nil
}

// DeleteByID removes the entry with id. Unknown ids succeed.
func (s *EntryStore) DeleteByID(ctx context.Context, id string) error {
	if id == "" {
		return &core.ValidationError{Field: "id", Err: core.ErrMissingFields}
	}

	wctx, cancel := s.withTimeout(ctx)
	err := s.backend.DeleteByID(wctx, id)
	cancel()
	if err != nil {
		s.events.LogError(ctx, "Failed to delete entry", err, applog.ComponentStorage, applog.OpDelete,
			applog.NewFields().WithEntry(id, ""))
		return &core.PersistenceError{Op: "delete", Err: err}
	}

	s.events.LogEntryDeleted(ctx, id)
	s.publish(ctx, amqp.NewDeletedEvent(id))
	return nil
}

func (s *EntryStore) Summary(ctx context.Context) core.Summary {
	return core.Summarize(s.ListAll(ctx))
}

func (s *EntryStore) Series(ctx context.Context) []core.SeriesPoint {
	return core.CumulativeSeries(s.ListAll(ctx))
}

// Recent returns up to n entries, newest first.
func (s *EntryStore) Recent(ctx context.Context, n int) []core.ProfitEntry {
	return core.Recent(s.ListAll(ctx), n)
}

// Ping checks that the backend is reachable.
func (s *EntryStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.backend.Ping(ctx)
}

// publish never fails the caller; the entry is already persisted. It waits
// at most publishTimeout.
func (s *EntryStore) publish(ctx context.Context, msg *amqp.EntryEventMessage) {
	if s.publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()

	// The publisher runs on its own goroutine so one that ignores pctx still
	// cannot hold the response.
	done := make(chan error, 1)
	go func() { done <- s.publisher.PublishEntryEvent(pctx, msg) }()

	var err error
	select {
	case err = <-done:
	case <-pctx.Done():
		err = pctx.Err()
	}
	if err != nil {
		s.logger.WithComponent(applog.ComponentAMQP).WarnContext(ctx, "Failed to publish entry event",
			applog.FieldOperation, applog.OpPublish,
			applog.FieldEntryID, msg.ID,
			"type", string(msg.Type),
			applog.FieldError, err.Error())
	}
}
