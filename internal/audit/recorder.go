package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"medigate/pkg/requestcontext"
)

// Sink receives a copy of every recorded entry (e.g. the Kafka mirror).
// Sink failures are logged and dropped; they never block recording.
type Sink interface {
	Emit(ctx context.Context, entry Entry)
}

// Recorder accepts entries fire-and-forget and drains them to the store on a
// background worker. Persist failures are logged to the fallback logger and
// counted; they never abort the operation being audited.
type Recorder struct {
	store  Store
	sink   Sink
	logger *slog.Logger
	inbox  chan Entry
	window int
}

// NewRecorder builds a recorder with a bounded inbox. window bounds how many
// recent entries queries scan (see Query).
func NewRecorder(store Store, sink Sink, logger *slog.Logger, buffer, window int) *Recorder {
	if buffer <= 0 {
		buffer = 1024
	}
	if window <= 0 {
		window = 500
	}
	return &Recorder{
		store:  store,
		sink:   sink,
		logger: logger,
		inbox:  make(chan Entry, buffer),
		window: window,
	}
}

// Record enqueues the entry. Never blocks the caller: when the inbox is full
// the entry goes straight to the fallback logger so it is not silently lost.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}

	select {
	case r.inbox <- entry:
	default:
		entriesDropped.Inc()
		r.logger.Error("audit inbox full, entry written to fallback log",
			"action", entry.Action,
			"outcome", entry.Outcome,
			"subject", entry.Subject.String(),
			"email", entry.Email,
		)
	}
}

// Run drains the inbox until ctx is cancelled. Call from a goroutine at
// startup; remaining buffered entries are flushed before returning.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return ctx.Err()
		case entry := <-r.inbox:
			r.persist(ctx, entry)
		}
	}
}

func (r *Recorder) flush() {
	// Detached context: the run context is already cancelled.
	ctx := context.Background()
	for {
		select {
		case entry := <-r.inbox:
			r.persist(ctx, entry)
		default:
			return
		}
	}
}

func (r *Recorder) persist(ctx context.Context, entry Entry) {
	if err := r.store.Append(ctx, entry); err != nil {
		persistFailures.Inc()
		r.logger.Error("audit persist failed, entry written to fallback log",
			"error", err,
			"action", entry.Action,
			"outcome", entry.Outcome,
			"subject", entry.Subject.String(),
			"email", entry.Email,
			"message", entry.Message,
		)
		return
	}
	entriesRecorded.Inc()
	if r.sink != nil {
		r.sink.Emit(ctx, entry)
	}
}

// Query returns matching entries, newest first, bounded by filter.Limit.
//
// Filtering is applied over the most recent window of entries, not the full
// history. This is a recency-bounded view: operationally sufficient for
// audit review, but older matches beyond the window are not returned.
func (r *Recorder) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	recent, err := r.store.ListRecent(ctx, r.window)
	if err != nil {
		return nil, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > r.window {
		limit = r.window
	}

	matched := make([]Entry, 0, limit)
	for _, entry := range recent {
		if !filter.Matches(entry) {
			continue
		}
		matched = append(matched, entry)
		if len(matched) == limit {
			break
		}
	}
	return matched, nil
}
