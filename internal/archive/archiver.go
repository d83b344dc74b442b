package archive

import (
	"context"
	"time"

	"github.com/luckygas/gasdesk/internal/transcript"
	"github.com/luckygas/gasdesk/pkg/logging"
)

const defaultArchiveInterval = time.Hour

// TranscriptSource is the slice of the transcript store the archiver
// reads from. Expiry of archived conversations is left to the store's
// own TTL; the archiver never deletes.
type TranscriptSource interface {
	Keys(ctx context.Context) ([]string, error)
	List(ctx context.Context, key string) ([]transcript.Entry, error)
}

// Archiver periodically copies live transcripts into the S3 archive so
// conversations survive past the Redis TTL. Archiving the same
// conversation twice in one day overwrites the day's object, which keeps
// the archive idempotent across restarts.
type Archiver struct {
	source   TranscriptSource
	store    *Store
	logger   *logging.Logger
	interval time.Duration
}

// ArchiverOption customizes an archiver.
type ArchiverOption func(*Archiver)

// WithInterval overrides the sweep interval.
func WithInterval(d time.Duration) ArchiverOption {
	return func(a *Archiver) {
		if d > 0 {
			a.interval = d
		}
	}
}

func NewArchiver(source TranscriptSource, store *Store, logger *logging.Logger, opts ...ArchiverOption) *Archiver {
	if source == nil {
		panic("archive: transcript source cannot be nil")
	}
	if store == nil {
		panic("archive: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	a := &Archiver{
		source:   source,
		store:    store,
		logger:   logger.Component("archiver"),
		interval: defaultArchiveInterval,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run sweeps on the configured interval until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.Sweep(ctx); err != nil {
				a.logger.Error("archive sweep failed", "error", err)
			}
		}
	}
}

// Sweep archives every live transcript once. Per-conversation failures
// are logged and skipped so one bad conversation does not starve the
// rest.
func (a *Archiver) Sweep(ctx context.Context) error {
	if !a.store.Enabled() {
		return nil
	}
	keys, err := a.source.Keys(ctx)
	if err != nil {
		return err
	}

	archived := 0
	for _, key := range keys {
		entries, err := a.source.List(ctx, key)
		if err != nil {
			a.logger.Warn("failed to read transcript", "conversation", key, "error", err)
			continue
		}
		if len(entries) == 0 {
			continue
		}
		if err := a.store.Archive(ctx, key, entries); err != nil {
			a.logger.Warn("failed to archive transcript", "conversation", key, "error", err)
			continue
		}
		archived++
	}
	if archived > 0 {
		a.logger.Info("archived transcripts", "count", archived)
	}
	return nil
}
