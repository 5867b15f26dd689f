// Package syncer runs the background reconciliation loop: it pulls
// remote changes through the backend client and writes them into the
// cache with server-wins conflict resolution. The engine is the only
// writer of sync metadata.
package syncer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/notebridge/internal/backend"
	"github.com/erauner12/notebridge/internal/cache"
	"github.com/erauner12/notebridge/internal/noteerr"
)

const (
	fullSyncPageSize  = 100
	deltaSyncPageSize = 500

	// maxConsecutiveErrors stops the engine until a process restart or
	// reset_cache.
	maxConsecutiveErrors = 5

	backoffInitial = 2 * time.Minute
	backoffCap     = time.Hour
)

// Backend is the narrow client contract the engine needs. The HTTP
// client satisfies it; tests use an in-memory fake.
type Backend interface {
	Index(ctx context.Context, opts backend.IndexOpts) (*backend.IndexPage, error)
	FetchVersion(ctx context.Context, id string, version int) (*backend.NoteData, error)
}

// State is the engine's lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateError   State = "error"
	StateStopped State = "stopped"
)

// Status is a point-in-time snapshot for get_stats.
type Status struct {
	State             State  `json:"state"`
	LastAttemptAt     int64  `json:"last_sync_attempt_at,omitempty"`
	LastSuccessAt     int64  `json:"last_successful_sync_at,omitempty"`
	LastDurationMs    int64  `json:"last_sync_duration_ms,omitempty"`
	LastStatus        string `json:"last_sync_status,omitempty"`
	ConsecutiveErrors int    `json:"sync_error_count"`
}

// Engine is the single background sync task.
type Engine struct {
	store    *cache.Store
	client   Backend
	interval time.Duration

	mu     sync.Mutex
	status Status
	wake   chan struct{}
}

// New builds an engine. interval is the steady-state cycle spacing.
func New(store *cache.Store, client Backend, interval time.Duration) *Engine {
	return &Engine{
		store:    store,
		client:   client,
		interval: interval,
		status:   Status{State: StateIdle},
		wake:     make(chan struct{}, 1),
	}
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// TriggerResync wakes the engine for an immediate cycle and clears a
// stopped state. reset_cache calls this after recreating the store.
func (e *Engine) TriggerResync() {
	e.mu.Lock()
	if e.status.State == StateStopped {
		e.status.State = StateIdle
	}
	e.status.ConsecutiveErrors = 0
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Run executes sync cycles until ctx is cancelled. The first cycle
// starts immediately. After a failed cycle the next attempt follows
// exponential backoff min(2^(n)*2m, 1h); after maxConsecutiveErrors the
// engine parks until TriggerResync or process restart.
func (e *Engine) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = backoffInitial
	bo.Multiplier = 2
	bo.MaxInterval = backoffCap
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		stopped := e.Status().State == StateStopped

		var wait time.Duration
		switch {
		case stopped:
			wait = 0 // park on the wake channel alone
		case e.Status().ConsecutiveErrors > 0:
			next := bo.NextBackOff()
			if next > backoffCap {
				next = backoffCap
			}
			wait = next
			log.Info().Dur("backoff", wait).Int("errors", e.Status().ConsecutiveErrors).Msg("sync rescheduled with backoff")
		default:
			wait = 0
			if e.Status().LastAttemptAt != 0 {
				wait = e.interval
			}
		}

		if stopped {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-e.wake:
				bo.Reset()
			}
		} else if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-e.wake:
				timer.Stop()
				bo.Reset()
			case <-timer.C:
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := e.runCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.recordFailure(ctx, err)
		} else {
			bo.Reset()
		}
	}
}

// RunOnce executes a single cycle; used by tests and startup warmup.
func (e *Engine) RunOnce(ctx context.Context) error {
	return e.runCycle(ctx)
}

func (e *Engine) runCycle(ctx context.Context) error {
	start := time.Now()

	e.mu.Lock()
	e.status.State = StateSyncing
	e.status.LastAttemptAt = start.Unix()
	e.mu.Unlock()

	if err := e.store.SetMeta(ctx, cache.MetaLastSyncAttemptAt, strconv.FormatInt(start.Unix(), 10)); err != nil {
		return err
	}

	cursor, err := e.store.Meta(ctx, cache.MetaBackendCursor)
	if err != nil {
		return err
	}
	if e.store.FullResyncRequired() {
		cursor = ""
	}

	if cursor == "" {
		err = e.fullSync(ctx)
	} else {
		err = e.deltaSync(ctx, cursor)
	}
	if err != nil {
		return err
	}

	duration := time.Since(start)
	now := time.Now().Unix()

	e.mu.Lock()
	e.status.State = StateIdle
	e.status.LastSuccessAt = now
	e.status.LastDurationMs = duration.Milliseconds()
	e.status.LastStatus = "success"
	e.status.ConsecutiveErrors = 0
	e.mu.Unlock()

	return e.store.SetMetaBatch(ctx, map[string]string{
		cache.MetaLastSuccessfulSync: strconv.FormatInt(now, 10),
		cache.MetaLastSyncDurationMs: strconv.FormatInt(duration.Milliseconds(), 10),
		cache.MetaLastSyncStatus:     "success",
		cache.MetaSyncErrorCount:     "0",
	})
}

// fullSync walks the whole bucket in pages without inline data, fetching
// each entry at its listed version. The cursor advances after every
// page inside the page's transaction.
func (e *Engine) fullSync(ctx context.Context) error {
	log.Info().Msg("starting full sync")

	mark := ""
	pages := 0
	for {
		page, err := e.client.Index(ctx, backend.IndexOpts{
			Mark:  mark,
			Limit: fullSyncPageSize,
			Data:  false,
		})
		if err != nil {
			return fmt.Errorf("index page %d: %w", pages, err)
		}

		changes := make([]cache.RemoteChange, 0, len(page.Entries))
		for _, entry := range page.Entries {
			ch, err := e.fetchEntry(ctx, entry)
			if err != nil {
				return err
			}
			changes = append(changes, ch)
		}

		if err := e.store.ApplyRemotePage(ctx, changes, page.Current); err != nil {
			return err
		}
		pages++

		if len(page.Entries) == 0 || page.Mark == "" {
			break
		}
		mark = page.Mark

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	e.store.ClearFullResync()
	log.Info().Int("pages", pages).Msg("full sync complete")
	return nil
}

// deltaSync pulls changes since the cursor with inline data, fetching
// only entries the server did not inline.
func (e *Engine) deltaSync(ctx context.Context, cursor string) error {
	page, err := e.client.Index(ctx, backend.IndexOpts{
		Since: cursor,
		Limit: deltaSyncPageSize,
		Data:  true,
	})
	if err != nil {
		return fmt.Errorf("delta index: %w", err)
	}

	changes := make([]cache.RemoteChange, 0, len(page.Entries))
	for _, entry := range page.Entries {
		if entry.Data != nil {
			changes = append(changes, toChange(entry.ID, entry.Version, entry.Data))
			continue
		}
		ch, err := e.fetchEntry(ctx, entry)
		if err != nil {
			return err
		}
		changes = append(changes, ch)
	}

	if len(changes) > 0 {
		log.Debug().Int("changes", len(changes)).Str("cursor", page.Current).Msg("delta sync applied")
	}
	return e.store.ApplyRemotePage(ctx, changes, page.Current)
}

// fetchEntry retrieves one entry's data. A NotFound (version no longer
// retrievable) degrades to a tombstone instead of aborting the cycle.
func (e *Engine) fetchEntry(ctx context.Context, entry backend.IndexEntry) (cache.RemoteChange, error) {
	data, err := e.client.FetchVersion(ctx, entry.ID, entry.Version)
	if err != nil {
		if noteerr.IsCategory(err, noteerr.CategoryNotFound) {
			return cache.RemoteChange{ID: entry.ID, Missing: true}, nil
		}
		return cache.RemoteChange{}, fmt.Errorf("fetch %s v%d: %w", entry.ID, entry.Version, err)
	}
	return toChange(entry.ID, entry.Version, data), nil
}

func toChange(id string, version int, data *backend.NoteData) cache.RemoteChange {
	return cache.RemoteChange{
		ID:            id,
		ServerVersion: version,
		Text:          data.Content,
		Tags:          data.Tags,
		Deleted:       data.Deleted,
		ModifiedAt:    int64(data.ModificationDate),
		CreatedAt:     int64(data.CreationDate),
	}
}

func (e *Engine) recordFailure(ctx context.Context, err error) {
	e.mu.Lock()
	e.status.ConsecutiveErrors++
	n := e.status.ConsecutiveErrors
	statusMsg := fmt.Sprintf("error: %s", noteerr.As(err).Message)
	if n >= maxConsecutiveErrors {
		e.status.State = StateStopped
		statusMsg = "stopped (max errors)"
	} else {
		e.status.State = StateError
	}
	e.status.LastStatus = statusMsg
	e.mu.Unlock()

	log.Error().Err(err).Int("consecutiveErrors", n).Msg("sync cycle failed")

	meta := map[string]string{
		cache.MetaLastSyncStatus: statusMsg,
		cache.MetaSyncErrorCount: strconv.Itoa(n),
	}
	if merr := e.store.SetMetaBatch(ctx, meta); merr != nil {
		log.Warn().Err(merr).Msg("could not record sync failure metadata")
	}
}
