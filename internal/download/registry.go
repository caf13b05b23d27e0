package download

import (
	"context"
	"sync"
	"time"

	"github.com/jsvoboda/webshare_downloader/internal/logctx"
)

// Registry is the single source of truth for in-flight and recently finished
// downloads. It is an in-memory map guarded by one mutex; the lock is only ever
// held around metadata mutation, never around network or disk I/O.
//
// Records are retained for a grace period after reaching a terminal state and
// then evicted, so memory does not grow across many downloads.
type Registry struct {
	mu        sync.RWMutex
	records   map[string]*Record
	retention time.Duration

	now func() time.Time
}

// NewRegistry creates a registry that keeps terminal records queryable for the
// given retention period.
func NewRegistry(retention time.Duration) *Registry {
	return &Registry{
		records:   make(map[string]*Record),
		retention: retention,
		now:       time.Now,
	}
}

// Create registers a new queued record for id. It fails with ErrDuplicateTask
// when a live, non-terminal record already exists, enforcing at most one
// concurrent download per identifier. A terminal leftover is replaced.
func (r *Registry) Create(id, fileName string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[id]; ok && !existing.Status.Terminal() {
		return *existing, ErrDuplicateTask
	}

	rec := &Record{
		ID:            id,
		FileName:      fileName,
		Status:        StatusQueued,
		Message:       "Queued",
		BytesExpected: -1,
		CreatedAt:     r.now(),
	}
	r.records[id] = rec

	return *rec, nil
}

// Get returns a snapshot of the record for id. Expired terminal records are
// lazily evicted here, so a swept task reports ErrTaskNotFound even between
// sweeper runs. Reads of live records contend only on the read lock; the
// write lock is taken solely to evict an expired record.
func (r *Registry) Get(id string) (Record, error) {
	r.mu.RLock()

	rec, ok := r.records[id]
	if ok && !r.expired(rec) {
		snapshot := *rec
		r.mu.RUnlock()

		return snapshot, nil
	}
	r.mu.RUnlock()

	if !ok {
		return Record{}, ErrTaskNotFound
	}

	// Upgrade to evict, rechecking: the record may have been swept or
	// replaced by a fresh Create while the lock was released.
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok = r.records[id]
	if !ok {
		return Record{}, ErrTaskNotFound
	}

	if r.expired(rec) {
		delete(r.records, id)

		return Record{}, ErrTaskNotFound
	}

	return *rec, nil
}

// Update applies fn to the record for id under the registry lock. The mutation
// is applied to a scratch copy first and committed only if it respects the
// lifecycle invariants:
//
//   - terminal records are frozen; the whole mutation is discarded
//   - status can only move forward (queued -> downloading -> terminal)
//   - progress is monotonically non-decreasing while downloading
//   - completed forces progress to 100; error keeps the last known value
func (r *Registry) Update(id string, fn func(*Record)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return ErrTaskNotFound
	}

	if rec.Status.Terminal() {
		return nil
	}

	next := *rec
	fn(&next)

	if next.Status.rank() < rec.Status.rank() {
		return nil
	}

	switch {
	case next.Status == StatusCompleted:
		next.SetProgress(100)
	case next.Status == StatusError || next.Status == StatusCancelled:
		next.Progress = rec.Progress
	case next.Status == StatusDownloading && rec.Progress != nil:
		if next.Progress == nil || *next.Progress < *rec.Progress {
			next.Progress = rec.Progress
		}
	}

	if next.Status.Terminal() && rec.CompletedAt.IsZero() {
		next.CompletedAt = r.now()
	}

	*rec = next

	return nil
}

// Sweep evicts terminal records older than the retention period and returns
// the number of evicted records.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0

	for id, rec := range r.records {
		if r.expired(rec) {
			delete(r.records, id)

			evicted++
		}
	}

	return evicted
}

// StartSweeper runs Sweep on the given interval until the context is done.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	logger := logctx.LoggerFromContext(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("registry sweeper shutting down")

				return
			case <-ticker.C:
				if evicted := r.Sweep(); evicted > 0 {
					logger.Debug("swept finished downloads", "evicted", evicted)
				}
			}
		}
	}()
}

// Len returns the number of live records, expired or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.records)
}

func (r *Registry) expired(rec *Record) bool {
	return rec.Status.Terminal() && r.now().Sub(rec.CompletedAt) > r.retention
}
