package audit

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/caremesh/caremesh/internal/platform/metrics"
)

const (
	defaultShards     = 8
	shardQueueDepth   = 256
	asyncWriteTimeout = 10 * time.Second
)

// Recorder routes audit entries to the right write path. High-sensitivity
// entries go straight through to the repository on the caller's context,
// inside the caller's transaction when one is present, so the audit write
// and the business mutation commit or roll back together. Ordinary entries
// are handed to a sharded background writer: writes for the same entity
// land on the same shard and preserve submission order, writes for
// different entities may complete out of order.
type Recorder struct {
	repo   Repo
	logger zerolog.Logger
	now    func() time.Time

	shards []chan *Entry
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewRecorder creates a Recorder and starts its background writers.
func NewRecorder(repo Repo, logger zerolog.Logger) *Recorder {
	r := &Recorder{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		shards: make([]chan *Entry, defaultShards),
	}
	for i := range r.shards {
		r.shards[i] = make(chan *Entry, shardQueueDepth)
		r.wg.Add(1)
		go r.writeLoop(r.shards[i])
	}
	return r
}

// Record persists an audit entry. For high-sensitivity actions the error
// is the caller's problem: the business mutation must be rolled back. For
// ordinary actions Record never fails: a write problem is logged to the
// secondary channel and counted, but the triggering action completes.
func (r *Recorder) Record(ctx context.Context, e *Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now().UTC()
	}
	if e.ID == "" {
		e.ID = newEntryID(e.Timestamp)
	}

	if SensitivityOf(e.Action) == High {
		if err := r.repo.Insert(ctx, e); err != nil {
			metrics.AuditWriteFailures.WithLabelValues("high").Inc()
			r.logger.Error().Err(err).
				Str("audit_id", e.ID).
				Str("action", string(e.Action)).
				Msg("high-sensitivity audit write failed")
			return fmt.Errorf("audit: %w", err)
		}
		metrics.AuditWrites.WithLabelValues("high").Inc()
		return nil
	}

	// Ordinary: enqueue on the entity's shard. The send blocks briefly if
	// the shard is saturated rather than reordering or dropping entries.
	r.shard(e.entityKey()) <- e
	return nil
}

// Close stops accepting entries and drains the queues.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		for _, ch := range r.shards {
			close(ch)
		}
	})
	r.wg.Wait()
}

func (r *Recorder) shard(key string) chan *Entry {
	h := fnv.New32a()
	h.Write([]byte(key))
	return r.shards[h.Sum32()%uint32(len(r.shards))]
}

func (r *Recorder) writeLoop(ch chan *Entry) {
	defer r.wg.Done()

	for e := range ch {
		// Detached context: the originating request is long gone by now.
		ctx, cancel := context.WithTimeout(context.Background(), asyncWriteTimeout)
		err := r.repo.Insert(ctx, e)
		cancel()

		if err != nil {
			metrics.AuditWriteFailures.WithLabelValues("ordinary").Inc()
			r.logger.Error().Err(err).
				Str("audit_id", e.ID).
				Str("action", string(e.Action)).
				Str("entity_type", e.EntityType).
				Msg("audit write failed")
			continue
		}
		metrics.AuditWrites.WithLabelValues("ordinary").Inc()
	}
}
