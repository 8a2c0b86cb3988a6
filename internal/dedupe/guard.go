// Package dedupe keeps a redelivered job from being reported twice. A job is
// marked processed in Redis only after its result was published, so a job
// interrupted mid-way is evaluated again on redelivery.
package dedupe

import (
	"context"
	"log/slog"
	"time"
)

// KeyPrefix namespaces processed-job markers.
const KeyPrefix = "ekyc:job:"

// Store holds the markers. *redis.Client satisfies it.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Guard tracks processed jobs. A nil *Guard treats every job as new, which
// is how the workers run when Redis is not configured.
type Guard struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

func NewGuard(store Store, ttl time.Duration) *Guard {
	return &Guard{
		store:  store,
		ttl:    ttl,
		logger: slog.Default().With("component", "dedupe"),
	}
}

func Key(jobID string) string {
	return KeyPrefix + jobID
}

// Processed reports whether the job's result was already published. It
// fails open: when Redis cannot answer the job is treated as new.
func (g *Guard) Processed(ctx context.Context, jobID string) bool {
	if g == nil {
		return false
	}
	ok, err := g.store.Exists(ctx, Key(jobID))
	if err != nil {
		g.logger.Warn("job marker lookup failed, processing anyway", "job_id", jobID, "error", err)
		return false
	}
	return ok
}

// MarkProcessed records that the job's result reached the broker. Call it
// only after a successful publish.
func (g *Guard) MarkProcessed(ctx context.Context, jobType, jobID string) {
	if g == nil {
		return
	}
	if err := g.store.Set(ctx, Key(jobID), jobType, g.ttl); err != nil {
		g.logger.Warn("marking job processed failed", "job_id", jobID, "error", err)
	}
}
