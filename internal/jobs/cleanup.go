package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// LinkPruner deletes message links older than a given age.
type LinkPruner interface {
	PruneOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// CleanupJob trims the message link table so it does not grow without
// bound. Links past retention only lose reply threading and edit relay.
type CleanupJob struct {
	links     LinkPruner
	retention time.Duration
	interval  time.Duration
	timeout   time.Duration
	done      chan struct{}
}

func NewCleanupJob(links LinkPruner, retention, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		links:     links,
		retention: retention,
		interval:  interval,
		timeout:   30 * time.Second,
		done:      make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().
		Dur("interval", j.interval).
		Dur("retention", j.retention).
		Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	j.runCleanup(ctx, "message links", func(ctx context.Context) (int64, error) {
		return j.links.PruneOlderThan(ctx, j.retention)
	})
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
