package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"directory/internal/domain"
)

type Enricher interface {
	Enrich(ctx context.Context, ref domain.ListingRef) error
}

// Worker claims queued listings and enriches them with bounded concurrency.
type Worker struct {
	enricher   Enricher
	store      domain.ExtractionStore
	categories []domain.Category
	workers    int64
	batch      int
	now        func() time.Time
}

func NewWorker(e Enricher, store domain.ExtractionStore, categories []domain.Category, workers, batch int) *Worker {
	if len(categories) == 0 {
		categories = domain.Categories
	}
	if workers < 1 {
		workers = 1
	}
	if batch < 1 {
		batch = 1
	}
	return &Worker{
		enricher: e, store: store, categories: categories,
		workers: int64(workers), batch: batch, now: time.Now,
	}
}

// RunOnce claims one batch per category and processes it. It returns how many
// listings were claimed; individual enrichment errors are logged, not returned.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	sem := semaphore.NewWeighted(w.workers)
	var wg sync.WaitGroup
	var failed atomic.Int64
	claimed := 0

	for _, c := range w.categories {
		refs, err := w.store.ClaimQueued(ctx, c, w.batch, w.now())
		if err != nil {
			wg.Wait()
			return claimed, err
		}
		claimed += len(refs)
		for i, ref := range refs {
			if err := sem.Acquire(ctx, 1); err != nil {
				wg.Wait()
				w.release(ctx, refs[i:])
				return claimed, err
			}
			wg.Add(1)
			go func(ref domain.ListingRef) {
				defer wg.Done()
				defer sem.Release(1)
				if err := w.enricher.Enrich(ctx, ref); err != nil {
					failed.Add(1)
					log.Error().Err(err).Str("category", string(ref.Category)).Int64("id", ref.ID).Msg("enrich failed")
				}
			}(ref)
		}
	}
	wg.Wait()
	if claimed > 0 {
		log.Info().Int("claimed", claimed).Int64("failed", failed.Load()).Msg("enrichment batch finished")
	}
	return claimed, nil
}

func (w *Worker) release(ctx context.Context, refs []domain.ListingRef) {
	if err := w.store.ReleaseClaimed(context.WithoutCancel(ctx), refs); err != nil {
		log.Error().Err(err).Int("count", len(refs)).Msg("release claimed listings")
		return
	}
	log.Warn().Int("count", len(refs)).Msg("released claimed listings back to queue")
}

// Drain runs batches until the queue is empty.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := w.RunOnce(ctx)
		total += n
		if err != nil || n == 0 {
			return total, err
		}
	}
}

// Run drains the queue every poll interval until ctx is done.
func (w *Worker) Run(ctx context.Context, poll time.Duration) error {
	t := time.NewTicker(poll)
	defer t.Stop()
	for {
		if _, err := w.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("drain queue")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
