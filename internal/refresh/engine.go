// Package refresh reconciles fresh listing snapshots against the stored
// contractor dataset, deciding per record between a full profile re-fetch,
// a cheap metadata patch, or nothing.
package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/contractor-intel/internal/classify"
	"github.com/sells-group/contractor-intel/internal/model"
	"github.com/sells-group/contractor-intel/internal/store"
)

// ListingFetcher obtains the cheap listing snapshots for one search. A
// failure here is fatal to the whole pass.
type ListingFetcher interface {
	FetchListings(ctx context.Context, params model.SearchParams) ([]model.Snapshot, error)
}

// ProfileFetcher visits a listing's full profile and returns the enriched
// snapshot (description, certifications). Failures are per-record.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, snap model.Snapshot) (model.Snapshot, error)
}

// Engine drives one reconciliation pass. Classification and store writes are
// serialized; full profile fetches for distinct records run concurrently
// under the configured cap.
type Engine struct {
	store       store.Store
	listings    ListingFetcher
	profiles    ProfileFetcher
	thresholds  classify.Thresholds
	concurrency int64
}

// NewEngine wires a reconciliation engine. Concurrency is the cap on
// simultaneous full profile fetches and must be at least 1.
func NewEngine(st store.Store, listings ListingFetcher, profiles ProfileFetcher, t classify.Thresholds, concurrency int) *Engine {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{
		store:       st,
		listings:    listings,
		profiles:    profiles,
		thresholds:  t,
		concurrency: int64(concurrency),
	}
}

// counters aggregates per-record outcomes. Atomic because full-fetch
// goroutines increment concurrently with the main loop.
type counters struct {
	found           atomic.Int64
	newCount        atomic.Int64
	fullRefreshed   atomic.Int64
	metadataUpdated atomic.Int64
	unchanged       atomic.Int64
	failed          atomic.Int64
}

func (c *counters) snapshot() model.RunCounters {
	return model.RunCounters{
		Found:           int(c.found.Load()),
		New:             int(c.newCount.Load()),
		FullRefreshed:   int(c.fullRefreshed.Load()),
		MetadataUpdated: int(c.metadataUpdated.Load()),
		Unchanged:       int(c.unchanged.Load()),
		Failed:          int(c.failed.Load()),
	}
}

// Reconcile runs one pass for the given search parameters. Per-record
// failures are counted and never abort the pass; a failed listing fetch or
// cancellation finalizes the run as failed with partial counters. The
// returned Run always reflects the finalized ledger row.
func (e *Engine) Reconcile(ctx context.Context, params model.SearchParams) (*model.Run, error) {
	log := zap.L().With(zap.String("zip", params.ZipCode))

	run, err := e.store.CreateRun(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "refresh: create run")
	}
	log.Info("reconciliation pass started", zap.Int64("run_id", run.ID))

	snaps, err := e.listings.FetchListings(ctx, params)
	if err != nil {
		passErr := eris.Wrap(err, "refresh: fetch listings")
		e.finalize(ctx, run, model.RunCounters{}, model.RunStatusFailed, passErr)
		return run, passErr
	}

	var (
		tally counters
		sem   = semaphore.NewWeighted(e.concurrency)
		wg    sync.WaitGroup
		mu    sync.Mutex // serializes store reads/writes across goroutines
	)
	tally.found.Store(int64(len(snaps)))

	seen := make(map[string]bool, len(snaps))
	cancelled := false
	for _, snap := range snaps {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		if err := snap.Validate(); err != nil {
			log.Warn("invalid snapshot skipped", zap.String("name", snap.Name), zap.Error(err))
			tally.failed.Add(1)
			continue
		}
		if snap.ProfileURL == "" {
			log.Warn("snapshot without profile url skipped", zap.String("name", snap.Name))
			tally.failed.Add(1)
			continue
		}
		if seen[snap.ProfileURL] {
			log.Debug("duplicate listing skipped", zap.String("url", snap.ProfileURL))
			continue
		}
		seen[snap.ProfileURL] = true

		mu.Lock()
		stored, lookupErr := e.store.GetContractorByURL(ctx, snap.ProfileURL)
		mu.Unlock()
		if lookupErr != nil && !errors.Is(lookupErr, store.ErrNotFound) {
			log.Warn("lookup failed", zap.String("url", snap.ProfileURL), zap.Error(lookupErr))
			tally.failed.Add(1)
			continue
		}

		outcome := classify.Classify(snap, stored, e.thresholds)
		switch outcome.Kind {
		case classify.KindNew, classify.KindFullRefresh:
			isNew := outcome.Kind == classify.KindNew
			if !isNew {
				log.Debug("full refresh triggered",
					zap.String("name", snap.Name),
					zap.Any("reasons", outcome.Reasons))
			}
			wg.Add(1)
			go func(snap model.Snapshot) {
				defer wg.Done()
				if err := sem.Acquire(ctx, 1); err != nil {
					tally.failed.Add(1)
					return
				}
				enriched, fetchErr := e.profiles.FetchProfile(ctx, snap)
				sem.Release(1)
				if fetchErr != nil {
					log.Warn("profile fetch failed", zap.String("name", snap.Name), zap.Error(fetchErr))
					tally.failed.Add(1)
					return
				}

				mu.Lock()
				_, upsertErr := e.store.UpsertContractor(ctx, contractorFromSnapshot(enriched))
				mu.Unlock()
				if upsertErr != nil {
					log.Warn("upsert failed", zap.String("name", snap.Name), zap.Error(upsertErr))
					tally.failed.Add(1)
					return
				}
				if isNew {
					tally.newCount.Add(1)
				} else {
					tally.fullRefreshed.Add(1)
				}
			}(snap)

		case classify.KindMetadataOnly:
			mu.Lock()
			patchErr := e.store.PatchMetadata(ctx, snap.ProfileURL, outcome.MetadataPatch(snap), time.Now().UTC())
			mu.Unlock()
			if patchErr != nil {
				log.Warn("metadata patch failed", zap.String("name", snap.Name), zap.Error(patchErr))
				tally.failed.Add(1)
				continue
			}
			tally.metadataUpdated.Add(1)

		case classify.KindUnchanged:
			mu.Lock()
			touchErr := e.store.TouchLastFetched(ctx, snap.ProfileURL, time.Now().UTC())
			mu.Unlock()
			if touchErr != nil {
				log.Warn("touch failed", zap.String("name", snap.Name), zap.Error(touchErr))
				tally.failed.Add(1)
				continue
			}
			tally.unchanged.Add(1)
		}
	}
	wg.Wait()

	status := model.RunStatusCompleted
	var passErr error
	if cancelled || ctx.Err() != nil {
		status = model.RunStatusFailed
		passErr = eris.Wrap(ctx.Err(), "refresh: pass cancelled")
	}
	e.finalize(ctx, run, tally.snapshot(), status, passErr)

	log.Info("reconciliation pass finished",
		zap.Int64("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("found", run.Counters.Found),
		zap.Int("new", run.Counters.New),
		zap.Int("full_refreshed", run.Counters.FullRefreshed),
		zap.Int("metadata_updated", run.Counters.MetadataUpdated),
		zap.Int("unchanged", run.Counters.Unchanged),
		zap.Int("failed", run.Counters.Failed))
	return run, passErr
}

// finalize writes the terminal run state. It survives a cancelled pass
// context so a terminated pass never leaves the ledger row running.
func (e *Engine) finalize(ctx context.Context, run *model.Run, c model.RunCounters, status model.RunStatus, cause error) {
	run.Counters = c
	run.Status = status
	if cause != nil {
		run.Error = cause.Error()
	}
	if err := e.store.FinalizeRun(context.WithoutCancel(ctx), run); err != nil {
		zap.L().Error("finalize run failed", zap.Int64("run_id", run.ID), zap.Error(err))
	}
}

// contractorFromSnapshot builds the stored record for a new or fully
// refreshed listing. The fingerprint is recomputed from the enriched
// snapshot and the insight is flagged stale since annotation-relevant
// content may have changed.
func contractorFromSnapshot(snap model.Snapshot) *model.Contractor {
	return &model.Contractor{
		SourceID:       snap.SourceID,
		Name:           snap.Name,
		Phone:          snap.Phone,
		Location:       snap.Location,
		Distance:       snap.Distance,
		Rating:         snap.Rating,
		Reviews:        snap.Reviews,
		ProfileURL:     snap.ProfileURL,
		Description:    snap.Description,
		Certifications: snap.Certifications,
		InsightStale:   true,
		Fingerprint:    snap.Fingerprint(),
		LastFetchedAt:  time.Now().UTC(),
	}
}
