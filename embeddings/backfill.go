package embeddings

import (
	"context"
	"time"
)

// backfillLockTTL bounds how long a crashed backfill can block the next one
const backfillLockTTL = 30 * time.Minute

// BackfillReport summarizes one backfill run
type BackfillReport struct {
	Pending  int      `json:"pending"`
	Indexed  int      `json:"indexed"`
	Failed   int      `json:"failed"`
	Pruned   int      `json:"pruned"`
	Skipped  bool     `json:"skipped"` // another backfill of the same user is running
	Degraded Degraded `json:"degraded,omitempty"`
}

// Backfill indexes every trade and plan of the user that has no embedding yet,
// in batches with a pause between batches. Rows whose source no longer exists
// are pruned. Re-running only processes what is still missing.
func (x *Indexer) Backfill(ctx context.Context) BackfillReport {
	var report BackfillReport
	if !x.Ready() {
		report.Degraded = x.degraded
		return report
	}

	acquired, err := x.svc.cache.AcquireBackfill(ctx, x.userID, backfillLockTTL)
	if err != nil {
		x.log.Warn().Err(err).Msg("Backfill lock unavailable, running unlocked")
	} else if !acquired {
		report.Skipped = true
		return report
	}
	defer func() {
		if err := x.svc.cache.ReleaseBackfill(context.WithoutCancel(ctx), x.userID); err != nil {
			x.log.Warn().Err(err).Msg("Failed to release backfill lock")
		}
	}()

	tradeIDs, indexedTrades, err := x.diff(ctx, x.svc.trades.ListIDs, x.svc.store.IndexedTradeIDs)
	if err != nil {
		x.log.Warn().Err(err).Msg("Failed to compute trade backlog")
		report.Degraded = DegradedStoreError
		return report
	}
	planIDs, indexedPlans, err := x.diff(ctx, x.svc.plans.ListIDs, x.svc.store.IndexedPlanIDs)
	if err != nil {
		x.log.Warn().Err(err).Msg("Failed to compute plan backlog")
		report.Degraded = DegradedStoreError
		return report
	}

	report.Pruned += x.prune(ctx, indexedTrades)
	report.Pruned += x.prune(ctx, indexedPlans)
	report.Pending = len(tradeIDs) + len(planIDs)

	// one counter across trades and plans keeps the pause between every pair of batches
	batches := 0
	x.runBatches(ctx, tradeIDs, &batches, &report, func(ids []string) {
		trades, err := x.svc.trades.ListByIDs(ctx, x.userID, ids)
		if err != nil {
			x.log.Warn().Err(err).Msg("Failed to load backfill batch")
			report.Failed += len(ids)
			return
		}
		for _, t := range trades {
			x.tally(&report, x.IndexTrade(ctx, t))
		}
		report.Failed += len(ids) - len(trades)
	})
	x.runBatches(ctx, planIDs, &batches, &report, func(ids []string) {
		plans, err := x.svc.plans.ListByIDs(ctx, x.userID, ids)
		if err != nil {
			x.log.Warn().Err(err).Msg("Failed to load backfill batch")
			report.Failed += len(ids)
			return
		}
		for _, p := range plans {
			x.tally(&report, x.IndexPlan(ctx, p))
		}
		report.Failed += len(ids) - len(plans)
	})

	x.log.Info().
		Int("pending", report.Pending).
		Int("indexed", report.Indexed).
		Int("failed", report.Failed).
		Int("pruned", report.Pruned).
		Msg("Embedding backfill finished")
	return report
}

func (x *Indexer) tally(report *BackfillReport, out IndexOutcome) {
	if out.Indexed {
		report.Indexed++
		return
	}
	report.Failed++
	if report.Degraded == NotDegraded {
		report.Degraded = out.Degraded
	}
}

// diff returns live ids without an embedding and embedded ids without a live source
func (x *Indexer) diff(ctx context.Context,
	live func(context.Context, string) ([]string, error),
	indexed func(context.Context, string) ([]string, error)) ([]string, []string, error) {

	liveIDs, err := live(ctx, x.userID)
	if err != nil {
		return nil, nil, err
	}
	indexedIDs, err := indexed(ctx, x.userID)
	if err != nil {
		return nil, nil, err
	}

	liveSet := make(map[string]struct{}, len(liveIDs))
	for _, id := range liveIDs {
		liveSet[id] = struct{}{}
	}
	indexedSet := make(map[string]struct{}, len(indexedIDs))
	var orphans []string
	for _, id := range indexedIDs {
		indexedSet[id] = struct{}{}
		if _, ok := liveSet[id]; !ok {
			orphans = append(orphans, id)
		}
	}

	var missing []string
	for _, id := range liveIDs {
		if _, ok := indexedSet[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, orphans, nil
}

func (x *Indexer) prune(ctx context.Context, orphans []string) int {
	pruned := 0
	for _, id := range orphans {
		if err := x.Remove(ctx, id); err == nil {
			pruned++
		}
	}
	return pruned
}

// runBatches calls fn over ids in batches, pausing before every batch after the first.
// batches counts the batches already run in this backfill.
func (x *Indexer) runBatches(ctx context.Context, ids []string, batches *int, report *BackfillReport, fn func([]string)) {
	size := x.svc.cfg.BatchSize
	if size <= 0 {
		size = 5
	}
	for start := 0; start < len(ids); start += size {
		if *batches > 0 && x.svc.cfg.BatchPause > 0 {
			timer := time.NewTimer(x.svc.cfg.BatchPause)
			select {
			case <-ctx.Done():
				timer.Stop()
				report.Failed += len(ids) - start
				return
			case <-timer.C:
			}
		}
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		fn(ids[start:end])
		*batches++
	}
}
