package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/miradorstack/model-graveyard/internal/models"
)

// DefaultConcurrency bounds simultaneous probes when none is configured.
const DefaultConcurrency = 3

// Observer receives one callback per distinct model probed. Implementations
// must be safe for concurrent use.
type Observer interface {
	ObserveProbe(model string, outcome models.ProbeOutcome, duration time.Duration)
}

// Orchestrator probes every distinct model of a roster once, with bounded parallelism.
type Orchestrator struct {
	probe       Probe
	concurrency int
	logger      *slog.Logger
	observer    Observer
}

// NewOrchestrator constructs an Orchestrator. Concurrency below 1 is clamped to 1.
func NewOrchestrator(probe Probe, concurrency int, logger *slog.Logger, observer Observer) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{probe: probe, concurrency: concurrency, logger: logger, observer: observer}
}

type probeResult struct {
	model   string
	outcome models.ProbeOutcome
}

// ProbeAll returns one StatusRecord per entry, in input order. Entries sharing
// a model share a single probe outcome. The call returns only after every
// dispatched probe has finished. Cancellation of ctx is ignored so that a
// dropped caller cannot turn in-flight checks into provider errors; its values
// are still handed to each probe.
func (o *Orchestrator) ProbeAll(ctx context.Context, entries []models.RosterEntry) []models.StatusRecord {
	ctx = context.WithoutCancel(ctx)
	runID := uuid.NewString()
	distinct := DistinctModels(entries)
	o.logger.Info("probe run started",
		slog.String("run_id", runID),
		slog.Int("entries", len(entries)),
		slog.Int("models", len(distinct)),
		slog.Int("concurrency", o.concurrency),
	)

	start := time.Now()
	outcomes := o.probeModels(ctx, runID, distinct)

	records := make([]models.StatusRecord, 0, len(entries))
	for _, entry := range entries {
		if !entry.HasModel() {
			records = append(records, InvalidConfigRecord(entry))
			continue
		}
		outcome, ok := outcomes[entry.Model]
		if !ok {
			outcome = probeFailedOutcome(0)
		}
		records = append(records, models.NewStatusRecord(entry, outcome))
	}

	o.logger.Info("probe run finished", slog.String("run_id", runID), slog.Duration("elapsed", time.Since(start)))
	return records
}

// probeModels runs one task per model behind a semaphore. Results are
// collected on a channel by this goroutine only.
func (o *Orchestrator) probeModels(ctx context.Context, runID string, distinct []string) map[string]models.ProbeOutcome {
	results := make(chan probeResult, len(distinct))
	sem := make(chan struct{}, o.concurrency)
	var wg sync.WaitGroup

	for _, model := range distinct {
		wg.Add(1)
		go func(model string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results <- probeResult{model: model, outcome: o.runProbe(ctx, runID, model)}
		}(model)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make(map[string]models.ProbeOutcome, len(distinct))
	for res := range results {
		outcomes[res.model] = res.outcome
	}
	return outcomes
}

// runProbe shields the batch from a crashing probe.
func (o *Orchestrator) runProbe(ctx context.Context, runID, model string) (outcome models.ProbeOutcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("probe failed",
				slog.String("run_id", runID),
				slog.String("model", model),
				slog.Any("error", fmt.Errorf("panic: %v", r)),
			)
			outcome = probeFailedOutcome(0)
		}
		if o.observer != nil {
			o.observer.ObserveProbe(model, outcome, time.Since(start))
		}
	}()

	outcome = o.probe.Probe(ctx, model)
	o.logger.Debug("probe finished",
		slog.String("run_id", runID),
		slog.String("model", model),
		slog.String("status", outcome.Status),
		slog.Int64("latency_ms", outcome.LatencyMS),
	)
	return outcome
}

// probeFailedOutcome reports a check that could not run at all.
func probeFailedOutcome(latencyMS int64) models.ProbeOutcome {
	return Outcome(CodeProviderError, "Probe failed", latencyMS)
}

// DistinctModels returns the non-empty models of entries in first-seen order.
func DistinctModels(entries []models.RosterEntry) []string {
	withModel := lo.Filter(entries, func(e models.RosterEntry, _ int) bool { return e.HasModel() })
	return lo.Uniq(lo.Map(withModel, func(e models.RosterEntry, _ int) string { return e.Model }))
}
