package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/miradorstack/model-graveyard/internal/engine"
	"github.com/miradorstack/model-graveyard/internal/metrics"
	"github.com/miradorstack/model-graveyard/internal/models"
	"github.com/miradorstack/model-graveyard/internal/repo"
	"github.com/miradorstack/model-graveyard/internal/roster"
	"github.com/miradorstack/model-graveyard/internal/utils"
)

var (
	// ErrInvalidRequest marks caller mistakes such as a blank model.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrStatusUpdate is returned when the roster was rewritten but the
	// snapshot could not be patched.
	ErrStatusUpdate = errors.New("model replaced but status update failed")
)

// SnapshotStore is the persistence the service needs.
type SnapshotStore interface {
	Exists() bool
	Write(ctx context.Context, items []models.StatusRecord, now time.Time) (models.StatusSnapshot, error)
	Read(ctx context.Context) (models.StatusSnapshot, error)
	PatchRecord(ctx context.Context, id string, record models.StatusRecord, now time.Time) (models.StatusSnapshot, error)
	History(ctx context.Context, limit int) ([]models.StatusSnapshot, error)
}

// HealthPublisher receives every record whenever the snapshot changes.
type HealthPublisher interface {
	Publish(items []models.StatusRecord)
}

// Options configures a GraveyardService.
type Options struct {
	RosterPath   string
	RosterSource string
	// Simulate makes ReplaceModel draw from the simulator instead of probing.
	Simulate bool
	Seed     int64
}

// ReplaceResult describes a completed model swap.
type ReplaceResult struct {
	AgentID   string              `json:"agent_id"`
	OldModel  string              `json:"old_model"`
	NewModel  string              `json:"new_model"`
	NewStatus models.StatusRecord `json:"new_status"`
}

// GraveyardService ties the roster, the probe engine and the snapshot store together.
type GraveyardService struct {
	opts         Options
	logger       *slog.Logger
	orchestrator *engine.Orchestrator
	probe        engine.Probe
	store        SnapshotStore
	health       HealthPublisher
	latencies    *utils.LatencyTracker
	refreshes    atomic.Int64
	now          func() time.Time

	simMu sync.Mutex
	seed  int64
	sim   *engine.Simulator
}

// NewGraveyardService constructs the service facade. health may be nil.
func NewGraveyardService(opts Options, logger *slog.Logger, probe engine.Probe, orchestrator *engine.Orchestrator, store SnapshotStore, health HealthPublisher) *GraveyardService {
	if logger == nil {
		logger = slog.Default()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = engine.DefaultSimulationSeed
	}
	return &GraveyardService{
		opts:         opts,
		logger:       logger,
		orchestrator: orchestrator,
		probe:        probe,
		store:        store,
		health:       health,
		latencies:    utils.NewLatencyTracker(256),
		now:          time.Now,
		seed:         seed,
		sim:          engine.NewSimulator(rand.New(rand.NewSource(seed))),
	}
}

// Refresh reloads the roster, probes (or simulates) every entry and writes a
// new snapshot. Simulated runs reseed so equal rosters give equal snapshots.
func (s *GraveyardService) Refresh(ctx context.Context, simulate bool) (models.StatusSnapshot, error) {
	entries, err := s.loadEntries()
	if err != nil {
		return models.StatusSnapshot{}, utils.NewAppError("refresh", "load roster", err)
	}

	start := time.Now()
	var records []models.StatusRecord
	mode := metrics.ModeProbe
	if simulate {
		mode = metrics.ModeSimulate
		records = engine.NewSimulator(rand.New(rand.NewSource(s.seed))).Simulate(entries)
	} else {
		if s.orchestrator == nil {
			return models.StatusSnapshot{}, utils.NewAppError("refresh", "prober not configured", nil)
		}
		records = s.orchestrator.ProbeAll(ctx, entries)
	}
	duration := time.Since(start)

	snapshot, err := s.store.Write(ctx, records, s.now())
	if err != nil {
		return models.StatusSnapshot{}, utils.NewAppError("refresh", "write snapshot", err)
	}

	s.latencies.Observe(duration)
	metrics.ObserveRun(mode, duration, snapshot)
	s.publish(snapshot.Items)

	counts := snapshot.Counts()
	s.logger.Info("snapshot written",
		slog.String("mode", mode),
		slog.Int("total", counts.Total),
		slog.Int("ok", counts.OK),
		slog.Int("warn", counts.Warn),
		slog.Int("error", counts.Error),
		slog.Int("critical", counts.Critical),
		slog.Int("invalid_config", counts.InvalidConfig),
		slog.Duration("duration", duration),
	)
	if runs := s.refreshes.Add(1); runs%10 == 0 {
		s.logger.Info("refresh latency",
			slog.Duration("p95", s.latencies.Percentile(95)),
			slog.Int("samples", s.latencies.Count()),
			slog.Int64("runs", runs),
		)
	}
	return snapshot, nil
}

// Status returns the current snapshot; repo.ErrSnapshotNotFound before the first run.
func (s *GraveyardService) Status(ctx context.Context) (models.StatusSnapshot, error) {
	return s.store.Read(ctx)
}

// History returns up to limit past snapshots, oldest first.
func (s *GraveyardService) History(ctx context.Context, limit int) ([]models.StatusSnapshot, error) {
	return s.store.History(ctx, limit)
}

// Models groups the roster's distinct models by tier and marks which are
// alive in the current snapshot. An unreadable roster yields empty tiers.
func (s *GraveyardService) Models(ctx context.Context) (map[engine.Tier][]models.TierModel, error) {
	table := s.tierTable()

	snapshot, err := s.store.Read(ctx)
	switch {
	case errors.Is(err, repo.ErrSnapshotNotFound):
		return table.WithAliveness(nil), nil
	case err != nil:
		return nil, utils.NewAppError("models", "read snapshot", err)
	}
	return table.WithAliveness(snapshot.Items), nil
}

// Suggest recommends an alive substitute for failedModel. ok is false when
// nothing qualifies.
func (s *GraveyardService) Suggest(ctx context.Context, failedModel string) (string, bool, error) {
	if strings.TrimSpace(failedModel) == "" {
		return "", false, fmt.Errorf("%w: missing model", ErrInvalidRequest)
	}
	snapshot, err := s.store.Read(ctx)
	if err != nil {
		return "", false, err
	}
	suggestion, ok := engine.SuggestReplacement(failedModel, s.tierTable(), snapshot.Items)
	return suggestion, ok, nil
}

// ReplaceModel rewrites one roster entry's model, probes the new model once
// and patches the snapshot record. When the patch fails the returned result
// is still populated and the error wraps ErrStatusUpdate.
func (s *GraveyardService) ReplaceModel(ctx context.Context, id, newModel string) (ReplaceResult, error) {
	if id == "" || newModel == "" {
		return ReplaceResult{}, fmt.Errorf("%w: missing 'agent_id' or 'new_model'", ErrInvalidRequest)
	}
	kind, name, err := roster.ParseID(id)
	if err != nil {
		return ReplaceResult{}, err
	}

	oldModel, err := roster.ReplaceModel(s.opts.RosterPath, id, newModel)
	if err != nil {
		return ReplaceResult{}, err
	}
	s.logger.Info("roster model replaced", slog.String("id", id), slog.String("old_model", oldModel), slog.String("new_model", newModel))

	entry := models.RosterEntry{Name: name, Kind: kind, Model: newModel}
	record := models.NewStatusRecord(entry, s.probeOne(ctx, newModel))
	result := ReplaceResult{AgentID: id, OldModel: oldModel, NewModel: newModel, NewStatus: record}

	snapshot, err := s.store.PatchRecord(ctx, id, record, s.now())
	switch {
	case errors.Is(err, repo.ErrRecordNotFound):
		s.logger.Warn("replaced entry missing from snapshot", slog.String("id", id))
		return result, nil
	case err != nil:
		return result, fmt.Errorf("%w: %v", ErrStatusUpdate, err)
	}
	metrics.ObserveSnapshot(snapshot)
	s.publish(snapshot.Items)
	return result, nil
}

// EnsureSnapshot writes a simulated snapshot when no snapshot file exists
// yet. An existing file is left alone even if it no longer parses.
func (s *GraveyardService) EnsureSnapshot(ctx context.Context) error {
	if s.store.Exists() {
		return nil
	}
	s.logger.Info("generating initial status data")
	_, err := s.Refresh(ctx, true)
	return err
}

// RosterIDs returns the ids of every roster entry, in order.
func (s *GraveyardService) RosterIDs() ([]string, error) {
	entries, err := s.loadEntries()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ID())
	}
	return ids, nil
}

func (s *GraveyardService) probeOne(ctx context.Context, model string) models.ProbeOutcome {
	if s.opts.Simulate || s.probe == nil {
		s.simMu.Lock()
		defer s.simMu.Unlock()
		return s.sim.Outcome()
	}
	return s.probe.Probe(ctx, model)
}

func (s *GraveyardService) loadEntries() ([]models.RosterEntry, error) {
	if copied, err := roster.Sync(s.opts.RosterSource, s.opts.RosterPath); err != nil {
		s.logger.Warn("roster sync failed", slog.Any("error", err))
	} else if copied {
		s.logger.Info("roster synced", slog.String("source", s.opts.RosterSource), slog.String("path", s.opts.RosterPath))
	}
	r, err := roster.Load(s.opts.RosterPath, s.logger)
	if err != nil {
		return nil, err
	}
	return r.Entries(), nil
}

func (s *GraveyardService) tierTable() engine.TierTable {
	r, err := roster.Load(s.opts.RosterPath, s.logger)
	if err != nil {
		s.logger.Debug("roster unavailable for tiering", slog.Any("error", err))
		return engine.BuildTierTable(nil)
	}
	return engine.BuildTierTable(r.Entries())
}

func (s *GraveyardService) publish(items []models.StatusRecord) {
	if s.health != nil {
		s.health.Publish(items)
	}
}
