package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/model-graveyard/internal/models"
)

type countingProbe struct {
	mu       sync.Mutex
	calls    map[string]int
	outcomes map[string]models.ProbeOutcome
	delays   map[string]time.Duration
	panics   map[string]bool

	inFlight    int32
	maxInFlight int32
}

func newCountingProbe() *countingProbe {
	return &countingProbe{
		calls:    make(map[string]int),
		outcomes: make(map[string]models.ProbeOutcome),
		delays:   make(map[string]time.Duration),
		panics:   make(map[string]bool),
	}
}

func (c *countingProbe) Probe(ctx context.Context, model string) models.ProbeOutcome {
	current := atomic.AddInt32(&c.inFlight, 1)
	defer atomic.AddInt32(&c.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&c.maxInFlight)
		if current <= peak || atomic.CompareAndSwapInt32(&c.maxInFlight, peak, current) {
			break
		}
	}

	c.mu.Lock()
	c.calls[model]++
	delay := c.delays[model]
	shouldPanic := c.panics[model]
	outcome, ok := c.outcomes[model]
	c.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if shouldPanic {
		panic("probe exploded")
	}
	if !ok {
		outcome = Outcome(CodeAlive, "", 100)
	}
	return outcome
}

type recordingObserver struct {
	mu     sync.Mutex
	models []string
}

func (r *recordingObserver) ObserveProbe(model string, _ models.ProbeOutcome, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = append(r.models, model)
}

func TestProbeAllSharedModelScenario(t *testing.T) {
	probe := newCountingProbe()
	probe.outcomes["m1"] = Outcome(CodeAlive, "", 321)
	orch := NewOrchestrator(probe, 3, nil, nil)

	entries := []models.RosterEntry{
		{Name: "a1", Kind: models.KindAgent, Model: "m1"},
		{Name: "c1", Kind: models.KindCategory, Model: "m1"},
	}
	records := orch.ProbeAll(context.Background(), entries)

	require.Len(t, records, 2)
	assert.Equal(t, "agent:a1", records[0].ID)
	assert.Equal(t, "category:c1", records[1].ID)
	for _, rec := range records {
		assert.Equal(t, models.StatusAlive, rec.Status)
		assert.Equal(t, models.SeverityOK, rec.Severity)
		assert.Equal(t, int64(321), rec.LatencyMS)
		assert.Equal(t, "m1", rec.ModelName())
	}
	assert.Equal(t, 1, probe.calls["m1"])
}

func TestProbeAllProbesEachModelOnce(t *testing.T) {
	probe := newCountingProbe()
	probe.outcomes["shared"] = Outcome(CodeRateLimit, "rate limit", 77)
	orch := NewOrchestrator(probe, 2, nil, nil)

	var entries []models.RosterEntry
	for _, name := range []string{"a", "b", "c", "d"} {
		entries = append(entries, models.RosterEntry{Name: name, Kind: models.KindAgent, Model: "shared"})
	}
	entries = append(entries, models.RosterEntry{Name: "solo", Kind: models.KindCategory, Model: "other"})

	records := orch.ProbeAll(context.Background(), entries)

	require.Len(t, records, 5)
	assert.Equal(t, 1, probe.calls["shared"])
	assert.Equal(t, 1, probe.calls["other"])
	first := records[0].ProbeOutcome
	for _, rec := range records[:4] {
		assert.Equal(t, first, rec.ProbeOutcome)
	}
	assert.Equal(t, models.StatusRateLimit, first.Status)
}

func TestProbeAllMissingModelsBypassProbing(t *testing.T) {
	probe := newCountingProbe()
	orch := NewOrchestrator(probe, 1, nil, nil)

	entries := []models.RosterEntry{
		{Name: "empty", Kind: models.KindAgent},
		{Name: "ok", Kind: models.KindAgent, Model: "m1"},
		{Name: "blank", Kind: models.KindCategory},
	}
	records := orch.ProbeAll(context.Background(), entries)

	require.Len(t, records, 3)
	for _, idx := range []int{0, 2} {
		rec := records[idx]
		assert.Equal(t, models.StatusInvalidConfig, rec.Status)
		assert.Equal(t, models.SeverityError, rec.Severity)
		assert.Equal(t, 0, rec.Code)
		assert.Equal(t, int64(0), rec.LatencyMS)
	}
	assert.Equal(t, models.StatusAlive, records[1].Status)
	assert.Len(t, probe.calls, 1)
}

func TestProbeAllPreservesOrderUnderReorderedCompletion(t *testing.T) {
	probe := newCountingProbe()
	names := []string{"m1", "m2", "m3", "m4", "m5"}
	for i, model := range names {
		// earlier models finish later
		probe.delays[model] = time.Duration(len(names)-i) * 15 * time.Millisecond
		probe.outcomes[model] = Outcome(CodeAlive, "", int64(i))
	}
	orch := NewOrchestrator(probe, len(names), nil, nil)

	entries := make([]models.RosterEntry, 0, len(names))
	for _, model := range names {
		entries = append(entries, models.RosterEntry{Name: "agent-" + model, Kind: models.KindAgent, Model: model})
	}
	records := orch.ProbeAll(context.Background(), entries)

	require.Len(t, records, len(names))
	for i, rec := range records {
		assert.Equal(t, "agent:agent-"+names[i], rec.ID)
		assert.Equal(t, int64(i), rec.LatencyMS)
	}
}

func TestProbeAllRecoversFromProbePanic(t *testing.T) {
	probe := newCountingProbe()
	probe.panics["m3"] = true
	observer := &recordingObserver{}
	orch := NewOrchestrator(probe, 2, nil, observer)

	var entries []models.RosterEntry
	for _, model := range []string{"m1", "m2", "m3", "m4", "m5"} {
		entries = append(entries, models.RosterEntry{Name: model, Kind: models.KindAgent, Model: model})
	}
	records := orch.ProbeAll(context.Background(), entries)

	require.Len(t, records, 5)
	for i, rec := range records {
		if i == 2 {
			assert.Equal(t, CodeProviderError, rec.Code)
			assert.Equal(t, models.StatusProviderError, rec.Status)
			require.NotNil(t, rec.ErrorMessage)
			assert.Equal(t, "Probe failed", *rec.ErrorMessage)
			continue
		}
		assert.Equal(t, models.StatusAlive, rec.Status, "record %d", i)
	}
	assert.Len(t, observer.models, 5)
}

func TestProbeAllRespectsConcurrencyBound(t *testing.T) {
	probe := newCountingProbe()
	var entries []models.RosterEntry
	for i := 0; i < 8; i++ {
		model := string(rune('a' + i))
		probe.delays[model] = 20 * time.Millisecond
		entries = append(entries, models.RosterEntry{Name: model, Kind: models.KindAgent, Model: model})
	}
	orch := NewOrchestrator(probe, 2, nil, nil)

	orch.ProbeAll(context.Background(), entries)

	assert.LessOrEqual(t, atomic.LoadInt32(&probe.maxInFlight), int32(2))
	assert.Len(t, probe.calls, 8)
}

func TestNewOrchestratorClampsConcurrency(t *testing.T) {
	orch := NewOrchestrator(newCountingProbe(), 0, nil, nil)
	if orch.concurrency != 1 {
		t.Fatalf("expected concurrency 1, got %d", orch.concurrency)
	}
}

func TestDistinctModels(t *testing.T) {
	entries := []models.RosterEntry{
		{Name: "a", Model: "x"},
		{Name: "b"},
		{Name: "c", Model: "y"},
		{Name: "d", Model: "x"},
	}
	assert.Equal(t, []string{"x", "y"}, DistinctModels(entries))
}

func TestProbeAllOutlivesCallerCancellation(t *testing.T) {
	runner := &stubRunner{result: CommandResult{Stdout: `{"type":"text"}`}, delay: 150 * time.Millisecond}
	orch := NewOrchestrator(newTestProber(runner, 5*time.Second), 2, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	defer cancel()

	records := orch.ProbeAll(ctx, []models.RosterEntry{
		{Name: "a1", Kind: models.KindAgent, Model: "m1"},
		{Name: "c1", Kind: models.KindCategory, Model: "m1"},
	})

	require.ErrorIs(t, ctx.Err(), context.Canceled)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, models.StatusAlive, rec.Status, rec.ID)
		assert.Nil(t, rec.ErrorMessage)
	}
}
