package engine

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/miradorstack/model-graveyard/internal/models"
)

// DefaultSimulationSeed keeps simulated snapshots reproducible between runs.
const DefaultSimulationSeed = 42

// weightedCodes skews simulated outcomes towards ALIVE.
var weightedCodes = []int{200, 200, 200, 200, 200, 429, 408, 500, 401, 404, 400}

const (
	minSimulatedLatencyMS = 50
	maxSimulatedLatencyMS = 3000
)

// Simulator produces random outcomes without invoking any external command.
// It is not safe for concurrent use.
type Simulator struct {
	rng *rand.Rand
}

// NewSimulator constructs a Simulator drawing from rng.
func NewSimulator(rng *rand.Rand) *Simulator {
	if rng == nil {
		rng = rand.New(rand.NewSource(DefaultSimulationSeed))
	}
	return &Simulator{rng: rng}
}

// Outcome draws one simulated outcome.
func (s *Simulator) Outcome() models.ProbeOutcome {
	code := weightedCodes[s.rng.Intn(len(weightedCodes))]
	latency := int64(minSimulatedLatencyMS + s.rng.Intn(maxSimulatedLatencyMS-minSimulatedLatencyMS+1))
	status, _ := Lookup(code)
	return Outcome(code, fmt.Sprintf("Simulated %s", strings.ToLower(status)), latency)
}

// Simulate builds one record per entry, drawing a fresh outcome for each
// entry that has a model.
func (s *Simulator) Simulate(entries []models.RosterEntry) []models.StatusRecord {
	records := make([]models.StatusRecord, 0, len(entries))
	for _, entry := range entries {
		if !entry.HasModel() {
			records = append(records, InvalidConfigRecord(entry))
			continue
		}
		records = append(records, models.NewStatusRecord(entry, s.Outcome()))
	}
	return records
}
