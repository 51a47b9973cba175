package engine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/model-graveyard/internal/models"
)

func statusFor(model string, code int) models.StatusRecord {
	m := model
	return models.StatusRecord{ID: "agent:" + model, Name: model, Kind: models.KindAgent, Model: &m, ProbeOutcome: Outcome(code, "", 10)}
}

func suggestionRoster() []models.RosterEntry {
	return []models.RosterEntry{
		{Name: "light", Kind: models.KindAgent, Model: "glm-4.6"},
		{Name: "failed", Kind: models.KindAgent, Model: "model-x-sonnet"},
		{Name: "mid2", Kind: models.KindAgent, Model: "claude-sonnet-4"},
		{Name: "high", Kind: models.KindCategory, Model: "gpt-5"},
		{Name: "top", Kind: models.KindCategory, Model: "claude-opus-4"},
	}
}

func TestSuggestReplacementPrefersSameTier(t *testing.T) {
	table := BuildTierTable(suggestionRoster())
	statuses := []models.StatusRecord{
		statusFor("model-x-sonnet", CodeAlive),
		statusFor("claude-sonnet-4", CodeAlive),
		statusFor("gpt-5", CodeAlive),
	}

	got, ok := SuggestReplacement("model-x-sonnet", table, statuses)

	require.True(t, ok)
	assert.Equal(t, "claude-sonnet-4", got)
}

func TestSuggestReplacementMovesOneTierUp(t *testing.T) {
	table := BuildTierTable(suggestionRoster())
	statuses := []models.StatusRecord{
		statusFor("model-x-sonnet", CodeAlive),
		statusFor("claude-sonnet-4", CodeTimeout),
		statusFor("gpt-5", CodeAlive),
		statusFor("claude-opus-4", CodeAlive),
		statusFor("glm-4.6", CodeAlive),
	}

	got, ok := SuggestReplacement("model-x-sonnet", table, statuses)

	require.True(t, ok)
	assert.Equal(t, "gpt-5", got)
}

func TestSuggestReplacementNeverDowngradesOrSkipsTwoTiers(t *testing.T) {
	table := BuildTierTable(suggestionRoster())
	statuses := []models.StatusRecord{
		statusFor("model-x-sonnet", CodeAlive),
		statusFor("claude-sonnet-4", CodeUnauthorized),
		statusFor("gpt-5", CodeRateLimit),
		statusFor("claude-opus-4", CodeAlive),
		statusFor("glm-4.6", CodeAlive),
	}

	_, ok := SuggestReplacement("model-x-sonnet", table, statuses)

	assert.False(t, ok)
}

func TestSuggestReplacementTopTierStaysInTop(t *testing.T) {
	roster := []models.RosterEntry{
		{Name: "a", Kind: models.KindAgent, Model: "claude-opus-4"},
		{Name: "b", Kind: models.KindAgent, Model: "claude-opus-4.1"},
		{Name: "c", Kind: models.KindAgent, Model: "gpt-5"},
	}
	table := BuildTierTable(roster)
	statuses := []models.StatusRecord{statusFor("claude-opus-4.1", CodeAlive), statusFor("gpt-5", CodeAlive)}

	got, ok := SuggestReplacement("claude-opus-4", table, statuses)
	require.True(t, ok)
	assert.Equal(t, "claude-opus-4.1", got)

	_, ok = SuggestReplacement("claude-opus-4.1", table, []models.StatusRecord{statusFor("gpt-5", CodeAlive)})
	assert.False(t, ok)
}

func TestSuggestReplacementIgnoresRecordsWithoutModel(t *testing.T) {
	table := BuildTierTable(suggestionRoster())
	statuses := []models.StatusRecord{{ID: "agent:x", ProbeOutcome: Outcome(CodeAlive, "", 1)}}

	_, ok := SuggestReplacement("claude-sonnet-4", table, statuses)
	assert.False(t, ok)
}

func TestSimulatorIsDeterministicForSeed(t *testing.T) {
	entries := suggestionRoster()
	entries = append(entries, models.RosterEntry{Name: "missing", Kind: models.KindCategory})

	first := NewSimulator(rand.New(rand.NewSource(7))).Simulate(entries)
	second := NewSimulator(rand.New(rand.NewSource(7))).Simulate(entries)

	require.Equal(t, first, second)
	require.Len(t, first, len(entries))
	assert.Equal(t, models.StatusInvalidConfig, first[len(first)-1].Status)
	for _, rec := range first[:len(first)-1] {
		assert.GreaterOrEqual(t, rec.LatencyMS, int64(50))
		assert.LessOrEqual(t, rec.LatencyMS, int64(3000))
		if rec.Code != CodeAlive {
			require.NotNil(t, rec.ErrorMessage)
			assert.Contains(t, *rec.ErrorMessage, "Simulated ")
		}
	}
}
