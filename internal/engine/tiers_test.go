package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/miradorstack/model-graveyard/internal/models"
)

func TestClassifyTier(t *testing.T) {
	cases := map[string]Tier{
		"anthropic/claude-opus-4":   TierTop,
		"OPUS-preview":              TierTop,
		"opus-gpt-5-pro-high":       TierTop,
		"openai/gpt-5":              TierHigh,
		"google/gemini-3-pro-high":  TierHigh,
		"google/gemini-2.5-pro":     TierHigh,
		"anthropic/claude-sonnet-4": TierMid,
		"sonnet-pro":                TierHigh,
		"zai/glm-4.6":               TierLight,
		"":                          TierLight,
	}
	for model, want := range cases {
		assert.Equal(t, want, ClassifyTier(model), "model %q", model)
	}
}

// Any "pro" substring promotes to high, even when it is not a product suffix.
func TestClassifyTierProHeuristicIsBroad(t *testing.T) {
	assert.Equal(t, TierHigh, ClassifyTier("propeller-mini"))
	assert.Equal(t, TierHigh, ClassifyTier("vendor/approx-small"))
}

func TestBuildTierTableGlobalDedup(t *testing.T) {
	entries := []models.RosterEntry{
		{Name: "a1", Kind: models.KindAgent, Model: "claude-sonnet-4"},
		{Name: "a2", Kind: models.KindAgent, Model: "claude-opus-4"},
		{Name: "a3", Kind: models.KindAgent},
		{Name: "a4", Kind: models.KindAgent, Model: "glm-4.6"},
		{Name: "c1", Kind: models.KindCategory, Model: "claude-sonnet-4"},
		{Name: "c2", Kind: models.KindCategory, Model: "gpt-5"},
		{Name: "c3", Kind: models.KindCategory, Model: "claude-sonnet-4.5"},
	}

	table := BuildTierTable(entries)

	assert.Equal(t, []string{"claude-opus-4"}, table[TierTop])
	assert.Equal(t, []string{"gpt-5"}, table[TierHigh])
	assert.Equal(t, []string{"claude-sonnet-4", "claude-sonnet-4.5"}, table[TierMid])
	assert.Equal(t, []string{"glm-4.6"}, table[TierLight])
}

func TestBuildTierTableEmptyRosterHasAllTiers(t *testing.T) {
	table := BuildTierTable(nil)
	for _, tier := range TierOrder {
		list, ok := table[tier]
		assert.True(t, ok, "tier %s missing", tier)
		assert.Empty(t, list)
	}
}

func TestTierTableWithAliveness(t *testing.T) {
	table := TierTable{TierTop: {"opus"}, TierHigh: {}, TierMid: {"sonnet"}, TierLight: {}}
	model := "opus"
	items := []models.StatusRecord{
		{Model: &model, ProbeOutcome: Outcome(CodeAlive, "", 1)},
	}

	annotated := table.WithAliveness(items)

	assert.Equal(t, []models.TierModel{{Model: "opus", Alive: true}}, annotated[TierTop])
	assert.Equal(t, []models.TierModel{{Model: "sonnet", Alive: false}}, annotated[TierMid])
}
