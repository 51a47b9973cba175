package engine

import (
	"strings"

	"github.com/miradorstack/model-graveyard/internal/models"
)

// Tier is a coarse ability bucket derived from a model's name.
type Tier string

const (
	TierTop   Tier = "top"
	TierHigh  Tier = "high"
	TierMid   Tier = "mid"
	TierLight Tier = "light"
)

// TierOrder lists tiers from most to least capable.
var TierOrder = []Tier{TierTop, TierHigh, TierMid, TierLight}

// Index returns the tier's position in TierOrder.
func (t Tier) Index() int {
	for i, tier := range TierOrder {
		if tier == t {
			return i
		}
	}
	return len(TierOrder) - 1
}

// ClassifyTier buckets a model identifier by naming heuristics.
//
// Any name containing "pro" lands in the high tier, including unrelated names
// such as "propeller-mini".
func ClassifyTier(model string) Tier {
	low := strings.ToLower(model)
	switch {
	case strings.Contains(low, "opus"):
		return TierTop
	case strings.Contains(low, "gpt-5"), strings.Contains(low, "pro-high"), strings.Contains(low, "pro"):
		return TierHigh
	case strings.Contains(low, "sonnet"):
		return TierMid
	default:
		return TierLight
	}
}

// TierTable maps each tier to its distinct models in roster order.
type TierTable map[Tier][]string

// BuildTierTable classifies every roster model once. A model is placed in
// the bucket of its first occurrence; later duplicates are ignored.
func BuildTierTable(entries []models.RosterEntry) TierTable {
	table := make(TierTable, len(TierOrder))
	for _, tier := range TierOrder {
		table[tier] = []string{}
	}
	seen := make(map[string]struct{})
	for _, entry := range entries {
		if !entry.HasModel() {
			continue
		}
		if _, ok := seen[entry.Model]; ok {
			continue
		}
		seen[entry.Model] = struct{}{}
		tier := ClassifyTier(entry.Model)
		table[tier] = append(table[tier], entry.Model)
	}
	return table
}

// WithAliveness annotates every tier's models with their OK status.
func (t TierTable) WithAliveness(items []models.StatusRecord) map[Tier][]models.TierModel {
	alive := models.AliveModels(items)
	out := make(map[Tier][]models.TierModel, len(t))
	for tier, list := range t {
		annotated := make([]models.TierModel, 0, len(list))
		for _, model := range list {
			_, ok := alive[model]
			annotated = append(annotated, models.TierModel{Model: model, Alive: ok})
		}
		out[tier] = annotated
	}
	return out
}
