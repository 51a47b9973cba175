package engine

import "github.com/miradorstack/model-graveyard/internal/models"

// SuggestReplacement picks an alive model from the failed model's tier, then
// from the tier directly above it. It never suggests a lower tier and never
// returns failedModel itself.
func SuggestReplacement(failedModel string, table TierTable, statuses []models.StatusRecord) (string, bool) {
	alive := models.AliveModels(statuses)
	idx := ClassifyTier(failedModel).Index()
	up := idx - 1
	if up < 0 {
		up = 0
	}

	for _, tierIdx := range []int{idx, up} {
		for _, candidate := range table[TierOrder[tierIdx]] {
			if candidate == failedModel {
				continue
			}
			if _, ok := alive[candidate]; ok {
				return candidate, true
			}
		}
	}
	return "", false
}
