package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/miradorstack/model-graveyard/internal/models"
)

// ErrNotMapping is returned when the roster root is not a JSON object.
var ErrNotMapping = errors.New("roster root is not a mapping")

// Roster is the parsed roster file: agents then categories, each in
// declaration order.
type Roster struct {
	Agents     []models.RosterEntry
	Categories []models.RosterEntry
}

// Entries returns agents followed by categories.
func (r Roster) Entries() []models.RosterEntry {
	out := make([]models.RosterEntry, 0, len(r.Agents)+len(r.Categories))
	out = append(out, r.Agents...)
	return append(out, r.Categories...)
}

// Load reads and parses the roster file at path.
func Load(path string, logger *slog.Logger) (Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Roster{}, fmt.Errorf("read roster %s: %w", path, err)
	}
	return Parse(data, logger)
}

// Parse decodes roster JSON. A missing or malformed section is logged and
// treated as empty; only an unreadable root is an error.
func Parse(data []byte, logger *slog.Logger) (Roster, error) {
	if logger == nil {
		logger = slog.Default()
	}
	root, err := parseObject(data)
	if err != nil {
		if errors.Is(err, errNotObject) {
			return Roster{}, ErrNotMapping
		}
		return Roster{}, fmt.Errorf("parse roster: %w", err)
	}

	var r Roster
	for _, kind := range []models.Kind{models.KindAgent, models.KindCategory} {
		name := kind.Section()
		raw, _ := root.get(name)
		section, err := parseObject(raw)
		if err != nil {
			logger.Warn("roster section is not a mapping", slog.String("section", name), slog.Any("error", err))
			continue
		}
		entries := make([]models.RosterEntry, 0, len(section))
		for _, m := range section {
			entries = append(entries, models.RosterEntry{Name: m.Key, Kind: kind, Model: modelOf(m.Value)})
		}
		if kind == models.KindAgent {
			r.Agents = entries
		} else {
			r.Categories = entries
		}
	}
	return r, nil
}

// modelOf returns the trimmed model string of an entry; a missing entry
// object or a non-string model means no model.
func modelOf(entry json.RawMessage) string {
	var obj struct {
		Model json.RawMessage `json:"model"`
	}
	if err := json.Unmarshal(entry, &obj); err != nil || len(obj.Model) == 0 {
		return ""
	}
	var model string
	if err := json.Unmarshal(obj.Model, &model); err != nil {
		return ""
	}
	return strings.TrimSpace(model)
}
