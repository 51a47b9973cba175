package models

// Severity captures coarse health levels.
type Severity string

const (
	SeverityOK       Severity = "OK"
	SeverityWarn     Severity = "WARN"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Status names produced by the taxonomy, plus the roster-level INVALID_CONFIG.
const (
	StatusAlive         = "ALIVE"
	StatusRateLimit     = "RATE_LIMIT"
	StatusTimeout       = "TIMEOUT"
	StatusProviderError = "PROVIDER_ERROR"
	StatusUnauthorized  = "UNAUTHORIZED"
	StatusModelNotFound = "MODEL_NOT_FOUND"
	StatusBadRequest    = "BAD_REQUEST"
	StatusInvalidConfig = "INVALID_CONFIG"
)

// SchemaVersion is written into every snapshot.
const SchemaVersion = 1

// ProbeOutcome is the classified result of probing one model.
type ProbeOutcome struct {
	Code         int      `json:"http_status"`
	Status       string   `json:"status"`
	Severity     Severity `json:"severity"`
	ErrorType    *string  `json:"error_type"`
	ErrorMessage *string  `json:"error_message"`
	LatencyMS    int64    `json:"latency_ms"`
}

// Alive reports whether the outcome counts as a healthy model.
func (o ProbeOutcome) Alive() bool {
	return o.Severity == SeverityOK
}

// StatusRecord is one roster entry projected onto its model's outcome.
type StatusRecord struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Kind  Kind    `json:"type"`
	Model *string `json:"model"`
	ProbeOutcome
}

// NewStatusRecord projects an outcome onto a roster entry.
func NewStatusRecord(entry RosterEntry, outcome ProbeOutcome) StatusRecord {
	rec := StatusRecord{
		ID:           entry.ID(),
		Name:         entry.Name,
		Kind:         entry.Kind,
		ProbeOutcome: outcome,
	}
	if entry.HasModel() {
		model := entry.Model
		rec.Model = &model
	}
	return rec
}

// ModelName returns the record's model or "" when absent.
func (r StatusRecord) ModelName() string {
	if r.Model == nil {
		return ""
	}
	return *r.Model
}

// StatusSnapshot is the full current state written after each run.
type StatusSnapshot struct {
	GeneratedAt   string         `json:"generated_at"`
	SchemaVersion int            `json:"schema_version"`
	Items         []StatusRecord `json:"items"`
}

// SeverityCounts summarises a snapshot for logs.
type SeverityCounts struct {
	Total         int
	OK            int
	Warn          int
	Error         int
	Critical      int
	InvalidConfig int
}

// Counts tallies records by severity and INVALID_CONFIG status.
func (s StatusSnapshot) Counts() SeverityCounts {
	counts := SeverityCounts{Total: len(s.Items)}
	for _, item := range s.Items {
		if item.Status == StatusInvalidConfig {
			counts.InvalidConfig++
		}
		switch item.Severity {
		case SeverityOK:
			counts.OK++
		case SeverityWarn:
			counts.Warn++
		case SeverityError:
			counts.Error++
		case SeverityCritical:
			counts.Critical++
		}
	}
	return counts
}

// AliveModels returns the set of models whose records are OK.
func AliveModels(items []StatusRecord) map[string]struct{} {
	alive := make(map[string]struct{})
	for _, item := range items {
		if item.Severity != SeverityOK {
			continue
		}
		if model := item.ModelName(); model != "" {
			alive[model] = struct{}{}
		}
	}
	return alive
}

// TierModel is one entry in the tiered models listing.
type TierModel struct {
	Model string `json:"model"`
	Alive bool   `json:"alive"`
}
