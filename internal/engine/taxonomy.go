package engine

import (
	"fmt"

	"github.com/miradorstack/model-graveyard/internal/models"
)

// Outcome codes. Values mirror HTTP status codes but carry no protocol meaning.
const (
	CodeAlive         = 200
	CodeRateLimit     = 429
	CodeTimeout       = 408
	CodeProviderError = 500
	CodeUnauthorized  = 401
	CodeModelNotFound = 404
	CodeBadRequest    = 400

	// CodeInvalidConfig marks records that were never probed.
	CodeInvalidConfig = 0
)

type taxonomyEntry struct {
	status   string
	severity models.Severity
}

var taxonomy = map[int]taxonomyEntry{
	CodeAlive:         {models.StatusAlive, models.SeverityOK},
	CodeRateLimit:     {models.StatusRateLimit, models.SeverityWarn},
	CodeTimeout:       {models.StatusTimeout, models.SeverityError},
	CodeProviderError: {models.StatusProviderError, models.SeverityError},
	CodeUnauthorized:  {models.StatusUnauthorized, models.SeverityCritical},
	CodeModelNotFound: {models.StatusModelNotFound, models.SeverityCritical},
	CodeBadRequest:    {models.StatusBadRequest, models.SeverityError},
}

// Lookup returns the status name and severity for an outcome code.
// Codes outside the table are only reachable through a programming error.
func Lookup(code int) (string, models.Severity) {
	entry, ok := taxonomy[code]
	if !ok {
		panic(fmt.Sprintf("engine: outcome code %d is not in the status taxonomy", code))
	}
	return entry.status, entry.severity
}

// Outcome builds a classified ProbeOutcome. error_type and error_message are
// only populated for non-ALIVE codes.
func Outcome(code int, message string, latencyMS int64) models.ProbeOutcome {
	status, severity := Lookup(code)
	out := models.ProbeOutcome{
		Code:      code,
		Status:    status,
		Severity:  severity,
		LatencyMS: latencyMS,
	}
	if code == CodeAlive {
		return out
	}
	errType := status
	out.ErrorType = &errType
	if message != "" {
		msg := message
		out.ErrorMessage = &msg
	}
	return out
}

// InvalidConfigOutcome is attached to roster entries that have no model.
func InvalidConfigOutcome() models.ProbeOutcome {
	errType := models.StatusInvalidConfig
	msg := "Missing model"
	return models.ProbeOutcome{
		Code:         CodeInvalidConfig,
		Status:       models.StatusInvalidConfig,
		Severity:     models.SeverityError,
		ErrorType:    &errType,
		ErrorMessage: &msg,
		LatencyMS:    0,
	}
}

// InvalidConfigRecord builds the fixed record for an entry without a model.
func InvalidConfigRecord(entry models.RosterEntry) models.StatusRecord {
	return models.NewStatusRecord(entry, InvalidConfigOutcome())
}
