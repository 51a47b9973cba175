package engine

import "strings"

type classifierRule struct {
	code     int
	keywords []string
}

// Order matters: the first rule with a matching keyword wins.
var classifierRules = []classifierRule{
	{CodeModelNotFound, []string{"model not found"}},
	{CodeUnauthorized, []string{"unauthorized", "401", "403"}},
	{CodeRateLimit, []string{"rate limit", "429"}},
	{CodeTimeout, []string{"timeout", "408"}},
	{CodeProviderError, []string{"500", "502", "503", "504", "server error"}},
	{CodeBadRequest, []string{"400", "bad request"}},
}

// ClassifyError maps a free-text error message onto an outcome code.
// Empty or unrecognised messages fall through to CodeProviderError.
func ClassifyError(message string) int {
	if message == "" {
		return CodeProviderError
	}
	low := strings.ToLower(message)
	for _, rule := range classifierRules {
		for _, kw := range rule.keywords {
			if strings.Contains(low, kw) {
				return rule.code
			}
		}
	}
	return CodeProviderError
}
