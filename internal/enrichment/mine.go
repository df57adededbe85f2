package enrichment

import (
	"regexp"
	"strings"
)

const (
	maxMined         = 4
	minFeatureLen    = 10
	maxFeatureLen    = 100
	maxErrorCaseLen  = 150
	errorDedupPrefix = 50
)

var optionalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`users? can (?:also\s+)?([^.]+)`),
	regexp.MustCompile(`(?:can also|optionally|may also)\s+([^.]+)`),
	regexp.MustCompile(`able to\s+([^.]+)`),
	regexp.MustCompile(`option to\s+([^.]+)`),
	regexp.MustCompile(`can\s+(?:filter|sort|customize|configure|modify)\s+([^.]+)`),
}

var keywordFeatures = []struct{ keyword, feature string }{
	{"filter", "User can apply filters to refine results"},
	{"sort", "User can sort results by different criteria"},
	{"export", "User can export data in various formats"},
	{"customize", "User can customize display settings"},
	{"save", "User can save searches for later use"},
}

// ExtractOptionalFeatures mines optional capabilities ("users can also X",
// "option to X") from requirements text. At most four are returned.
func ExtractOptionalFeatures(text string) []string {
	lowered := strings.ToLower(text)
	var features []string
	for _, p := range optionalPatterns {
		for _, m := range p.FindAllStringSubmatch(lowered, -1) {
			f := strings.TrimSpace(m[1])
			if len(f) <= minFeatureLen || len(f) >= maxFeatureLen {
				continue
			}
			if strings.HasPrefix(f, "can ") {
				features = append(features, "User "+f)
			} else {
				features = append(features, "User can "+f)
			}
		}
	}
	for _, kf := range keywordFeatures {
		if strings.Contains(lowered, kf.keyword) {
			features = append(features, kf.feature)
		}
	}
	return dedup(features, func(s string) string { return strings.ToLower(s) }, maxMined)
}

type errorPattern struct {
	re       *regexp.Regexp
	template func(groups []string) string
}

var errorPatterns = []errorPattern{
	{
		regexp.MustCompile(`(?i)if\s+([^,]+?)\s+fails,\s+([^.]+)`),
		func(g []string) string { return "If " + g[0] + " fails: " + g[1] },
	},
	{
		regexp.MustCompile(`(?i)when\s+([^.]+?)\s+(?:is\s+|are\s+)?(?:unavailable|not available)`),
		func(g []string) string { return "If " + g[0] + " is unavailable: System displays a message and suggests alternatives" },
	},
	{
		regexp.MustCompile(`(?i)if\s+no\s+([^.,]+)`),
		func(g []string) string { return "If no " + g[0] + ": System notifies the user and provides guidance" },
	},
	{
		regexp.MustCompile(`(?i)unable to\s+([^.,]+)`),
		func(g []string) string { return "If unable to " + g[0] + ": System logs the issue and notifies an administrator" },
	},
	{
		regexp.MustCompile(`(?i)cannot\s+([^.,]+)`),
		func(g []string) string { return "If the user cannot " + g[0] + ": System provides a fallback option" },
	},
	{
		regexp.MustCompile(`(?i)\btime\s?outs?\b|\btimes out\b`),
		func([]string) string { return "If a timeout occurs: System retries the operation and notifies the user" },
	},
	{
		regexp.MustCompile(`(?i)invalid\s+([^.,]+)`),
		func(g []string) string { return "If invalid " + g[0] + ": System displays a validation error with specific guidance" },
	},
	{
		regexp.MustCompile(`(?i)(?:if|when)\s+(?:the\s+)?([^,.]+?)(?:\s+fails?|\s+errors?|\s+is\s+unavailable)`),
		func(g []string) string { return "If " + g[0] + " fails: System handles the failure appropriately" },
	},
}

var keywordErrors = []struct{ keyword, errorCase string }{
	{"fail", "If the operation fails: System displays an error message and logs the failure"},
	{"error", "If an error occurs: System shows a user-friendly message and notifies support"},
	{"unavailable", "If the service is unavailable: System retries and provides status updates"},
	{"invalid", "If input is invalid: System highlights the errors and guides correction"},
}

// ExtractErrorCases mines error and exception paths ("if X fails, Y",
// "invalid X", timeouts) from requirements text. At most four are returned.
func ExtractErrorCases(text string) []string {
	var cases []string
	for _, p := range errorPatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			groups := make([]string, 0, len(m)-1)
			for _, g := range m[1:] {
				groups = append(groups, strings.TrimSpace(g))
			}
			if c := p.template(groups); len(c) < maxErrorCaseLen {
				cases = append(cases, c)
			}
		}
	}
	if len(cases) == 0 {
		lowered := strings.ToLower(text)
		for _, ke := range keywordErrors {
			if strings.Contains(lowered, ke.keyword) {
				cases = append(cases, ke.errorCase)
			}
		}
	}
	return dedup(cases, func(s string) string {
		s = strings.ToLower(s)
		if len(s) > errorDedupPrefix {
			return s[:errorDedupPrefix]
		}
		return s
	}, maxMined)
}

func dedup(values []string, key func(string) string, limit int) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		k := key(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out
}
