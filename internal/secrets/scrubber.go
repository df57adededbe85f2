package secrets

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	sourceBuiltin  = "builtin"
	sourceGitleaks = "gitleaks"
)

// Scrubber redacts secrets from text. It is safe for concurrent use.
type Scrubber struct {
	enabled   bool
	redaction string
	rules     []*compiledRule
	allow     []*regexp.Regexp
	gitleaks  *gitleaks
	logger    *zap.Logger
}

// redaction tracks a span to replace.
type redaction struct {
	start, end int
	ruleID     string
}

// New builds a Scrubber. A nil cfg means DefaultConfig.
func New(cfg *Config, logger *zap.Logger) (*Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rules, allow, err := cfg.compile()
	if err != nil {
		return nil, err
	}
	allowlist, err := LoadAllowlist(cfg.AllowlistPath)
	if err != nil {
		return nil, err
	}
	allow = append(allow, allowlist.matchers()...)

	s := &Scrubber{
		enabled:   cfg.Enabled,
		redaction: cfg.RedactionString,
		rules:     rules,
		allow:     allow,
		logger:    logger,
	}
	if s.redaction == "" {
		s.redaction = DefaultRedaction
	}
	if cfg.Enabled && cfg.Gitleaks {
		if s.gitleaks, err = newGitleaks(allowlist); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Enabled reports whether scrubbing is active.
func (s *Scrubber) Enabled() bool {
	return s != nil && s.enabled
}

// Scrub returns content with every detected secret replaced.
func (s *Scrubber) Scrub(content string) string {
	return s.Scan(content).Scrubbed
}

// Scan detects and redacts secrets in content.
func (s *Scrubber) Scan(content string) *Result {
	start := time.Now()
	result := &Result{
		Scrubbed: content,
		ByRule:   make(map[string]int),
	}
	if !s.Enabled() || content == "" {
		result.Duration = time.Since(start)
		return result
	}

	var spans []redaction
	for _, rule := range s.rules {
		if !rule.triggered(content) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			if s.allowed(content[m[0]:m[1]]) {
				continue
			}
			result.Findings = append(result.Findings, Finding{
				RuleID:      rule.ID,
				Description: rule.Description,
				Severity:    rule.Severity,
				Source:      sourceBuiltin,
				StartIndex:  m[0],
				EndIndex:    m[1],
				Line:        lineOf(content, m[0]),
			})
			spans = append(spans, redaction{start: m[0], end: m[1], ruleID: rule.ID})
		}
	}

	if s.gitleaks != nil {
		findings, more := s.gitleaks.scan(content)
		for i, f := range findings {
			if s.allowed(content[f.StartIndex:f.EndIndex]) {
				continue
			}
			result.Findings = append(result.Findings, f)
			spans = append(spans, more[i])
		}
	}

	for _, f := range result.Findings {
		result.ByRule[f.RuleID]++
	}
	result.TotalFindings = len(result.Findings)
	if len(spans) > 0 {
		result.Scrubbed = s.apply(content, spans)
		s.logger.Debug("secrets redacted",
			zap.Int("findings", result.TotalFindings),
			zap.Any("by_rule", result.ByRule))
	}
	result.Duration = time.Since(start)
	return result
}

func (s *Scrubber) apply(content string, spans []redaction) string {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := mergeRedactions(spans)

	var b strings.Builder
	b.Grow(len(content))
	last := 0
	for _, r := range merged {
		b.WriteString(content[last:r.start])
		b.WriteString(s.redaction)
		last = r.end
	}
	b.WriteString(content[last:])
	return b.String()
}

func (s *Scrubber) allowed(match string) bool {
	for _, re := range s.allow {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

// triggered reports whether a rule's keywords allow it to run.
func (r *compiledRule) triggered(content string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}

// mergeRedactions merges overlapping or adjacent spans sorted by start.
func mergeRedactions(spans []redaction) []redaction {
	if len(spans) == 0 {
		return spans
	}
	merged := []redaction{spans[0]}
	for _, curr := range spans[1:] {
		last := &merged[len(merged)-1]
		if curr.start <= last.end {
			if curr.end > last.end {
				last.end = curr.end
			}
			continue
		}
		merged = append(merged, curr)
	}
	return merged
}

func lineOf(content string, offset int) int {
	return strings.Count(content[:offset], "\n") + 1
}
