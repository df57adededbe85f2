package secrets

import (
	"fmt"
	"regexp"
)

// DefaultRedaction replaces every detected secret.
const DefaultRedaction = "[REDACTED]"

// Config configures the scrubber.
type Config struct {
	// Enabled controls whether scrubbing is active.
	Enabled bool `koanf:"enabled"`

	// Gitleaks adds the gitleaks default ruleset to the built-in rules.
	Gitleaks bool `koanf:"gitleaks"`

	// AllowlistPath is an optional gitleaks-style TOML allowlist. A missing
	// file is not an error.
	AllowlistPath string `koanf:"allowlist_path"`

	// RedactionString replaces detected secrets.
	RedactionString string `koanf:"redaction_string"`

	// Rules are the built-in regex rules. Empty means DefaultRules.
	Rules []Rule `koanf:"rules"`

	// AllowList holds patterns whose matches are never redacted.
	AllowList []string `koanf:"allow_list"`
}

// Rule is one regex detection rule.
type Rule struct {
	ID          string   `koanf:"id"`
	Description string   `koanf:"description"`
	Pattern     string   `koanf:"pattern"`
	Keywords    []string `koanf:"keywords"` // any must be present, case-insensitive
	Severity    string   `koanf:"severity"`
}

type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

// DefaultConfig enables the built-in rules and gitleaks.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		Gitleaks:        true,
		RedactionString: DefaultRedaction,
		Rules:           DefaultRules(),
	}
}

// compile validates the configuration and compiles its patterns.
func (c *Config) compile() ([]*compiledRule, []*regexp.Regexp, error) {
	rules := c.Rules
	if len(rules) == 0 {
		rules = DefaultRules()
	}

	compiled := make([]*compiledRule, 0, len(rules))
	for i, rule := range rules {
		if rule.ID == "" {
			return nil, nil, fmt.Errorf("rule %d: ID is required", i)
		}
		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil || rule.Pattern == "" {
			return nil, nil, fmt.Errorf("%w: rule %s: %q", ErrInvalidRegex, rule.ID, rule.Pattern)
		}
		cr := &compiledRule{Rule: rule, pattern: pattern}
		for _, kw := range rule.Keywords {
			cr.keywords = append(cr.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		compiled = append(compiled, cr)
	}

	allow := make([]*regexp.Regexp, 0, len(c.AllowList))
	for i, p := range c.AllowList {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: allow_list %d: %v", ErrInvalidRegex, i, err)
		}
		allow = append(allow, re)
	}
	return compiled, allow, nil
}
