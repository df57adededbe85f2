package secrets

import (
	"fmt"
	"strings"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
)

// gitleaks wraps the gitleaks default ruleset. The parsed config is built
// once; a detector accumulates findings, so each scan gets a fresh one.
type gitleaks struct {
	cfg gitleaksConfig.Config
}

func newGitleaks(allow *Allowlist) (*gitleaks, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	cfg := d.Config
	allow.applyTo(&cfg)
	return &gitleaks{cfg: cfg}, nil
}

// scan returns one redaction for every occurrence of every reported secret.
func (g *gitleaks) scan(content string) ([]Finding, []redaction) {
	var findings []Finding
	var spans []redaction
	seen := make(map[string]bool)

	for _, f := range detect.NewDetector(g.cfg).DetectString(content) {
		if f.Secret == "" || seen[f.Secret] {
			continue
		}
		seen[f.Secret] = true
		for from := 0; ; {
			i := strings.Index(content[from:], f.Secret)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(f.Secret)
			findings = append(findings, Finding{
				RuleID:      f.RuleID,
				Description: f.Description,
				Severity:    "high",
				Source:      sourceGitleaks,
				StartIndex:  start,
				EndIndex:    end,
				Line:        lineOf(content, start),
			})
			spans = append(spans, redaction{start: start, end: end, ruleID: f.RuleID})
			from = end
		}
	}
	return findings, spans
}
