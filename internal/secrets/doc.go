// Package secrets detects and redacts credentials in requirement text before
// it leaves the process for a hosted LLM or lands in logs.
//
// Two detectors run side by side: a compact set of regex rules that is always
// available, and optionally the gitleaks default ruleset with a TOML
// allowlist. Findings from both are merged and every matched span is replaced
// by the redaction string. Findings keep rule ids and positions, never the
// secret itself.
package secrets
