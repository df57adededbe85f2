// Package normalize turns unreliable LLM completions into canonical use case
// records.
//
// CleanJSON is a best-effort repair pass over a raw completion: it removes
// markdown fences and chatter around the JSON root, rewrites Python literals,
// drops trailing commas and closes whatever a token limit cut off. Text that
// is already valid JSON after trimming is returned untouched, which makes the
// function idempotent on its own output.
//
// Flatten and the per-field coercers map any decoded JSON shape onto the
// UseCase schema. They never fail; unusable values become placeholders.
package normalize
