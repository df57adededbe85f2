// Package extraction turns requirements text into use case records.
//
// The Engine asks a completion backend for a JSON array of use cases and
// repairs whatever comes back. The parse stage reports its outcome as a
// Result: either parsed use cases or a Failure naming the stage that broke.
// On any Failure the Engine switches to the deterministic Fallback
// extractor, so Extract always returns a list and never an error.
//
// # Modes
//
//   - single-stage: one call targeting the estimated count
//   - batch: for large estimates on non-trivial text, calls of BatchSize
//     use cases each, where one failing batch does not stop the rest
//   - fallback: regex templates over actor/verb/object sentences
//
// Every retained record passes through enrichment; records whose title is
// shorter than MinTitleLength are dropped as garbage.
package extraction
