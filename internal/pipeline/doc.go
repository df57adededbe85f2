// Package pipeline ties extraction, duplicate detection, validation and the
// session store into the operations the HTTP API and CLI expose.
//
// A document request reads the session once (history, context, titles of
// stored use cases), extracts use cases directly or chunk by chunk, then
// validates each one and stores those that are not duplicates of a use case
// already in the session. Per-unit failures are logged and never fail the
// request.
package pipeline
