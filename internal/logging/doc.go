// Package logging provides structured zap logging with OpenTelemetry
// correlation.
//
// Logger methods take a context and prepend its correlation fields: the
// trace and span ids of the active span, and the session, request and
// document set with WithSessionID, WithRequestID and WithDocument.
//
//	cfg, err := logging.FromSettings(fileCfg.Logging)
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	defer logger.Sync()
//
//	ctx = logging.WithSessionID(ctx, sessionID)
//	logger.Info(ctx, "document processed", zap.Int("stored", n))
//
// The console sink writes to stderr. Its encoder masks fields named like
// credentials, string values matching the redaction patterns, and, when a
// Scrubber is configured, any secret the scrubber detects in messages or
// string fields. The server
// wires the secret scrubber in.
//
// Sampling, when enabled, thins entries below Error; errors are never
// sampled. TraceLevel sits below Debug for prompt and completion bodies.
//
// Tests use NewTestLogger and its assertion helpers.
package logging
