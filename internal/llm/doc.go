// Package llm provides the text completion backends used by the extraction
// pipeline.
//
// Two variants satisfy Backend:
//   - Local: a text-generation-inference style HTTP server serving a local
//     instruct model. Prompts are rendered into one string by a prompt.Dialect.
//   - HostedChat: an OpenAI-compatible chat API reached through langchaingo.
//     The system and user parts are sent as separate messages.
//
// Both variants rate limit outgoing calls and retry transient failures with
// exponential backoff bounded by the request context. Callers treat every
// error as a routine failure and fall back; nothing here panics on bad
// model output.
package llm
