// Package embeddings turns use case text into vectors for duplicate detection.
//
// Four providers are available: FastEmbed (local ONNX, requires CGO), TEI
// (Text Embeddings Inference over HTTP), OpenAI-compatible endpoints through
// langchaingo, and a deterministic feature-hashing provider that needs no
// model at all. NewProvider selects one at runtime from ProviderConfig.
package embeddings
