// Package vectorstore selects and builds the vector index used for duplicate
// detection.
//
// Backends:
//
//   - sqlite (default): scans the embeddings kept next to each use case by
//     the session store. Nothing extra to run.
//   - memory: process-local, lost on restart. Useful for one-shot CLI runs.
//   - chromem: an embedded chromem-go database persisted to a directory.
//   - qdrant: an external Qdrant server reached over gRPC.
//
// Every backend implements dedup.Index and scopes vectors by session id.
package vectorstore
