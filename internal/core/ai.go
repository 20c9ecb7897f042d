package core

import "context"

// Generator wraps a multimodal generation capability: given a binary document
// payload and an instruction, it returns the model's raw text response.
// Implementations must honour ctx cancellation; callers bound each attempt
// with a timeout.
type Generator interface {
	GenerateDocument(ctx context.Context, payload []byte, instruction string) (string, error)
}

// Embedder turns texts into fixed-dimension vectors. The same Embedder
// instance must be shared between indexing and query time; mixing embedding
// models silently degrades relevance with no error signal.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size the provider produces.
	// It must match the vector index schema.
	Dimensions() int
}
