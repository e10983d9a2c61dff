package domain

import "context"

// Embedding represents a numerical vector representation of an image.
// A nil Embedding means the vector is absent.
type Embedding []float32

// ImageEmbedder defines the interface for turning a binary resource into an embedding.
type ImageEmbedder interface {
	// EmbedImage fetches the resource at locator and returns its embedding.
	EmbedImage(ctx context.Context, locator string) (Embedding, error)
}

// TextEmbedder embeds free text into the same vector space as images.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) (Embedding, error)
}
