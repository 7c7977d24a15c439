package domain

import "time"

// KnowledgeChunk is one token-budgeted slice of an item's raw text.
// Chunk indices are zero-based and contiguous per item; concatenating
// chunks in index order reconstructs the item's word sequence.
type KnowledgeChunk struct {
	ID         string
	ItemID     string
	ClientID   string
	ChunkIndex int
	Content    string
	TokenCount int
	CreatedAt  time.Time
}

// KnowledgeEmbedding is the vector representation of exactly one chunk.
type KnowledgeEmbedding struct {
	ID        string
	ChunkID   string
	ClientID  string
	Vector    []float32
	CreatedAt time.Time
}
