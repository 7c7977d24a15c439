package service

import "strings"

// ChunkConfig controls how raw text is split into embedding chunks.
// MaxWords is a word-count budget, not a true token budget; the real
// token count is recorded separately on each chunk.
type ChunkConfig struct {
	MaxWords int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxWords: 350,
	}
}

// chunkWords splits text on whitespace word boundaries into chunks of at
// most MaxWords words each. Words are never split; a trailing partial
// chunk is kept; empty input yields zero chunks.
func chunkWords(text string, cfg ChunkConfig) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if cfg.MaxWords <= 0 {
		cfg.MaxWords = DefaultChunkConfig().MaxWords
	}

	chunks := make([]string, 0, (len(words)+cfg.MaxWords-1)/cfg.MaxWords)
	for start := 0; start < len(words); start += cfg.MaxWords {
		end := start + cfg.MaxWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}

	return chunks
}
