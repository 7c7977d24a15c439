package domain

import (
	"strings"
	"time"
)

// ItemState tracks how far an item has progressed through the ingest pipeline.
type ItemState string

const (
	ItemStatePending   ItemState = "pending"
	ItemStateChunked   ItemState = "chunked"
	ItemStateEmbedded  ItemState = "embedded"
	ItemStateProcessed ItemState = "processed"
	ItemStateFailed    ItemState = "failed"
)

// IsValid checks if the item state is one of the pipeline states.
func (s ItemState) IsValid() bool {
	switch s {
	case ItemStatePending, ItemStateChunked, ItemStateEmbedded, ItemStateProcessed, ItemStateFailed:
		return true
	}
	return false
}

// Metadata keys written back onto knowledge items by the pipeline.
const (
	MetadataKeyProcessed   = "processed"
	MetadataKeyIngestState = "ingest_state"
)

// KnowledgeItem is a unit of raw input text owned by exactly one client.
// Items are created by external feeds; the pipeline only reads them and
// flips the processed flag in their metadata.
type KnowledgeItem struct {
	ID        string
	ClientID  string
	RawText   string
	Metadata  map[string]interface{}
	CreatedAt time.Time
}

// Processed reports whether the item's metadata marks it as processed.
// A missing or false flag means the item is pending.
func (k *KnowledgeItem) Processed() bool {
	if k.Metadata == nil {
		return false
	}
	switch v := k.Metadata[MetadataKeyProcessed].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	}
	return false
}

// State returns the persisted ingest state, defaulting to pending for
// items the pipeline has never touched.
func (k *KnowledgeItem) State() ItemState {
	if k.Processed() {
		return ItemStateProcessed
	}
	if k.Metadata != nil {
		if raw, ok := k.Metadata[MetadataKeyIngestState].(string); ok {
			state := ItemState(raw)
			if state.IsValid() {
				return state
			}
		}
	}
	return ItemStatePending
}

// Validate checks required fields on a new item.
func (k *KnowledgeItem) Validate() error {
	if k.ID == "" || k.ClientID == "" {
		return ErrMissingRequiredField
	}
	return nil
}
