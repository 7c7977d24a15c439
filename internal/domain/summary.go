package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Sentiment is the model-assessed overall sentiment for a client.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// IsValid checks if the sentiment is one of the enumerated values.
func (s Sentiment) IsValid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	}
	return false
}

// ParseSentiment maps free-form model output onto the sentiment enum.
// Anything outside the three known values is treated as absent.
func ParseSentiment(raw string) Sentiment {
	s := Sentiment(strings.ToLower(strings.TrimSpace(raw)))
	if s.IsValid() {
		return s
	}
	return ""
}

// ClientSummary is the single current structured digest for a client.
// It is replaced wholesale on every regeneration; per-field updates
// never happen.
type ClientSummary struct {
	ClientID      string
	ShortSummary  string
	LongSummary   string
	KeyInsights   []string
	NextActions   []string
	Risks         []string
	Opportunities []string
	Sentiment     Sentiment
	PriorityScore int // 1-10, 0 when the model returned none
	UpdatedAt     time.Time
}

// SummaryVersion is an immutable snapshot of a summary payload, kept as
// the append-only audit trail the overwritten ClientSummary cannot provide.
type SummaryVersion struct {
	ID        string
	ClientID  string
	Snapshot  json.RawMessage
	CreatedAt time.Time
}

// summaryPayload mirrors the JSON object returned by the summarization
// model. Field names are case-sensitive and include spaces.
type summaryPayload struct {
	ShortSummary  string          `json:"Short Summary"`
	LongSummary   string          `json:"Long Summary"`
	KeyInsights   []string        `json:"Key Insights"`
	NextActions   []string        `json:"Next Actions"`
	Risks         []string        `json:"Risks"`
	Opportunities []string        `json:"Opportunities"`
	Sentiment     string          `json:"Sentiment"`
	PriorityScore json.RawMessage `json:"Priority Score"`
}

// ParseSummaryPayload parses a strict JSON object into a ClientSummary
// for the given client. Missing fields fall back to empty values rather
// than failing; the priority score is clamped to 1-10 and an invalid
// sentiment is dropped.
func ParseSummaryPayload(clientID string, raw []byte) (*ClientSummary, error) {
	var payload summaryPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, NewDomainErrorWithCause(ErrCodeSummarizationFailed, "summary payload is not a JSON object", err)
	}

	summary := &ClientSummary{
		ClientID:      clientID,
		ShortSummary:  payload.ShortSummary,
		LongSummary:   payload.LongSummary,
		KeyInsights:   emptyIfNil(payload.KeyInsights),
		NextActions:   emptyIfNil(payload.NextActions),
		Risks:         emptyIfNil(payload.Risks),
		Opportunities: emptyIfNil(payload.Opportunities),
		Sentiment:     ParseSentiment(payload.Sentiment),
		PriorityScore: clampPriority(payload.PriorityScore),
	}
	return summary, nil
}

// Snapshot serializes the normalized summary for the version history.
func (s *ClientSummary) Snapshot() (json.RawMessage, error) {
	payload := summaryPayload{
		ShortSummary:  s.ShortSummary,
		LongSummary:   s.LongSummary,
		KeyInsights:   s.KeyInsights,
		NextActions:   s.NextActions,
		Risks:         s.Risks,
		Opportunities: s.Opportunities,
		Sentiment:     string(s.Sentiment),
	}
	if s.PriorityScore > 0 {
		score, err := json.Marshal(s.PriorityScore)
		if err != nil {
			return nil, err
		}
		payload.PriorityScore = score
	}
	return json.Marshal(payload)
}

func emptyIfNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// clampPriority accepts either a JSON number or a numeric string (models
// return both), truncates fractional scores, and clamps the result to the
// 1-10 range. Unparseable values count as absent.
func clampPriority(raw json.RawMessage) int {
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err != nil {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0
		}
		if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &num); err != nil {
			return 0
		}
	}
	score := int(num)
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}
