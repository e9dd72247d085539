// Package analytics collects search and feedback events, ships them to Kafka
// and aggregates them on the consuming side into the statistics served by the
// analytics service.
package analytics

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gesetzesinfo/lawsearch/pkg/kafka"
)

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventFeedback   EventType = "feedback"
)

type SearchEvent struct {
	Type      EventType `json:"type"`
	QueryID   string    `json:"query_id"`
	Query     string    `json:"query"`
	Terms     []string  `json:"terms"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

type FeedbackEvent struct {
	Type        EventType `json:"type"`
	QueryID     string    `json:"query_id"`
	ResultID    int       `json:"result_id"`
	ProvisionID int64     `json:"provision_id"`
	Rating      string    `json:"rating"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id,omitempty"`
}

// Decode inspects the "type" field of an encoded event and returns the
// matching concrete event.
func Decode(value []byte) (any, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(value, &head); err != nil {
		return nil, fmt.Errorf("decoding event type: %w", err)
	}
	return decodeAs(head.Type, value)
}

func decodeAs(t EventType, value []byte) (any, error) {
	switch t {
	case EventSearch, EventZeroResult:
		e, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			return nil, err
		}
		return e, nil
	case EventFeedback:
		e, err := kafka.DecodeJSON[FeedbackEvent](value)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
}

// envelope keys an event by query id so a search and the ratings of its
// results stay ordered on one partition.
func envelope(event any) kafka.Event {
	switch e := event.(type) {
	case SearchEvent:
		return kafka.Event{Key: e.QueryID, Type: string(e.Type), Value: e}
	case FeedbackEvent:
		return kafka.Event{Key: e.QueryID, Type: string(e.Type), Value: e}
	default:
		return kafka.Event{Key: "analytics", Value: event}
	}
}
