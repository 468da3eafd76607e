package types

import (
	"time"

	"github.com/google/uuid"
)

// Properties is an open, dynamically-typed map. Values may be strings,
// numbers, booleans, lists, nested maps, or timestamps; it is never modeled
// as a statically typed struct because the Provider's property schema is
// caller-defined and unbounded.
type Properties map[string]interface{}

// RawEvent is exactly the Provider's export envelope: the event name plus a
// properties map that still carries distinct_id, time, $insert_id, and every
// event attribute.
type RawEvent struct {
	Event      string     `json:"event"`
	Properties Properties `json:"properties"`
}

// EventRecord is the normalized form: distinct_id, time, and $insert_id have
// been lifted out of Properties into named fields, and the open map excludes
// any key that was promoted.
type EventRecord struct {
	EventName  string
	EventTime  time.Time
	DistinctID string
	InsertID   string
	Properties Properties
}

// NormalizeEvent lifts distinct_id, time, and $insert_id out of a raw
// Provider envelope. time is epoch seconds; $insert_id is synthesized as a
// fresh UUIDv4 when absent. Idempotent: calling it again on an
// already-normalized RawEvent-shaped map (distinct_id/time/$insert_id already
// removed) is a no-op beyond re-synthesizing any still-missing $insert_id.
func NormalizeEvent(raw RawEvent) EventRecord {
	props := make(Properties, len(raw.Properties))
	for k, v := range raw.Properties {
		props[k] = v
	}

	distinctID, _ := props["distinct_id"].(string)
	delete(props, "distinct_id")

	eventTime := decodeEpochSeconds(props["time"])
	delete(props, "time")

	insertID, _ := props["$insert_id"].(string)
	delete(props, "$insert_id")
	if insertID == "" {
		insertID = uuid.NewString()
	}

	return EventRecord{
		EventName:  raw.Event,
		EventTime:  eventTime,
		DistinctID: distinctID,
		InsertID:   insertID,
		Properties: props,
	}
}

func decodeEpochSeconds(v interface{}) time.Time {
	switch n := v.(type) {
	case float64:
		return time.Unix(int64(n), 0).UTC()
	case int64:
		return time.Unix(n, 0).UTC()
	case int:
		return time.Unix(int64(n), 0).UTC()
	default:
		return time.Time{}
	}
}
