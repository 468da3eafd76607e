package types

import "time"

// RawProfile is exactly the Provider's engage/export envelope.
type RawProfile struct {
	DistinctID string     `json:"$distinct_id"`
	Properties Properties `json:"$properties"`
}

// ProfileRecord is the normalized form: $distinct_id and $last_seen have
// been lifted out of Properties into named fields.
type ProfileRecord struct {
	DistinctID string
	LastSeen   *time.Time
	Properties Properties
}

// NormalizeProfile lifts $distinct_id and $last_seen out of a raw envelope.
func NormalizeProfile(raw RawProfile) ProfileRecord {
	props := make(Properties, len(raw.Properties))
	for k, v := range raw.Properties {
		props[k] = v
	}

	var lastSeen *time.Time
	if s, ok := props["$last_seen"].(string); ok && s != "" {
		if t, err := parseProviderTimestamp(s); err == nil {
			lastSeen = &t
		}
	}
	delete(props, "$last_seen")

	return ProfileRecord{
		DistinctID: raw.DistinctID,
		LastSeen:   lastSeen,
		Properties: props,
	}
}

func parseProviderTimestamp(s string) (time.Time, error) {
	layouts := []string{
		"2006-01-02T15:04:05",
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
	var firstErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
