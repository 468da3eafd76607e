// Package streaming implements the iterator-producing methods over
// Transport for bulk event and profile export: newline-delimited JSON
// decode with pass-through of raw records. Sequences are finite and
// single-pass; re-iterating requires a fresh call to the Provider.
package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/discohead/mixpanel-data/src/internal/transport"
	"github.com/discohead/mixpanel-data/src/pkg/types"
)

// EventStream is a finite, single-pass iterator over an event-export
// response. Whether to call NextRaw or NextNormalized is determined by the
// `raw` flag passed to StreamEvents — the two are not interchangeable mid-
// stream.
type EventStream struct {
	ndjson *transport.NDJSONStream
	raw    bool
}

// Raw reports whether this stream yields the Provider's untouched envelope.
func (s *EventStream) Raw() bool { return s.raw }

// NextRaw decodes the next record as the Provider's untouched envelope.
func (s *EventStream) NextRaw() (types.RawEvent, bool, error) {
	msg, ok, err := s.ndjson.Next()
	if err != nil || !ok {
		return types.RawEvent{}, ok, err
	}
	var raw types.RawEvent
	if err := json.Unmarshal(msg, &raw); err != nil {
		return types.RawEvent{}, false, types.NewError(types.ProtocolError, "/export", err, "decoding event record")
	}
	return raw, true, nil
}

// NextNormalized decodes the next record and applies event normalization:
// distinct_id, time, and $insert_id are lifted out of Properties.
func (s *EventStream) NextNormalized() (types.EventRecord, bool, error) {
	raw, ok, err := s.NextRaw()
	if err != nil || !ok {
		return types.EventRecord{}, ok, err
	}
	return types.NormalizeEvent(raw), true, nil
}

// Close releases the underlying HTTP connection.
func (s *EventStream) Close() error { return s.ndjson.Close() }

// EventFilter narrows an event export.
type EventFilter struct {
	Events []string
	Where  string
}

// StreamEvents streams the event-export endpoint for [from, to]. Dates are
// inclusive ISO calendar dates. The stream is finite and single-pass.
func StreamEvents(ctx context.Context, tr *transport.Transport, from, to string, filter EventFilter, raw bool) (*EventStream, error) {
	params := url.Values{
		"from_date": {from},
		"to_date":   {to},
	}
	if len(filter.Events) > 0 {
		encoded, err := json.Marshal(filter.Events)
		if err != nil {
			return nil, fmt.Errorf("encoding event list: %w", err)
		}
		params.Set("event", string(encoded))
	}
	if filter.Where != "" {
		params.Set("where", filter.Where)
	}

	ndjson, err := tr.StreamNDJSON(ctx, http.MethodGet, "/export", params)
	if err != nil {
		return nil, err
	}
	return &EventStream{ndjson: ndjson, raw: raw}, nil
}

// ProfileStream is a finite, single-pass iterator over profile pages. Pages
// are fetched and concatenated transparently as the caller drains the
// stream; the caller sees one flat sequence.
type ProfileStream struct {
	ctx       context.Context
	tr        *transport.Transport
	where     string
	raw       bool
	sessionID string
	page      int
	pageSize  int
	total     int64
	served    int64
	buffer    []types.RawProfile
	bufIdx    int
}

// StreamProfiles streams every profile in the project, optionally filtered
// by where, concatenating Provider pages transparently.
func StreamProfiles(ctx context.Context, tr *transport.Transport, where string, raw bool) (*ProfileStream, error) {
	s := &ProfileStream{ctx: ctx, tr: tr, where: where, raw: raw}
	if err := s.fetchPage(0, ""); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ProfileStream) fetchPage(page int, sessionID string) error {
	filters := url.Values{}
	if s.where != "" {
		filters.Set("where", s.where)
	}
	resp, err := s.tr.QueryEngagePage(s.ctx, page, sessionID, filters)
	if err != nil {
		return err
	}
	s.page = page
	s.pageSize = resp.PageSize
	s.total = resp.Total
	s.sessionID = resp.SessionID
	s.buffer = resp.Results
	s.bufIdx = 0
	return nil
}

// NextRaw decodes the next record as the Provider's untouched envelope.
func (s *ProfileStream) NextRaw() (types.RawProfile, bool, error) {
	for s.bufIdx >= len(s.buffer) {
		if int64(s.page+1)*int64(max(s.pageSize, 1)) >= s.total {
			return types.RawProfile{}, false, nil
		}
		if err := s.fetchPage(s.page+1, s.sessionID); err != nil {
			return types.RawProfile{}, false, err
		}
		if len(s.buffer) == 0 {
			return types.RawProfile{}, false, nil
		}
	}
	p := s.buffer[s.bufIdx]
	s.bufIdx++
	s.served++
	return p, true, nil
}

// NextNormalized decodes the next record and lifts $distinct_id/$last_seen.
func (s *ProfileStream) NextNormalized() (types.ProfileRecord, bool, error) {
	raw, ok, err := s.NextRaw()
	if err != nil || !ok {
		return types.ProfileRecord{}, ok, err
	}
	return types.NormalizeProfile(raw), true, nil
}

// Close is a no-op for profile streams (each page is a complete request);
// it exists so callers can treat EventStream and ProfileStream uniformly.
func (s *ProfileStream) Close() error { return nil }
