package query

import (
	"context"
	"net/http"
	"net/url"
)

const (
	listEventsEndpoint          = "/query/events/names"
	listEventPropertiesEndpoint = "/query/events/properties"
	listProfilePropertiesEndpoint = "/query/engage/properties"
)

// ListEvents returns every event name tracked in the project.
func (q *LiveQueries) ListEvents(ctx context.Context) ([]string, error) {
	var out []string
	if err := q.tr.RequestInto(ctx, http.MethodGet, listEventsEndpoint, url.Values{}, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListProperties returns the names of properties observed in the project.
// Known-good contract: called without an event name, this must enumerate
// profile (engage) properties rather than event properties — the two
// property namespaces are distinct and an earlier implementation queried
// the wrong one when event was omitted.
func (q *LiveQueries) ListProperties(ctx context.Context, event string) ([]string, error) {
	var out []string
	if event == "" {
		if err := q.tr.RequestInto(ctx, http.MethodGet, listProfilePropertiesEndpoint, url.Values{}, nil, &out); err != nil {
			return nil, err
		}
		return out, nil
	}

	params := url.Values{"event": {event}}
	if err := q.tr.RequestInto(ctx, http.MethodGet, listEventPropertiesEndpoint, params, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
