// Package query implements LiveQueries: one method per Provider analytics
// endpoint, each validating its enumerated parameters before any network
// I/O and shaping the Provider's heterogeneous envelope into a uniform
// result type via the shaping package. It is grounded in the teacher's
// engine package (src/internal/engine/*.go), which similarly exposes one
// narrow computation per file over a shared client, generalized here from
// graph/cost analytics to the Provider's query surface.
package query

import (
	"net/url"

	"github.com/discohead/mixpanel-data/src/internal/transport"
	"github.com/discohead/mixpanel-data/src/pkg/types"
)

// LiveQueries wraps a Transport with one method per analytics endpoint.
type LiveQueries struct {
	tr *transport.Transport
}

// New constructs a LiveQueries bound to tr.
func New(tr *transport.Transport) *LiveQueries {
	return &LiveQueries{tr: tr}
}

func rejectUnlessOneOf(endpoint, field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return types.NewError(types.QueryError, endpoint, nil, "%s %q is not one of %v", field, value, allowed)
}

func baseParams(from, to string) url.Values {
	return url.Values{"from_date": {from}, "to_date": {to}}
}
