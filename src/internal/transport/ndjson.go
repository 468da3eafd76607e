package transport

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/discohead/mixpanel-data/src/pkg/types"
)

const maxNDJSONLineBytes = 4 * 1024 * 1024

// NDJSONStream is a lazy, single-pass, finite iterator over a newline-
// delimited JSON response body. It never buffers the full response; each
// Next call decodes exactly one line. Open Question (1) in the spec is
// resolved defensively here: blank lines are skipped rather than treated as
// malformed records.
type NDJSONStream struct {
	resp    *http.Response
	scanner *bufio.Scanner
	closed  bool
}

func newNDJSONStream(resp *http.Response) *NDJSONStream {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxNDJSONLineBytes)
	return &NDJSONStream{resp: resp, scanner: scanner}
}

// Next returns the next decoded record. ok is false at end-of-stream; err is
// non-nil if either the network read or the JSON decode failed.
func (s *NDJSONStream) Next() (raw json.RawMessage, ok bool, err error) {
	if s.closed {
		return nil, false, nil
	}
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		decoded := make(json.RawMessage, len(line))
		copy(decoded, line)
		var probe interface{}
		if err := json.Unmarshal(decoded, &probe); err != nil {
			return nil, false, types.NewError(types.ProtocolError, "", err, "decoding NDJSON line")
		}
		return decoded, true, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, false, types.NewError(types.TransportError, "", err, "reading NDJSON stream")
	}
	return nil, false, nil
}

// Close releases the underlying HTTP connection. Safe to call before
// exhausting the stream (cancellation) or more than once.
func (s *NDJSONStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.resp.Body.Close()
}
