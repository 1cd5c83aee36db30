// Package stream implements the plain-text streaming wire format for
// chat responses: answer text followed by a terminal conversation-id
// marker on its own line.
package stream

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// MarkerPrefix introduces the terminal line carrying the conversation
// id. It is written after the full answer so clients can continue the
// conversation on the next request.
const MarkerPrefix = "\n__CID__:"

// WriteMarker appends the terminal conversation-id marker to w.
func WriteMarker(w io.Writer, conversationID uuid.UUID) error {
	if _, err := fmt.Fprintf(w, "%s%s", MarkerPrefix, conversationID); err != nil {
		return fmt.Errorf("writing conversation marker: %w", err)
	}
	return nil
}

// Scanner separates visible answer text from the trailing marker in a
// chunked stream. Chunk boundaries are arbitrary: the marker may arrive
// split across any number of chunks, so the scanner holds back the
// smallest suffix of emitted text that could still be a marker prefix.
//
// Feed each received chunk and render the returned text immediately.
// After the stream ends, call Finish to recover the conversation id and
// any held-back text that turned out not to be a marker.
type Scanner struct {
	tail strings.Builder
}

// Feed consumes the next chunk and returns the text safe to display.
func (s *Scanner) Feed(chunk string) string {
	if chunk == "" {
		return ""
	}
	buf := s.tail.String() + chunk
	s.tail.Reset()

	// Once the full prefix has been seen, everything after it is the
	// conversation id. Hold it all back until Finish.
	if i := strings.Index(buf, MarkerPrefix); i >= 0 {
		s.tail.WriteString(buf[i:])
		return buf[:i]
	}

	// No complete prefix yet. Hold back the longest suffix of buf that
	// is a proper prefix of the marker.
	hold := overlap(buf, MarkerPrefix)
	s.tail.WriteString(buf[len(buf)-hold:])
	return buf[:len(buf)-hold]
}

// Finish reports the parsed conversation id and any residual text that
// was held back but did not form a marker. ok is false when the stream
// ended without a complete, well-formed marker.
func (s *Scanner) Finish() (id uuid.UUID, residual string, ok bool) {
	buf := s.tail.String()
	s.tail.Reset()

	i := strings.Index(buf, MarkerPrefix)
	if i < 0 {
		return uuid.Nil, buf, false
	}
	raw := buf[i+len(MarkerPrefix):]
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, buf, false
	}
	return parsed, buf[:i], true
}

// overlap returns the length of the longest suffix of s that is a
// proper prefix of marker.
func overlap(s, marker string) int {
	max := len(marker) - 1
	if len(s) < max {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(s, marker[:n]) {
			return n
		}
	}
	return 0
}
