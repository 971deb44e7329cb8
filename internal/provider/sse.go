package provider

import (
	"bufio"
	"bytes"
	"io"
)

const sseDonePayload = "[DONE]"

// sseLineReader incrementally extracts `data: ` payloads from a provider's
// SSE byte stream. Feeding it concatenated `data: <json>\n` lines must
// yield the same payload sequence regardless of how the underlying reads
// are chunked (spec §8 round-trip law): it retains any trailing partial
// line across reads rather than discarding it.
type sseLineReader struct {
	scanner *bufio.Scanner
}

// newSSELineReader wraps r, scanning by line while keeping partial final
// lines buffered until more data arrives (bufio.Scanner already does this
// for us as long as we don't call Scan again until the prior token is
// consumed, which is exactly how the iterator below uses it).
func newSSELineReader(r io.Reader) *sseLineReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseLineReader{scanner: s}
}

// next returns the next `data: ` payload with the prefix stripped, or
// ("", false, nil) at clean end-of-stream. Lines that are not `data: `
// payloads (blank keep-alive lines, SSE comments, event: lines) are
// skipped rather than surfaced, matching "ignores unparseable payloads"
// (spec §6).
func (s *sseLineReader) next() (payload string, ok bool, err error) {
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		line = bytes.TrimRight(line, "\r")
		if !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		return string(bytes.TrimPrefix(line, []byte("data: "))), true, nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", false, err
	}
	return "", false, nil
}

// isDone reports whether a decoded SSE payload is the terminal sentinel.
func isDone(payload string) bool {
	return payload == sseDonePayload
}
