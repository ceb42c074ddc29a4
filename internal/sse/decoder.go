// Package sse decodes Server-Sent-Events-style streams into content
// deltas. Only data: fields are honored; event:, id: and retry: lines
// are ignored. The decoder is transport-agnostic and reads from any
// io.Reader, making it testable without a network.
package sse

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DoneSentinel is the payload the backend sends to mark the logical end
// of content. It is suppressed, never delivered as a delta.
const DoneSentinel = "[DONE]"

// frameSep matches a blank line in either line-ending style. Frames may
// mix \n and \r\n, so both are tolerated on each side of the break.
var frameSep = regexp.MustCompile(`\r?\n\r?\n`)

// ErrTransport wraps read failures that occur mid-stream.
var ErrTransport = errors.New("stream transport error")

// Decoder turns an incrementally-readable byte stream into an ordered
// sequence of content deltas. Bytes are decoded stream-aware: a
// multi-byte UTF-8 code point split across two reads is withheld until
// its remaining bytes arrive.
type Decoder struct {
	r io.Reader

	// raw holds decoded-but-unframed text. The trailing element after a
	// frame split stays here because a frame may arrive partially.
	raw strings.Builder

	// pending are bytes that do not yet form a complete code point.
	pending []byte

	// payloads are decoded deltas not yet handed to the caller.
	payloads []string

	readBuf []byte
	eof     bool
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:       r,
		readBuf: make([]byte, 4096),
	}
}

// Next returns the next content delta. It blocks on the underlying
// reader until a complete frame with a non-empty, non-sentinel payload
// is available. When the stream ends, Next returns io.EOF; a half-formed
// trailing frame is discarded, not flushed as data. Mid-stream read
// failures are returned wrapped in ErrTransport.
func (d *Decoder) Next() (string, error) {
	for {
		if len(d.payloads) > 0 {
			p := d.payloads[0]
			d.payloads = d.payloads[1:]
			return p, nil
		}
		if d.eof {
			return "", io.EOF
		}

		n, err := d.r.Read(d.readBuf)
		if n > 0 {
			d.feed(d.readBuf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.eof = true
				continue
			}
			return "", fmt.Errorf("%w: %v", ErrTransport, err)
		}
	}
}

// feed appends newly arrived bytes, decodes the complete UTF-8 prefix,
// and extracts any complete frames from the accumulated text.
func (d *Decoder) feed(b []byte) {
	d.pending = append(d.pending, b...)
	complete := completeUTF8Prefix(d.pending)
	if complete == 0 {
		return
	}
	d.raw.Write(d.pending[:complete])
	d.pending = d.pending[complete:]

	text := d.raw.String()
	frames, rest := splitFrames(text)
	if len(frames) == 0 {
		return
	}
	d.raw.Reset()
	d.raw.WriteString(rest)

	for _, f := range frames {
		payload, ok := parseFrame(f)
		if !ok || payload == "" || payload == DoneSentinel {
			continue
		}
		d.payloads = append(d.payloads, payload)
	}
}

// completeUTF8Prefix returns the length of the longest prefix of b that
// ends on a code point boundary. At most the last three bytes can
// belong to an incomplete sequence.
func completeUTF8Prefix(b []byte) int {
	n := len(b)
	for i := 1; i <= 3 && i <= n; i++ {
		c := b[n-i]
		if c < utf8.RuneSelf {
			// ASCII byte: everything up to and including it is complete.
			return n - i + 1
		}
		if c&0xC0 == 0xC0 {
			// Leading byte of a multi-byte sequence.
			if i < expectedRuneLen(c) {
				return n - i
			}
			return n
		}
		// Continuation byte, keep looking backwards.
	}
	// No lead byte within reach: either the tail completes an earlier
	// sequence or the input is not valid UTF-8. Pass it through.
	return n
}

// expectedRuneLen returns the encoded length implied by a UTF-8 leading
// byte. Invalid leads map to 1 so they are never withheld.
func expectedRuneLen(c byte) int {
	switch {
	case c&0xE0 == 0xC0:
		return 2
	case c&0xF0 == 0xE0:
		return 3
	case c&0xF8 == 0xF0:
		return 4
	default:
		return 1
	}
}

// splitFrames splits accumulated text on blank lines. All but the last
// element are complete frames; the last element, possibly empty, is
// returned as the new buffer remainder.
func splitFrames(text string) (frames []string, rest string) {
	parts := frameSep.Split(text, -1)
	if len(parts) == 1 {
		return nil, text
	}
	return parts[:len(parts)-1], parts[len(parts)-1]
}

// parseFrame reconstructs the logical payload of one frame by joining
// its data lines with \n. A line is a data line if it starts with the
// literal prefix "data:"; one following space is stripped if present,
// so an explicitly empty "data:" line yields an empty string, which is
// preserved as an intentional blank line within a multi-line payload.
// Lines without the prefix are ignored rather than treated as fatal.
func parseFrame(frame string) (string, bool) {
	var dataLines []string
	for _, line := range strings.Split(frame, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		line = strings.TrimPrefix(line, "data:")
		if strings.HasPrefix(line, " ") {
			line = line[1:]
		}
		dataLines = append(dataLines, line)
	}
	if dataLines == nil {
		return "", false
	}
	return strings.Join(dataLines, "\n"), true
}
