// Package sse decodes Server-Sent-Event byte streams into frame payloads.
// The reader tolerates chunk boundaries that split a frame and recognizes
// the `[DONE]` sentinel as normal stream termination.
package sse

import (
	"io"
	"strings"
)

const (
	// dataPrefix marks lines carrying a frame payload. Lines without it
	// (comments, event ids, blank keep-alives) are ignored.
	dataPrefix = "data: "

	// doneSentinel terminates the stream without an error.
	doneSentinel = "[DONE]"
)

// Reader yields SSE frame payloads from a byte-chunk source. Each call to
// the underlying io.Reader is treated as one chunk; frames split across
// chunks are reassembled before being emitted. Reader is not safe for
// concurrent use.
type Reader struct {
	src    io.Reader
	closer io.Closer

	buf     strings.Builder
	pending []string
	chunk   []byte
	done    bool
	srcEOF  bool
}

// NewReader creates a Reader over src. If src also implements io.Closer
// (an HTTP response body), Close releases it.
func NewReader(src io.Reader) *Reader {
	r := &Reader{
		src:   src,
		chunk: make([]byte, 4096),
	}
	if c, ok := src.(io.Closer); ok {
		r.closer = c
	}
	return r
}

// Next returns the next frame payload in arrival order. It returns io.EOF
// on normal termination, whether via the `[DONE]` sentinel or the source
// signaling end of stream. Any other error is a transport failure and is
// terminal. A dangling partial line at end of stream is discarded, never
// emitted as a half frame.
func (r *Reader) Next() (string, error) {
	for {
		if len(r.pending) > 0 {
			line := r.pending[0]
			r.pending = r.pending[1:]

			payload, ok := r.framePayload(line)
			if !ok {
				continue
			}
			if payload == doneSentinel {
				r.done = true
				return "", io.EOF
			}
			return payload, nil
		}

		if r.done {
			return "", io.EOF
		}
		if r.srcEOF {
			r.done = true
			return "", io.EOF
		}

		n, err := r.src.Read(r.chunk)
		if n > 0 {
			r.ingest(string(r.chunk[:n]))
		}
		if err != nil {
			if err == io.EOF {
				// Flush complete lines already buffered; the held-back
				// partial tail (no terminating newline) is dropped.
				r.srcEOF = true
				continue
			}
			r.done = true
			return "", err
		}
	}
}

// Close releases the underlying source, aborting an in-flight stream.
func (r *Reader) Close() error {
	r.done = true
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// ingest appends a decoded chunk to the rolling buffer and moves every
// complete line into the pending queue, holding back the last (possibly
// incomplete) segment as the new buffer seed.
func (r *Reader) ingest(chunk string) {
	text := r.buf.String() + chunk
	r.buf.Reset()

	segments := strings.Split(text, "\n")
	last := len(segments) - 1
	r.pending = append(r.pending, segments[:last]...)
	r.buf.WriteString(segments[last])
}

// framePayload strips the data prefix from a complete line. The second
// return is false for lines that carry no frame payload.
func (r *Reader) framePayload(line string) (string, bool) {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}
	return strings.TrimPrefix(line, dataPrefix), true
}
