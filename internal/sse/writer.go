// Package sse implements both ends of the server-sent event streams used by
// chat, generation and deploy progress.
//
// Server side, Writer frames text as "data: <text>\n\n" and closes a stream
// with the "[DONE]" sentinel. Client side, Consume extracts the payload of
// each unnamed data frame, turns an "error" event into a *StreamError, and
// Accumulator folds the fragments into a single assistant message that is
// updated in place.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Done is the payload that terminates a stream.
const Done = "[DONE]"

// DefaultKeepAlive is the interval between keep-alive comments.
const DefaultKeepAlive = 15 * time.Second

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("sse: streaming unsupported")

// Writer writes SSE frames. It is safe for concurrent use so a keep-alive
// goroutine can share it with the producer.
type Writer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the event-stream headers and sends the 200 status.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &Writer{w: w, flusher: f}, nil
}

// Data writes one data frame. Multi-line text becomes one "data:" line per
// line, as the event-stream format requires.
func (s *Writer) Data(text string) error {
	return s.frame("", text)
}

// Event writes a named event whose data is v encoded as JSON.
func (s *Writer) Event(name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sse: encoding %s event: %w", name, err)
	}
	return s.frame(name, string(b))
}

// Close writes the terminating "[DONE]" frame.
func (s *Writer) Close() error {
	return s.frame("", Done)
}

// KeepAlive writes a comment frame every interval until stop is called.
func (s *Writer) KeepAlive(interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = DefaultKeepAlive
	}
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.mu.Lock()
				_, err := fmt.Fprint(s.w, ": keep-alive\n\n")
				if err == nil {
					s.flusher.Flush()
				}
				s.mu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (s *Writer) frame(event, data string) error {
	var b strings.Builder
	if event != "" {
		b.WriteString("event: ")
		b.WriteString(event)
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(strings.TrimSuffix(line, "\r"))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprint(s.w, b.String()); err != nil {
		return fmt.Errorf("sse: writing frame: %w", err)
	}
	s.flusher.Flush()
	return nil
}
