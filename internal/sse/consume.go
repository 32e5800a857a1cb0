package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	dataPrefix  = "data: "
	eventPrefix = "event:"

	// ErrorEvent is the event name a server uses to report a failed stream.
	ErrorEvent = "error"
)

// StreamError is returned by Consume when the stream carries an "error"
// event. Type and Message come from the event's JSON payload when it has
// one; otherwise Message holds the raw payload.
type StreamError struct {
	Type    string `json:"error"`
	Message string `json:"message"`
}

func (e *StreamError) Error() string {
	if e.Message == "" {
		return "sse: stream failed"
	}
	return "stream failed: " + e.Message
}

func newStreamError(payload string) *StreamError {
	var se StreamError
	if err := json.Unmarshal([]byte(payload), &se); err != nil || (se.Type == "" && se.Message == "") {
		return &StreamError{Message: payload}
	}
	return &se
}

// Consume reads an event stream from body and calls fn with the trimmed
// payload of every "data: " line of unnamed (or "message") events. It
// returns nil at end of stream or at the first "[DONE]" payload, whichever
// comes first. Empty payloads, comments and other named events are skipped.
// An "error" event stops consumption with a *StreamError.
//
// Lines are split as bytes arrive, so fn sees fragments while the body is
// still streaming. An error returned by fn stops consumption and is returned.
func Consume(ctx context.Context, body io.Reader, fn func(fragment string) error) error {
	r := bufio.NewReader(body)

	// event is the name of the frame being read; it resets on a blank line.
	var (
		event     string
		errorData []string
	)
	endFrame := func() error {
		if event == ErrorEvent {
			return newStreamError(strings.Join(errorData, "\n"))
		}
		event, errorData = "", nil
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, readErr := r.ReadString('\n')
		if line != "" {
			line = strings.TrimRight(line, "\r\n")
			switch {
			case line == "":
				if err := endFrame(); err != nil {
					return err
				}
			case strings.HasPrefix(line, eventPrefix):
				event = strings.TrimSpace(line[len(eventPrefix):])
			case strings.HasPrefix(line, dataPrefix):
				payload := strings.TrimSpace(line[len(dataPrefix):])
				switch event {
				case "", "message":
					if payload == Done {
						return nil
					}
					if payload != "" {
						if err := fn(payload); err != nil {
							return err
						}
					}
				case ErrorEvent:
					errorData = append(errorData, payload)
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return endFrame()
			}
			return fmt.Errorf("sse: reading stream: %w", readErr)
		}
	}
}
