package sse

import (
	"strings"
	"sync"

	"github.com/sakif/app-builder/internal/model"
)

// Conversation is an ordered, append-only list of chat messages whose last
// assistant message may be rewritten while a reply streams in.
type Conversation struct {
	mu       sync.Mutex
	messages []model.ChatMessage
}

// NewConversation starts from a copy of history.
func NewConversation(history []model.ChatMessage) *Conversation {
	c := &Conversation{}
	c.messages = append(c.messages, history...)
	return c
}

// Append adds m and returns its index.
func (c *Conversation) Append(m model.ChatMessage) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
	return len(c.messages) - 1
}

// Messages returns a copy of the conversation.
func (c *Conversation) Messages() []model.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len reports the number of messages.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func (c *Conversation) setContent(i int, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages[i].Content = content
}

// Accumulator folds streamed fragments into one assistant message.
//
// The first fragment appends the message; later fragments rewrite that same
// message. Fragments are joined with a single space, so a reply streamed as
// word pieces loses its original intra-word boundaries.
type Accumulator struct {
	conv    *Conversation
	buf     strings.Builder
	index   int
	started bool
}

func NewAccumulator(conv *Conversation) *Accumulator {
	return &Accumulator{conv: conv, index: -1}
}

// Add appends fragment to the buffer and publishes it to the conversation.
// It has the signature Consume expects.
func (a *Accumulator) Add(fragment string) error {
	if a.buf.Len() > 0 {
		a.buf.WriteByte(' ')
	}
	a.buf.WriteString(fragment)

	if !a.started {
		a.index = a.conv.Append(model.ChatMessage{Role: model.RoleAssistant, Content: a.buf.String()})
		a.started = true
		return nil
	}
	a.conv.setContent(a.index, a.buf.String())
	return nil
}

// Text returns the accumulated reply.
func (a *Accumulator) Text() string {
	return a.buf.String()
}

// Started reports whether any fragment has been received.
func (a *Accumulator) Started() bool {
	return a.started
}
