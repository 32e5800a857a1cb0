package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sakif/app-builder/internal/apperror"
	"github.com/sakif/app-builder/internal/model"
)

// fakeStreamer records the conversation it was given and replays deltas.
type fakeStreamer struct {
	deltas   []string
	err      error
	messages []model.ChatMessage
}

func (f *fakeStreamer) StreamChat(_ context.Context, _ string, messages []model.ChatMessage, fn func(string) error) error {
	f.messages = messages
	for _, d := range f.deltas {
		if err := fn(d); err != nil {
			return err
		}
	}
	return f.err
}

func collect(t *testing.T, svc *ChatService, message string, history []model.ChatMessage) ([]string, error) {
	t.Helper()
	var got []string
	err := svc.Stream(context.Background(), message, history, func(fragment string) error {
		got = append(got, fragment)
		return nil
	})
	return got, err
}

func TestChatStream_EchoWithoutModel(t *testing.T) {
	svc := NewChatService(nil, discardLogger())

	got, err := collect(t, svc, "  hello  there ", nil)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if strings.Join(got, "|") != "Echo:|hello|there" {
		t.Errorf("fragments = %q", got)
	}
}

func TestChatStream_EmptyMessage(t *testing.T) {
	svc := NewChatService(nil, discardLogger())
	if _, err := collect(t, svc, "   ", nil); !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("Stream() error = %v, want ErrValidation", err)
	}
}

func TestChatStream_Model(t *testing.T) {
	streamer := &fakeStreamer{deltas: []string{"Hi", "there"}}
	svc := NewChatService(streamer, discardLogger())

	history := []model.ChatMessage{{Role: "system", Content: "ignored"}}
	for i := 0; i < MaxHistory+5; i++ {
		history = append(history, model.ChatMessage{Role: model.RoleUser, Content: "old"})
	}

	got, err := collect(t, svc, "question", history)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if strings.Join(got, " ") != "Hi there" {
		t.Errorf("fragments = %q", got)
	}
	if len(streamer.messages) != MaxHistory+1 {
		t.Errorf("sent %d messages, want %d", len(streamer.messages), MaxHistory+1)
	}
	last := streamer.messages[len(streamer.messages)-1]
	if last.Role != model.RoleUser || last.Content != "question" {
		t.Errorf("last message = %+v", last)
	}
}

func TestChatStream_ModelError(t *testing.T) {
	svc := NewChatService(&fakeStreamer{err: errors.New("upstream down")}, discardLogger())
	if _, err := collect(t, svc, "q", nil); err == nil {
		t.Fatal("Stream() should surface model errors")
	}
}
