package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/app-builder/internal/model"
)

func collect(t *testing.T, body string) []string {
	t.Helper()
	var got []string
	err := Consume(context.Background(), strings.NewReader(body), func(f string) error {
		got = append(got, f)
		return nil
	})
	require.NoError(t, err)
	return got
}

func TestConsume(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"basic", "data: Hello\n\ndata: world\n\ndata: [DONE]\n\n", []string{"Hello", "world"}},
		{"stops at done", "data: a\ndata: [DONE]\ndata: b\n", []string{"a"}},
		{"no done", "data: a\n\ndata: b", []string{"a", "b"}},
		{"crlf", "data: a\r\n\r\ndata: b\r\n", []string{"a", "b"}},
		{"trims payload", "data:   padded  \n", []string{"padded"}},
		{"skips empty", "data: \ndata:    \ndata: x\n", []string{"x"}},
		{"skips comments and named events", ": keep-alive\n\nevent: stage\ndata: s\nid: 4\n\ndata: t\n", []string{"t"}},
		{"message event is data", "event: message\ndata: m\n\n", []string{"m"}},
		{"named done is not the end", "event: result\ndata: [DONE]\n\ndata: after\n", []string{"after"}},
		{"prefix needs space", "data:tight\ndata: loose\n", []string{"loose"}},
		{"done with spaces", "data: a\ndata:  [DONE] \ndata: b\n", []string{"a"}},
		{"empty body", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, collect(t, tt.body))
		})
	}
}

func TestConsume_CallbackError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Consume(context.Background(), strings.NewReader("data: a\ndata: b\n"), func(string) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestConsume_ErrorEvent(t *testing.T) {
	var got []string
	body := "data: partial\n\nevent: error\ndata: {\"error\":\"internal_error\",\"message\":\"An internal error occurred\"}\n\ndata: [DONE]\n\n"
	err := Consume(context.Background(), strings.NewReader(body), func(f string) error {
		got = append(got, f)
		return nil
	})

	var se *StreamError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "internal_error", se.Type)
	assert.Equal(t, "An internal error occurred", se.Message)
	assert.Equal(t, []string{"partial"}, got)
}

func TestConsume_ErrorEventAtEOF(t *testing.T) {
	err := Consume(context.Background(), strings.NewReader("event: error\ndata: upstream down"), func(string) error { return nil })

	var se *StreamError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "upstream down", se.Message)
}

func TestConsume_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Consume(ctx, strings.NewReader("data: a\n"), func(string) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConsume_Incremental(t *testing.T) {
	pr, pw := io.Pipe()
	seen := make(chan string)
	errc := make(chan error, 1)
	go func() {
		errc <- Consume(context.Background(), pr, func(f string) error {
			seen <- f
			return nil
		})
	}()

	// The first fragment must be delivered before the writer sends more.
	_, _ = io.WriteString(pw, "data: first\n")
	assert.Equal(t, "first", <-seen)
	_, _ = io.WriteString(pw, "data: second\ndata: [DONE]\n")
	assert.Equal(t, "second", <-seen)
	pw.Close()
	assert.NoError(t, <-errc)
}

func TestAccumulator_OneMessageUpdatedInPlace(t *testing.T) {
	for _, n := range []int{1, 2, 5, 20} {
		t.Run(fmt.Sprintf("%d fragments", n), func(t *testing.T) {
			history := []model.ChatMessage{{Role: model.RoleUser, Content: "hi"}}
			conv := NewConversation(history)
			acc := NewAccumulator(conv)

			var body strings.Builder
			var want []string
			for i := 0; i < n; i++ {
				p := fmt.Sprintf("w%d", i)
				want = append(want, p)
				fmt.Fprintf(&body, "data:  %s \n\n", p)
			}
			body.WriteString("data: [DONE]\n\n")

			require.NoError(t, Consume(context.Background(), strings.NewReader(body.String()), acc.Add))

			msgs := conv.Messages()
			require.Len(t, msgs, 2)
			assert.Equal(t, model.RoleAssistant, msgs[1].Role)
			assert.Equal(t, strings.Join(want, " "), msgs[1].Content)
			assert.Equal(t, acc.Text(), msgs[1].Content)
		})
	}
}

func TestAccumulator_NoFragments(t *testing.T) {
	conv := NewConversation(nil)
	acc := NewAccumulator(conv)
	require.NoError(t, Consume(context.Background(), strings.NewReader("data: [DONE]\n"), acc.Add))
	assert.Equal(t, 0, conv.Len())
	assert.False(t, acc.Started())
}

func TestAccumulator_IntermediateStates(t *testing.T) {
	conv := NewConversation(nil)
	acc := NewAccumulator(conv)

	_ = acc.Add("Hello")
	assert.Equal(t, "Hello", conv.Messages()[0].Content)
	_ = acc.Add("there")
	assert.Equal(t, "Hello there", conv.Messages()[0].Content)
	assert.Equal(t, 1, conv.Len())
}

func TestAccumulator_SubwordFragmentsGainSpaces(t *testing.T) {
	conv := NewConversation(nil)
	acc := NewAccumulator(conv)

	for _, f := range []string{"Hel", "lo"} {
		require.NoError(t, acc.Add(f))
	}
	assert.Equal(t, "Hel lo", conv.Messages()[0].Content)
}

func TestNewConversation_CopiesHistory(t *testing.T) {
	history := []model.ChatMessage{{Role: model.RoleUser, Content: "a"}}
	conv := NewConversation(history)
	conv.Append(model.ChatMessage{Role: model.RoleUser, Content: "b"})
	assert.Len(t, history, 1)
	assert.Equal(t, 2, conv.Len())
}

func TestWriter_Frames(t *testing.T) {
	rr := httptest.NewRecorder()
	w, err := NewWriter(rr)
	require.NoError(t, err)

	require.NoError(t, w.Data("Hello"))
	require.NoError(t, w.Data("two\nlines"))
	require.NoError(t, w.Event("stage", map[string]int{"index": 1}))
	require.NoError(t, w.Close())

	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rr.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rr.Header().Get("X-Accel-Buffering"))
	assert.True(t, rr.Flushed)

	want := "data: Hello\n\n" +
		"data: two\ndata: lines\n\n" +
		"event: stage\ndata: {\"index\":1}\n\n" +
		"data: [DONE]\n\n"
	assert.Equal(t, want, rr.Body.String())

	// Named event data is consumed too; only the [DONE] sentinel stops it.
	got := collect(t, rr.Body.String())
	assert.Equal(t, []string{"Hello", "two", "lines", `{"index":1}`}, got)
}

type plainWriter struct{ http.ResponseWriter }

func TestNewWriter_RequiresFlusher(t *testing.T) {
	_, err := NewWriter(plainWriter{httptest.NewRecorder()})
	assert.ErrorIs(t, err, ErrStreamingUnsupported)
}
