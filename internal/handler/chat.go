package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/app-builder/internal/apperror"
	"github.com/sakif/app-builder/internal/model"
	"github.com/sakif/app-builder/internal/service"
	"github.com/sakif/app-builder/internal/sse"
)

// ChatHandler streams free-form assistant replies.
type ChatHandler struct {
	chat   *service.ChatService
	logger *slog.Logger
}

func NewChatHandler(chat *service.ChatService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, logger: logger}
}

type chatMessageRequest struct {
	Message string              `json:"message"`
	History []model.ChatMessage `json:"history"`
}

// HandleMessage streams the reply as one "data: <fragment>" frame per
// fragment and ends with "data: [DONE]". Validation errors are answered
// with JSON before the stream opens.
//
// HTTP: POST /api/chat/message
func (h *ChatHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Message == "" {
		writeError(w, apperror.ValidationFailed("message", "message is required"))
		return
	}

	stream, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, err)
		return
	}
	stop := stream.KeepAlive(sse.DefaultKeepAlive)
	defer stop()

	err = h.chat.Stream(r.Context(), req.Message, req.History, stream.Data)
	if err != nil && !errors.Is(err, r.Context().Err()) {
		logError(h.logger, r, "chat stream failed", err)
		_ = stream.Event(sse.ErrorEvent, errorEvent(err))
	}
	stop()
	_ = stream.Close()
}
