package api

import (
	"net/http"
	"strings"

	"github.com/comigor/taxassist-go/internal/chat"
	"github.com/comigor/taxassist-go/internal/logger"
)

const apologyText = "I'm sorry, I'm having trouble processing your request right now. Please try again."

// errorReply is the 500 body: an apology AIMessage plus the error.
type errorReply struct {
	Error string `json:"error"`
	chat.AIMessage
}

func apology(err error) errorReply {
	msg := chat.FallbackAIMessage(apologyText, "Error")
	return errorReply{Error: err.Error(), AIMessage: msg}
}

// Chat answers one completion request.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chat.CompletionRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		Error(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	reply, err := h.completer.Complete(r.Context(), req)
	if err != nil {
		logger.L.Error("completion failed", "session_id", req.SessionID, "error", err)
		JSON(w, http.StatusInternalServerError, apology(err))
		return
	}
	JSON(w, http.StatusOK, reply)
}
