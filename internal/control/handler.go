package control

import (
	"encoding/json"
	"net/http"

	"github.com/jmgilman/go/errors"
)

// maxMessageBytes bounds the request body of a control message.
const maxMessageBytes = 1 << 20

type Handler struct {
	Channel *Channel
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var msg Message
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&msg); err != nil {
		http.Error(w, "invalid message", http.StatusBadRequest)
		return
	}
	if msg.Type == "" {
		http.Error(w, "type required", http.StatusBadRequest)
		return
	}

	var (
		answer  any
		replied bool
	)
	err := h.Channel.Dispatch(r.Context(), msg, func(v any) {
		answer = v
		replied = true
	})
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	if !replied {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(answer)
}

func statusFor(err error) int {
	if errors.GetCode(err) == errors.CodeInvalidInput {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}
