package handler

import (
	"encoding/json"
	"net/http"

	"github.com/flocknet/messaging-platform/internal/chat"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeChatError maps a chat failure code to an HTTP status. Untyped errors
// surface as 500 without leaking internals.
func writeChatError(w http.ResponseWriter, err error) {
	code := chat.CodeOf(err)
	status := http.StatusInternalServerError
	message := "internal error"

	switch code {
	case chat.CodeNotAuthenticated:
		status = http.StatusUnauthorized
	case chat.CodeInvalidInput, chat.CodeSelfConversation:
		status = http.StatusBadRequest
	case chat.CodeNotFound:
		status = http.StatusNotFound
	case chat.CodePermissionDenied, chat.CodeMessagesNotAllowed, chat.CodeFollowRequired:
		status = http.StatusForbidden
	case chat.CodeLimitExceeded:
		status = http.StatusConflict
	case chat.CodeNetworkError, chat.CodeUploadFailed:
		status = http.StatusBadGateway
	}

	body := map[string]string{"error": message}
	if code != "" {
		if typed, ok := err.(*chat.Error); ok {
			body["error"] = typed.Message
		}
		body["code"] = string(code)
	}
	writeJSON(w, status, body)
}
