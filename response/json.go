package response

import (
	"encoding/json"
	"net/http"
)

type envelope struct {
	Success  bool        `json:"success"`
	Kind     Kind        `json:"kind,omitempty"`
	Message  string      `json:"message,omitempty"`
	Messages []string    `json:"messages,omitempty"`
	Result   interface{} `json:"result"`
}

// WriteResponse will serialize result into the success envelope
func WriteResponse(w http.ResponseWriter, r *http.Request, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(envelope{
		Success: true,
		Result:  result,
	})
}

// WriteError will serialize the Error into the failure envelope.
// Internal errors are reported generically: detail stays in the logs.
func WriteError(w http.ResponseWriter, r *http.Request, e *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	json.NewEncoder(w).Encode(envelope{
		Success:  false,
		Kind:     e.Kind,
		Message:  e.Message,
		Messages: e.Messages,
		Result:   e.Result,
	})
}
