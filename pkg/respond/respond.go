package respond

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the error envelope understood by the todo client.
type ErrorBody struct {
	Error string `json:"error"`
}

func JSON(w http.ResponseWriter, r *http.Request, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data == nil {
		return
	}
	json.NewEncoder(w).Encode(data)
}

func Error(w http.ResponseWriter, r *http.Request, code int, message string) {
	JSON(w, r, code, ErrorBody{Error: message})
}
