package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// writeJSON writes a JSON response to the response writer
func writeJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	return encoder.Encode(data)
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = writeJSON(w, body)
}

// writeError sends an error response
func writeError(w http.ResponseWriter, err *APIError) {
	respond(w, err.StatusCode, ErrorResponse{Error: string(err.Code), Message: err.Message})
}

// wantsMarkdown reports whether the client asked for text/markdown.
func wantsMarkdown(r *http.Request) bool {
	for _, accept := range r.Header.Values("Accept") {
		if strings.HasPrefix(accept, "text/markdown") {
			return true
		}
	}
	return r.URL.Query().Get("format") == "markdown"
}
