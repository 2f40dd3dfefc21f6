package httpapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/cellscope/internal/common"
	"github.com/goccy/go-json"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Response is the envelope of every JSON response.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeData writes a success envelope around data.
func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Response{Success: true, Data: data})
}

// writeError writes the error envelope and, when the kind has one, the
// WWW-Authenticate challenge.
func writeError(w http.ResponseWriter, e *APIError) {
	d := e.Describe()
	if d.Challenge != "" {
		w.Header().Set("WWW-Authenticate", d.Challenge)
	}
	writeJSON(w, d.Status, Response{Error: &ErrorBody{Code: d.Code, Message: d.Message}})
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched
// when allowEmpty is set.
func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return common.NewValidationError("Failed to read request body")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		if allowEmpty {
			return nil
		}
		return common.NewValidationError("Request body is required")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return common.NewValidationError("Invalid JSON body")
	}
	return nil
}
