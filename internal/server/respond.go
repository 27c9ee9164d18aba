package server

import (
	"encoding/json"
	"net/http"

	"github.com/normgraph/normgraph/internal/types"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a coded error to an HTTP status and a JSON body.
func writeError(w http.ResponseWriter, err error) {
	code := types.CodeOf(err)
	writeJSON(w, statusFor(code), errorBody{Error: errorDetail{
		Code:    string(code),
		Message: err.Error(),
	}})
}

func statusFor(code types.ErrorCode) int {
	switch code {
	case types.QUERY_INVALID, types.DOC_UNSUPPORTED, types.DOC_LOAD_FAILED, types.INGEST_FAILED:
		return http.StatusBadRequest
	case types.AUTH_TOKEN_INVALID, types.AUTH_TOKEN_EXPIRED:
		return http.StatusUnauthorized
	case types.AUTH_FORBIDDEN:
		return http.StatusForbidden
	case types.SOURCE_NOT_FOUND, types.GRAPH_NODE_NOT_FOUND:
		return http.StatusNotFound
	case types.LLM_RATE_LIMITED:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
