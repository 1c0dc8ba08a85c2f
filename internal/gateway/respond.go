package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/itesm-showroom/showroom/internal/conversation"
	"github.com/itesm-showroom/showroom/internal/extract"
	"github.com/itesm-showroom/showroom/internal/prompt"
	"github.com/itesm-showroom/showroom/internal/security"
	"github.com/itesm-showroom/showroom/internal/session"
)

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, kind string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Kind: kind})
}

// statusOf maps an error to its HTTP status, user-facing message and kind.
func statusOf(err error) (int, string, string) {
	var se *conversation.ServiceError
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &se):
		switch se.Kind {
		case conversation.KindRateLimit:
			return http.StatusTooManyRequests, se.Message, string(se.Kind)
		case conversation.KindTimeout:
			return http.StatusGatewayTimeout, se.Message, string(se.Kind)
		default:
			return http.StatusBadGateway, se.Message, string(se.Kind)
		}
	case errors.Is(err, conversation.ErrEmptyInput):
		return http.StatusBadRequest, "message is empty", "empty_input"
	case errors.Is(err, prompt.ErrUnknownTemplate):
		return http.StatusBadRequest, "unknown assistant", "invalid_argument"
	case errors.Is(err, security.ErrInvalidID):
		return http.StatusBadRequest, "invalid session id", "invalid_argument"
	case errors.Is(err, session.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid argument", "invalid_argument"
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "session not found", ""
	case errors.Is(err, security.ErrRateLimited):
		return http.StatusTooManyRequests, "too many requests", "rate_limit"
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "unsupported file type", ""
	case errors.Is(err, extract.ErrTooLarge), errors.Is(err, security.ErrMessageTooLarge), errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge, "request too large", ""
	case errors.Is(err, security.ErrInvalidJSON), errors.Is(err, security.ErrJSONTooDeep):
		return http.StatusBadRequest, "invalid request body", ""
	case errors.Is(err, errMissingFile):
		return http.StatusBadRequest, "missing file field", ""
	case errors.Is(err, errBadUpload):
		return http.StatusBadRequest, "malformed upload", ""
	default:
		return http.StatusInternalServerError, "internal error", ""
	}
}

// fail writes err as an ErrorResponse. Requests abandoned by the client get
// no body.
func (g *Gateway) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		g.logger.Debug("request canceled by client", "path", r.URL.Path)
		return
	}
	status, msg, kind := statusOf(err)
	if status == http.StatusInternalServerError {
		g.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, msg, kind)
}
