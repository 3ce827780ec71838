package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
)

type errorClass struct {
	status int
	code   string
	// public errors carry their message in details.
	public bool
}

// classify maps an error to its HTTP status. Order matters: an unknown
// provider wraps both ErrCredential and ErrValidation and is a 400.
func classify(err error) errorClass {
	switch {
	case errors.Is(err, contractx.ErrCalendarUnavailable):
		return errorClass{http.StatusServiceUnavailable, "calendar_unavailable", true}
	case errors.Is(err, contractx.ErrAmbiguousSideEffect):
		return errorClass{http.StatusGatewayTimeout, "ambiguous_side_effect", true}
	case errors.Is(err, contractx.ErrValidation):
		return errorClass{http.StatusBadRequest, "validation_error", true}
	case errors.Is(err, contractx.ErrAuth):
		return errorClass{http.StatusUnauthorized, "unauthorized", false}
	case errors.Is(err, contractx.ErrCredential):
		return errorClass{http.StatusUnauthorized, "missing_credential", true}
	case errors.Is(err, contractx.ErrModelInvoke):
		return errorClass{http.StatusBadGateway, "model_unavailable", false}
	default:
		return errorClass{http.StatusInternalServerError, "internal_error", false}
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	c := classify(err)

	ev := log.Ctx(r.Context()).Warn()
	if c.status >= http.StatusInternalServerError {
		ev = log.Ctx(r.Context()).Error()
	}
	ev.Err(err).Int("status", c.status).Msg("request failed")

	body := errorBody{Error: c.code}
	if c.public {
		body.Details = map[string]any{"message": err.Error()}
	}
	s.writeJSON(w, r, c.status, body)
}
