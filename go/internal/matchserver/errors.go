package matchserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordduel/go/internal/wire"
)

// RuleError is a request the rules refuse. Code is one of the wire reason codes.
type RuleError struct {
	Code   string
	Detail string
}

func (e *RuleError) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func ruleErr(code, format string, args ...any) *RuleError {
	return &RuleError{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// Status maps a rule violation onto an HTTP status
func (e *RuleError) Status() int {
	switch e.Code {
	case wire.ReasonNotFound:
		return http.StatusNotFound
	case wire.ReasonUnauthorized:
		return http.StatusUnauthorized
	case wire.ReasonNotParticipant:
		return http.StatusForbidden
	case wire.ReasonInvalidInput:
		return http.StatusBadRequest
	case wire.ReasonInsufficientCoins:
		return http.StatusPaymentRequired
	default:
		return http.StatusConflict
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError renders err as an ErrorBody. Anything that is not a RuleError is
// logged and reported as an internal error.
func writeError(w http.ResponseWriter, err error) {
	var re *RuleError
	if errors.As(err, &re) {
		writeJSON(w, re.Status(), wire.ErrorBody{Error: re.Code, Detail: re.Detail})
		return
	}
	log.Error().Err(err).Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, wire.ErrorBody{Error: "internal"})
}
