package server

import (
	"ParaLedger/internal/apperr"
	"ParaLedger/internal/query"
	"encoding/json"
	"errors"
	"net/http"
)

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Kind    string `json:"kind"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// StatusForKind maps a failure kind to its HTTP status.
func StatusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindStateTransition, apperr.KindCapital, apperr.KindOracleProtocol:
		return http.StatusConflict
	case apperr.KindFunds:
		return http.StatusPaymentRequired
	case apperr.KindAccess:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err and returns the status written.
func (a *API) writeError(w http.ResponseWriter, err error) int {
	if errors.Is(err, query.ErrNoOperationLog) {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Kind: apperr.KindUnknown.String(), Message: err.Error()})
		return http.StatusServiceUnavailable
	}

	e, ok := apperr.As(err)
	if !ok {
		a.logger.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Kind: apperr.KindUnknown.String(), Message: "internal error"})
		return http.StatusInternalServerError
	}

	status := StatusForKind(e.Kind)
	writeJSON(w, status, errorBody{Kind: e.Kind.String(), Reason: string(e.Reason), Message: e.Msg})
	return status
}

func invalid(format string, args ...interface{}) error {
	return apperr.New(apperr.RequestInvalid, format, args...)
}
