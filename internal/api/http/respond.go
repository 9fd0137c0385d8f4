package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/accord-hub/accord/internal/apperrors"
)

type errorBody struct {
	Error           string `json:"error"`
	Message         string `json:"message"`
	NegotiationID   string `json:"negotiation_id,omitempty"`
	CurrentState    string `json:"current_state,omitempty"`
	RequestedAction string `json:"requested_action,omitempty"`
	Field           string `json:"field,omitempty"`
	RequestID       string `json:"request_id,omitempty"`
}

var statusByKind = map[apperrors.Kind]int{
	apperrors.KindValidation:    http.StatusUnprocessableEntity,
	apperrors.KindForbidden:     http.StatusForbidden,
	apperrors.KindNotFound:      http.StatusNotFound,
	apperrors.KindStateConflict: http.StatusConflict,
	apperrors.KindInternal:      http.StatusInternalServerError,
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, status, errorBody{
		Error:     code,
		Message:   message,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// respondAppError maps an engine error onto its HTTP status. Internal causes
// are logged and never written to the client.
func (s *Server) respondAppError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.From(err)
	reqID := middleware.GetReqID(r.Context())
	status, ok := statusByKind[appErr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status == http.StatusInternalServerError {
		s.logger.Error().
			Err(err).
			Str("request_id", reqID).
			Str("negotiation_id", appErr.NegotiationID).
			Str("user_id", callerFromContext(r.Context())).
			Msg("request failed")
		respondJSON(w, status, errorBody{
			Error:     string(apperrors.KindInternal),
			Message:   "internal error",
			RequestID: reqID,
		})
		return
	}
	respondJSON(w, status, errorBody{
		Error:           string(appErr.Kind),
		Message:         appErr.Message,
		NegotiationID:   appErr.NegotiationID,
		CurrentState:    appErr.CurrentState,
		RequestedAction: appErr.RequestedAction,
		Field:           appErr.Field,
		RequestID:       reqID,
	})
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, key))
	if err != nil {
		return uuid.Nil, apperrors.Validation(key, "invalid "+key)
	}
	return id, nil
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.Validation("body", err.Error())
	}
	return nil
}

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit < 0 {
		return 0, apperrors.Validation("limit", "limit must be a non-negative integer")
	}
	return limit, nil
}
