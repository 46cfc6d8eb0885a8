package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hairbuy/intake/internal/intake"
	"github.com/hairbuy/intake/internal/pricing"
	"github.com/hairbuy/intake/internal/store"
)

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFieldErrors(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Fields: fields})
}

// writeError maps domain errors onto status codes. Unexpected errors are
// logged and answered with a generic message.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		fields     intake.ValidationErrors
		transition *store.TransitionError
		badInput   *pricing.InvalidInputError
	)
	switch {
	case errors.As(err, &fields):
		writeFieldErrors(w, fields)
	case errors.As(err, &badInput):
		writeFieldErrors(w, map[string]string{badInput.Field: "Некорректное значение"})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.As(err, &transition):
		writeJSON(w, http.StatusConflict, errorBody{
			Error: "status cannot change from " + string(transition.From) + " to " + string(transition.To),
		})
	case errors.Is(err, store.ErrInvalidStatus):
		writeFieldErrors(w, map[string]string{"status": "Неизвестный статус"})
	case errors.Is(err, errBadRequest):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

var errBadRequest = errors.New("bad request")
