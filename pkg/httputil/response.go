package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/utafrali/bullseye/pkg/errors"
	"github.com/utafrali/bullseye/pkg/logger"
	"github.com/utafrali/bullseye/pkg/validator"
)

// Response is the JSON envelope returned by every endpoint.
type Response struct {
	Success   bool                   `json:"success"`
	Data      any                    `json:"data,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Errors    []apperrors.FieldError `json:"errors,omitempty"`
	RequestID string                 `json:"requestId,omitempty"`
}

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess writes a success envelope.
func WriteSuccess(w http.ResponseWriter, status int, data any, message string) {
	WriteJSON(w, status, Response{Success: true, Data: data, Message: message})
}

// WriteError maps err onto a failure envelope. AppErrors keep their status,
// message and field errors; validation failures become 422; anything else is
// logged and reported as a generic 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	// Prefer the request-scoped logger if the RequestLogger middleware has been mounted.
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}
	requestID := logger.CorrelationIDFromContext(r.Context())

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		err = valErr.AppError()
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Status != http.StatusInternalServerError {
		WriteJSON(w, appErr.Status, Response{
			Message:   appErr.Message,
			Errors:    appErr.Fields,
			RequestID: requestID,
		})
		return
	}

	status := apperrors.HTTPStatus(err)
	message := "an internal error occurred"
	switch status {
	case http.StatusNotFound:
		message = "resource not found"
	case http.StatusConflict:
		message = "resource already exists"
	case http.StatusBadRequest:
		message = "invalid input"
	case http.StatusUnauthorized:
		message = "unauthorized"
	case http.StatusForbidden:
		message = "forbidden"
	case http.StatusUnprocessableEntity:
		message = "request validation failed"
	default:
		status = http.StatusInternalServerError
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, status, Response{Message: message, RequestID: requestID})
}
