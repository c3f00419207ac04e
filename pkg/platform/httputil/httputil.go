// Package httputil holds the JSON request/response helpers shared by handlers.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "chaperone/pkg/domain-errors"
)

const maxBodyBytes = 1 << 20

// Validatable is implemented by request DTOs that normalize and check themselves.
type Validatable interface {
	Validate() error
}

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// StatusFor maps a domain code to an HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput, dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeOutsideAllowedHours, dErrors.CodeLocationNotApproved:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeInvalidState, dErrors.CodeAlreadyResolved,
		dErrors.CodeConversationPaused, dErrors.CodeConversationTerminated:
		return http.StatusConflict
	case dErrors.CodeModerationBlocked:
		return http.StatusUnprocessableEntity
	case dErrors.CodeRateLimited, dErrors.CodeDailyLimitExceeded:
		return http.StatusTooManyRequests
	case dErrors.CodeModerationUnavailable, dErrors.CodeQueueOverflow:
		return http.StatusServiceUnavailable
	case dErrors.CodeTimeout, dErrors.CodeConnectionTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err as {"error": code, "error_description": message}.
// Internal and uncoded errors never leak their message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	if code == "" {
		code = dErrors.CodeInternal
	}
	status := StatusFor(code)
	body := errorBody{Error: string(code)}
	if status != http.StatusInternalServerError {
		body.Description = dErrors.Description(err)
	}
	WriteJSON(w, status, body)
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// Decode reads a JSON body of at most 1 MiB into a T.
func Decode[T any](r *http.Request) (*T, error) {
	var v T
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, dErrors.New(dErrors.CodeBadRequest, "request body is required")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid json body")
	}
	return &v, nil
}

// DecodeAndPrepare decodes and validates the body, writing the error response itself
// when either step fails. The boolean reports whether the handler should continue.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	req, err := Decode[T](r)
	if err == nil {
		err = PT(req).Validate()
	}
	if err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "rejected request body",
				"request_id", requestID,
				"error", err,
			)
		}
		WriteError(w, err)
		return nil, false
	}
	return req, true
}
