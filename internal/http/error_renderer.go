package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/target/marketpulse/internal/domain/model"
	errs "github.com/target/marketpulse/internal/errors"
)

const msgInternal = "An internal error occurred. Please try again."

// ErrorResponse resolves an error into its status code and body. Messages of
// unexpected internal errors are replaced; stage failure messages are kept.
func ErrorResponse(err error) (int, ErrorBody) {
	appErr := errs.FromError(err)
	status := errs.HTTPStatus(appErr.Code)
	body := ErrorBody{Error: string(appErr.Code), Message: appErr.Error(), Field: appErr.Field}
	var stageErr *model.StageError
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway &&
		status != http.StatusGatewayTimeout && !errors.As(err, &stageErr) {
		body.Message = msgInternal
	}
	return status, body
}

// writeServiceError writes a service error as JSON and logs server-side failures.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, body := ErrorResponse(err)
	logServiceError(r, logger, status, err)
	WriteJSON(w, status, body)
}

// writePlainError is the text/plain variant used by streaming endpoints.
func writePlainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, body := ErrorResponse(err)
	logServiceError(r, logger, status, err)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Error-Code", body.Error)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body.Message + "\n"))
}

func logServiceError(r *http.Request, logger *slog.Logger, status int, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	if status < http.StatusInternalServerError {
		logger.DebugContext(r.Context(), "request rejected",
			"status", status, "path", r.URL.Path, "error", err)
		return
	}
	var appErr *errs.AppError
	code := ""
	if errors.As(err, &appErr) {
		code = string(appErr.Code)
	}
	logger.ErrorContext(r.Context(), "request failed",
		"status", status, "path", r.URL.Path, "code", code, "error", err,
		"request_id", RequestIDFromContext(r.Context()))
}
