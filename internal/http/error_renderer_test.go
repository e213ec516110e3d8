package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/target/marketpulse/internal/domain/model"
	errs "github.com/target/marketpulse/internal/errors"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{
			name:       "job not found",
			err:        fmt.Errorf("get job x: %w", model.ErrJobNotFound),
			wantStatus: http.StatusNotFound,
			wantCode:   "job_not_found",
		},
		{
			name:       "submission rejected",
			err:        model.Rejectf("max_items must be between 2 and 200, got 1"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "submission_rejected",
		},
		{
			name:       "terminal job",
			err:        model.ErrJobTerminal,
			wantStatus: http.StatusConflict,
			wantCode:   "job_terminal",
		},
		{
			name:       "not cancellable",
			err:        fmt.Errorf("cancel reporting job: %w", model.ErrNotCancellable),
			wantStatus: http.StatusConflict,
			wantCode:   "not_cancellable",
		},
		{
			name:       "result not ready",
			err:        fmt.Errorf("job j is scraping: %w", model.ErrResultNotReady),
			wantStatus: http.StatusConflict,
			wantCode:   "result_not_ready",
		},
		{
			name:        "precondition",
			err:         model.Precondition("No product data found. Please run a collection first."),
			wantStatus:  http.StatusConflict,
			wantCode:    "missing_precondition",
			wantMessage: "No product data found. Please run a collection first.",
		},
		{
			name:       "stream abort",
			err:        fmt.Errorf("%w: eof", model.ErrStreamAbort),
			wantStatus: http.StatusBadGateway,
			wantCode:   "stream_abort",
		},
		{
			name:        "internal errors are not leaked",
			err:         errors.New("dial tcp 10.0.0.7:5432: connection refused"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "internal",
			wantMessage: msgInternal,
		},
		{
			name:        "stage failures keep their message",
			err:         model.Upstream("Error answering with the model", errors.New("503")),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "internal",
			wantMessage: "Error answering with the model: 503",
		},
		{
			name:       "app errors pass through",
			err:        errs.ValidationField("question", "question is required"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "validation",
		},
		{
			name:       "deadline",
			err:        &errs.AppError{Code: errs.ErrCodeTimeout, Message: "timed out", Cause: context.DeadlineExceeded},
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ErrorResponse(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, body.Error)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, body.Message)
			}
			assert.NotEmpty(t, body.Message)
		})
	}
}
