package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/target/marketpulse/internal/domain/model"
	"github.com/target/marketpulse/internal/service"
)

// AnswerHandlers serves question answering.
type AnswerHandlers struct {
	Stream *service.StreamChannel
	Logger *slog.Logger
}

type answerResponse struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// StreamAnswer handles POST /api/answers/stream. Fragments are written to a
// chunked text/plain body as they are produced. Failures before the first
// fragment get a non-2xx text/plain response; later failures end the body early.
func (h *AnswerHandlers) StreamAnswer(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var in model.QuestionInput
	if !DecodeJSON(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		writePlainError(w, r, h.Logger, err)
		return
	}

	ctx := r.Context()
	st, err := h.Stream.Open(ctx, owner, strings.TrimSpace(in.Question))
	if err != nil {
		writePlainError(w, r, h.Logger, err)
		return
	}
	defer st.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	if _, err := st.Forward(ctx, &flushWriter{w: w, rc: http.NewResponseController(w)}); err != nil {
		if errors.Is(err, model.ErrStreamAbort) {
			h.logger().ErrorContext(ctx, "answer stream aborted",
				"owner", owner, "error", err, "request_id", RequestIDFromContext(ctx))
			// Abort the chunked body so the client sees an incomplete response.
			panic(http.ErrAbortHandler)
		}
		h.logger().DebugContext(ctx, "answer stream ended early", "owner", owner, "error", err)
	}
}

// Answer handles POST /api/answers and returns the complete answer as JSON.
func (h *AnswerHandlers) Answer(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var in model.QuestionInput
	if !DecodeJSON(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	q := strings.TrimSpace(in.Question)
	answer, err := h.Stream.Collect(r.Context(), owner, q)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, answerResponse{Question: q, Answer: answer})
}

func (h *AnswerHandlers) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// flushWriter pushes every write to the client.
type flushWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func (f *flushWriter) Write(p []byte) (int, error) { return f.w.Write(p) }

func (f *flushWriter) Flush() error {
	err := f.rc.Flush()
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}
