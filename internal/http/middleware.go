package httpx

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/target/marketpulse/internal/adapters/oidc"
	domainauth "github.com/target/marketpulse/internal/domain/auth"
	"github.com/target/marketpulse/internal/ports"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID returns a middleware that assigns every request an id. A
// well-formed incoming id is reused so calls can be traced across services.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), id)))
		})
	}
}

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Int64("bytes", ww.written),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", RequestIDFromContext(r.Context())),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *respWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *respWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
						panic(err)
					}
					logger.ErrorContext(r.Context(), "panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// MaxBody limits request bodies to n bytes. n <= 0 disables the limit.
func MaxBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if n <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > n {
				WriteError(w, ErrorParams{
					Code:    http.StatusRequestEntityTooLarge,
					ErrCode: "body_too_large",
					Err:     errors.New("request body too large"),
				})
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}

// OwnerAuthMode selects how RequireOwner identifies the caller.
type OwnerAuthMode string

const (
	OwnerAuthBearer OwnerAuthMode = "bearer"
	OwnerAuthHeader OwnerAuthMode = "header"
	OwnerAuthFixed  OwnerAuthMode = "fixed"
)

// OwnerAuthOptions configures RequireOwner.
type OwnerAuthOptions struct {
	Mode OwnerAuthMode
	// Verifier checks bearer tokens (Mode=bearer) or supplies the fixed identity (Mode=fixed).
	Verifier ports.IdentityVerifier
	// Header names the trusted owner header (Mode=header).
	Header string
	Logger *slog.Logger
}

// RequireOwner returns a middleware that identifies the owner of every request.
// Unidentified requests get a 401 JSON response.
func RequireOwner(opts OwnerAuthOptions) func(http.Handler) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := identify(r, opts)
			if err != nil {
				opts.Logger.DebugContext(r.Context(), "owner identification failed", "error", err)
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "authentication_required",
					Err:     errors.New("authentication required"),
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(domainauth.WithIdentity(r.Context(), id)))
		})
	}
}

func identify(r *http.Request, opts OwnerAuthOptions) (domainauth.Identity, error) {
	var (
		id  domainauth.Identity
		err error
	)
	switch opts.Mode {
	case OwnerAuthHeader:
		id = domainauth.Identity{Owner: strings.TrimSpace(r.Header.Get(opts.Header))}
	case OwnerAuthFixed:
		if opts.Verifier == nil {
			return id, errors.New("no identity configured")
		}
		id, err = opts.Verifier.Verify(r.Context(), "")
	default:
		if opts.Verifier == nil {
			return id, errors.New("no verifier configured")
		}
		token, ok := oidc.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			return id, errors.New("missing bearer token")
		}
		id, err = opts.Verifier.Verify(r.Context(), token)
	}
	if err != nil {
		return id, err
	}
	if !id.Valid() {
		return id, errors.New("empty owner")
	}
	if id.Expired(time.Now()) {
		return id, errors.New("identity expired")
	}
	return id, nil
}

// CompressionConfig holds configuration for the compression middleware.
type CompressionConfig struct {
	Level   int // Compression level (1-9, where 6 is default)
	MinSize int // Minimum response size to compress (bytes, 0 = always compress)
	// Skip excludes requests from compression, such as streamed answers that
	// must reach the client fragment by fragment.
	Skip   func(r *http.Request) bool
	Logger *slog.Logger

	writers       *sync.Pool
	compressTypes map[string]bool
}

func defaultCompressibleTypes() map[string]bool {
	return map[string]bool{
		"text/plain":       true,
		"text/csv":         true,
		"text/markdown":    true,
		"text/html":        true,
		"application/json": true,
	}
}

// Compression returns a middleware that gzips responses when the client
// accepts gzip, the content type is compressible and the status has a body.
func Compression(cfg CompressionConfig) func(http.Handler) http.Handler {
	if cfg.Level == 0 {
		cfg.Level = gzip.DefaultCompression
	}
	if cfg.compressTypes == nil {
		cfg.compressTypes = defaultCompressibleTypes()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	level := cfg.Level
	cfg.writers = &sync.Pool{New: func() any {
		w, err := gzip.NewWriterLevel(io.Discard, level)
		if err != nil {
			return gzip.NewWriter(io.Discard)
		}
		return w
	}}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead || !acceptsGzip(r.Header.Get("Accept-Encoding")) ||
				(cfg.Skip != nil && cfg.Skip(r)) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Accept-Encoding")
			gzw := &gzipResponseWriter{ResponseWriter: w, ctx: r.Context(), config: &cfg}
			next.ServeHTTP(gzw, r)
			gzw.close()
		})
	}
}

// acceptsGzip checks if the client accepts gzip encoding, respecting q=0.
func acceptsGzip(acceptEncoding string) bool {
	for part := range strings.SplitSeq(acceptEncoding, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(name), "gzip") {
			continue
		}
		q := strings.ReplaceAll(strings.TrimSpace(params), " ", "")
		return q != "q=0" && q != "q=0.0" && q != "q=0.00" && q != "q=0.000"
	}
	return false
}

func isCompressibleContentType(contentType string, types map[string]bool) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return types[strings.ToLower(strings.TrimSpace(mediaType))]
}

type gzipResponseWriter struct {
	http.ResponseWriter
	ctx           context.Context
	config        *CompressionConfig
	gz            *gzip.Writer
	headerWritten bool
	pending       []byte
	status        int
}

func (w *gzipResponseWriter) WriteHeader(status int) {
	if w.headerWritten {
		return
	}
	w.headerWritten = true
	w.status = status

	if status < http.StatusOK || status == http.StatusNoContent || status == http.StatusNotModified ||
		w.Header().Get("Content-Encoding") != "" ||
		!isCompressibleContentType(w.Header().Get("Content-Type"), w.config.compressTypes) {
		w.ResponseWriter.WriteHeader(status)
		return
	}

	if w.config.MinSize > 0 {
		// Header is sent once MinSize bytes are buffered or the handler returns.
		w.pending = make([]byte, 0, w.config.MinSize)
		return
	}
	w.startGzip()
}

func (w *gzipResponseWriter) startGzip() {
	w.gz, _ = w.config.writers.Get().(*gzip.Writer)
	w.gz.Reset(w.ResponseWriter)
	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(w.status)
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	if !w.headerWritten {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", http.DetectContentType(b))
		}
		w.WriteHeader(http.StatusOK)
	}

	if w.pending != nil {
		w.pending = append(w.pending, b...)
		if len(w.pending) < w.config.MinSize {
			return len(b), nil
		}
		w.startGzip()
		buf := w.pending
		w.pending = nil
		if _, err := w.gz.Write(buf); err != nil {
			return 0, err
		}
		return len(b), nil
	}

	if w.gz != nil {
		return w.gz.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

// Flush implements http.Flusher.
func (w *gzipResponseWriter) Flush() {
	if w.gz != nil {
		if err := w.gz.Flush(); err != nil {
			w.config.Logger.ErrorContext(w.ctx, "flushing gzip writer failed", "error", err)
		}
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// close sends a small buffered body uncompressed or finishes the gzip stream.
func (w *gzipResponseWriter) close() {
	if w.pending != nil {
		w.ResponseWriter.WriteHeader(w.status)
		if _, err := w.ResponseWriter.Write(w.pending); err != nil {
			w.config.Logger.DebugContext(w.ctx, "writing buffered response failed", "error", err)
		}
		w.pending = nil
		return
	}
	if w.gz == nil {
		return
	}
	if err := w.gz.Close(); err != nil {
		w.config.Logger.ErrorContext(w.ctx, "closing gzip writer failed", "error", err)
	}
	w.gz.Reset(io.Discard)
	w.config.writers.Put(w.gz)
	w.gz = nil
}
