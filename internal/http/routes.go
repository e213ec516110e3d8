package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/target/marketpulse/internal/service"
)

// streamPath is excluded from compression so fragments reach clients unbuffered.
const streamPath = "/api/answers/stream"

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs   *service.JobService
	Stream *service.StreamChannel
	// Owner identifies the caller of every /api request.
	Owner OwnerAuthOptions
	// Ready are checked by /readyz; /healthz never touches dependencies.
	Ready []HealthCheck
	// ImmediateTimeout bounds POST /api/collections/immediate. Zero waits for
	// the job or the client, whichever ends first.
	ImmediateTimeout time.Duration
	// MaxBodyBytes caps request bodies on /api routes. Zero keeps the JSON default.
	MaxBodyBytes       int64
	DisableCompression bool
	CompressionLevel   int
	Logger             *slog.Logger
}

// NewRouter creates and configures the HTTP router with its middleware chain.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")
	if services.Owner.Logger == nil {
		services.Owner.Logger = logger
	}

	api := http.NewServeMux()
	registerJobRoutes(api, &JobHandlers{Svc: services.Jobs, ImmediateTimeout: services.ImmediateTimeout, Logger: logger})
	registerAnswerRoutes(api, &AnswerHandlers{Stream: services.Stream, Logger: logger})

	mux := http.NewServeMux()
	mux.Handle("/api/", RequireOwner(services.Owner)(MaxBody(services.MaxBodyBytes)(api)))
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readinessHandler(services.Ready))

	var h http.Handler = mux
	if !services.DisableCompression {
		h = Compression(CompressionConfig{
			Level:   services.CompressionLevel,
			MinSize: 1024,
			Logger:  logger,
			Skip:    func(r *http.Request) bool { return r.URL.Path == streamPath },
		})(h)
	}
	h = Logging(logger)(h)
	h = RequestID()(h)
	h = Recover(logger)(h)
	return h
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	mux.HandleFunc("POST /api/jobs", h.CreateJob)
	mux.HandleFunc("GET /api/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}/status", h.GetStatus)
	mux.HandleFunc("GET /api/jobs/{id}/result", h.GetResult)
	mux.HandleFunc("GET /api/jobs/{id}/download", h.Download)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", h.CancelJob)
	mux.HandleFunc("POST /api/collections/immediate", h.CollectNow)
	mux.HandleFunc("GET /api/reports/latest", h.LatestReport)
}

func registerAnswerRoutes(mux *http.ServeMux, h *AnswerHandlers) {
	mux.HandleFunc("POST /api/answers", h.Answer)
	mux.HandleFunc(http.MethodPost+" "+streamPath, h.StreamAnswer)
}
