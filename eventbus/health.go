package eventbus

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthPath is where HealthHandler is usually mounted.
const HealthPath = "/health/kafka"

// Pinger checks broker reachability. *ConnectionManager implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status    string `json:"status"`
	Brokers   string `json:"brokers,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// HealthHandler reports broker reachability: 200 with
// {"status":"ok","brokers":"connected"} when a metadata request succeeds,
// 503 with {"status":"error"} otherwise.
type HealthHandler struct {
	instrumentation

	pinger  Pinger
	timeout time.Duration
	now     func() time.Time
}

// NewHealthHandler probes pinger with the given per-request timeout.
func NewHealthHandler(pinger Pinger, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &HealthHandler{pinger: pinger, timeout: timeout, now: time.Now}
}

// WithLogger attaches a logger for failed probes.
func (h *HealthHandler) WithLogger(logger Logger) *HealthHandler {
	h.logger = logger
	return h
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := http.StatusOK
	body := healthResponse{
		Status:    "ok",
		Brokers:   "connected",
		Timestamp: h.now().UTC().Format(timestampLayout),
	}
	if err := h.pinger.Ping(ctx); err != nil {
		h.logWarn(ctx, "Kafka health check failed", err, nil)
		status = http.StatusServiceUnavailable
		body = healthResponse{Status: "error", Message: "Kafka cluster is unreachable"}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
