package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthCheckTimeout = 2 * time.Second

// Pinger is a dependency health probe (the session store implements it).
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles GET /health. It probes the registry (GET on
// RegistryHealthURL, when set) and the session store, and answers "ok" or
// "degraded".
type HealthHandler struct {
	RegistryHealthURL string
	Sessions          Pinger
	// short timeout so /health never hangs
	client *http.Client
}

// NewHealthHandler returns a health handler for the given dependencies.
func NewHealthHandler(registryHealthURL string, sessions Pinger) *HealthHandler {
	return &HealthHandler{
		RegistryHealthURL: registryHealthURL,
		Sessions:          sessions,
		client: &http.Client{
			Timeout: healthCheckTimeout,
		},
	}
}

// ServeHTTP implements http.Handler.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	deps := map[string]string{}
	allOK := true

	if h.RegistryHealthURL == "" {
		deps["registry"] = "memory"
	} else {
		deps["registry"] = h.probe(r.Context(), h.RegistryHealthURL)
		allOK = allOK && deps["registry"] == "ok"
	}

	if h.Sessions == nil {
		deps["sessions"] = "disabled"
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := h.Sessions.Ping(ctx)
		cancel()
		if err != nil {
			deps["sessions"] = "unreachable"
			allOK = false
		} else {
			deps["sessions"] = "ok"
		}
	}

	status := "ok"
	code := http.StatusOK
	if !allOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       status,
		"service":      "soho",
		"dependencies": deps,
	})
}

func (h *HealthHandler) probe(ctx context.Context, url string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "no_url"
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return "unreachable"
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return "ok"
	}
	return "unreachable"
}

// MetricsHandler returns Prometheus metrics (GET /metrics).
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
