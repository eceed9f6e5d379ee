package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Checker probes the dependencies a ready instance needs.
type Checker interface {
	PingDB(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// Handler serves the liveness and readiness endpoints. Zero timeouts get
// per-dependency defaults.
type Handler struct {
	Checker      Checker
	DBTimeout    time.Duration
	RedisTimeout time.Duration
}

// Live answers as long as the process can serve HTTP at all.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready probes each dependency and reports per-dependency status. Any
// failing probe turns the whole response into a 503; the body still lists
// every dependency so operators can see which one is down.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Checker == nil {
		http.Error(w, "dependencies unavailable", http.StatusServiceUnavailable)
		return
	}

	probes := []struct {
		name    string
		ping    func(context.Context, time.Duration) error
		timeout time.Duration
	}{
		{"db", h.Checker.PingDB, orDefault(h.DBTimeout, 500*time.Millisecond)},
		{"redis", h.Checker.PingRedis, orDefault(h.RedisTimeout, 300*time.Millisecond)},
	}

	report := make(map[string]string, len(probes))
	healthy := true
	for _, p := range probes {
		if err := p.ping(r.Context(), p.timeout); err != nil {
			report[p.name] = err.Error()
			healthy = false
			continue
		}
		report[p.name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(report)
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
