package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/lib/pq"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// ErrDegraded marks a dependency that answers but cannot fully serve
var ErrDegraded = errors.New("degraded")

// Probe checks one dependency. A failing required probe makes the service
// unhealthy; a failing optional probe degrades it.
type Probe struct {
	Name     string
	Required bool
	Check    func(ctx context.Context) error
}

// DatabaseProbe pings the search database and checks that the search table
// is installed. A missing table or an exhausted pool degrades the service.
func DatabaseProbe(db *sql.DB, table string) Probe {
	return Probe{
		Name:     "database",
		Required: true,
		Check: func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				return err
			}

			var installed bool
			if err := db.QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL`, pq.QuoteIdentifier(table)).Scan(&installed); err != nil {
				return fmt.Errorf("query failed: %w", err)
			}
			if !installed {
				return fmt.Errorf("%w: search table %s is not installed", ErrDegraded, table)
			}

			if stats := db.Stats(); stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
				return fmt.Errorf("%w: connection pool exhausted", ErrDegraded)
			}
			return nil
		},
	}
}

// RedisProbe pings the change notification broker
func RedisProbe(client *redis.Client) Probe {
	return Probe{
		Name: "redis",
		Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}

// HealthStatus is the readiness report
type HealthStatus struct {
	Status       string                      `json:"status"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus is the outcome of one probe
type DependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// HealthChecker serves liveness and readiness from a set of probes
type HealthChecker struct {
	version string
	probes  []Probe
}

// NewHealthChecker creates a checker running probes in order
func NewHealthChecker(version string, probes ...Probe) *HealthChecker {
	return &HealthChecker{version: version, probes: probes}
}

// Check runs every probe and folds the results into one status
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(h.probes)),
	}

	for _, p := range h.probes {
		start := time.Now()
		err := p.Check(ctx)
		dep := DependencyStatus{Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds()}

		switch {
		case err == nil:
		case errors.Is(err, ErrDegraded) || !p.Required:
			dep.Status = StatusUnhealthy
			if errors.Is(err, ErrDegraded) {
				dep.Status = StatusDegraded
			}
			dep.Message = err.Error()
			if status.Status == StatusHealthy {
				status.Status = StatusDegraded
			}
		default:
			dep.Status = StatusUnhealthy
			dep.Message = err.Error()
			status.Status = StatusUnhealthy
		}
		status.Dependencies[p.Name] = dep
	}
	return status
}

func (h *HealthChecker) live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthStatus{Status: StatusHealthy, Version: h.version})
}

func (h *HealthChecker) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)
	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

// RegisterRoutes mounts /health, /health/live and /health/ready
func (h *HealthChecker) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.ready).Methods(http.MethodGet)
	router.HandleFunc("/health/live", h.live).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", h.ready).Methods(http.MethodGet)
}
