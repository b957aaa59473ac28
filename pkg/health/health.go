package health

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nmxmxh/peerdesk/pkg/json"
)

// Status represents the health status
type Status string

const (
	StatusUp   Status = "UP"
	StatusDown Status = "DOWN"
)

// HealthCheck represents a health check
type HealthCheck interface {
	Check(ctx context.Context) error
	Name() string
}

// HealthChecker manages health checks
type HealthChecker struct {
	checks  []HealthCheck
	mu      sync.RWMutex
	timeout time.Duration
}

// NewHealthChecker creates a new health checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks:  make([]HealthCheck, 0),
		timeout: 2 * time.Second,
	}
}

// Register adds a new health check
func (hc *HealthChecker) Register(check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks = append(hc.checks, check)
}

// Check performs all health checks
func (hc *HealthChecker) Check(ctx context.Context) map[string]error {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	results := make(map[string]error)
	for _, check := range hc.checks {
		results[check.Name()] = check.Check(ctx)
	}
	return results
}

type Report struct {
	Status Status            `json:"status"`
	Checks map[string]Status `json:"checks"`
}

// Handler serves the aggregated result: 200 when every check passes, 503
// otherwise.
func (hc *HealthChecker) Handler(log *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), hc.timeout)
		defer cancel()

		report := Report{Status: StatusUp, Checks: map[string]Status{}}
		for name, err := range hc.Check(ctx) {
			if err != nil {
				log.Warn("Health check failed", zap.String("check", name), zap.Error(err))
				report.Status = StatusDown
				report.Checks[name] = StatusDown
				continue
			}
			report.Checks[name] = StatusUp
		}
		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(report); err != nil {
			log.Error("Failed to write health response", zap.Error(err))
		}
	})
}

// DatabaseHealthCheck checks database connectivity
type DatabaseHealthCheck struct {
	name string
	db   *sql.DB
}

func NewDatabaseHealthCheck(name string, db *sql.DB) *DatabaseHealthCheck {
	return &DatabaseHealthCheck{name: name, db: db}
}

func (d *DatabaseHealthCheck) Check(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DatabaseHealthCheck) Name() string {
	return d.name
}

// RedisHealthCheck checks Redis connectivity
type RedisHealthCheck struct {
	name   string
	client redis.UniversalClient
}

func NewRedisHealthCheck(name string, client redis.UniversalClient) *RedisHealthCheck {
	return &RedisHealthCheck{name: name, client: client}
}

func (r *RedisHealthCheck) Check(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisHealthCheck) Name() string {
	return r.name
}
