// Package health reports readiness: the database answers and the room policy still evaluates.
// The result drives the standard gRPC health service and the HTTP /healthz probe.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	// ServiceName is the gRPC health service name for the meeting backend.
	ServiceName = "emeet.Meetings"
	// DefaultInterval is how often Watch re-evaluates readiness.
	DefaultInterval = 10 * time.Second

	checkTimeout = 2 * time.Second
)

// Pinger checks database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the room policy evaluates (e.g. the OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Checker combines the readiness checks. Nil checks are skipped.
type Checker struct {
	pinger Pinger
	policy PolicyChecker
}

// NewChecker returns a Checker. pinger is nil when running on the in-memory store.
func NewChecker(pinger Pinger, policy PolicyChecker) *Checker {
	return &Checker{pinger: pinger, policy: policy}
}

// Check returns nil when every configured dependency is healthy.
func (c *Checker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	var errs []error
	if c.pinger != nil {
		if err := c.pinger.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("policy: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Status maps Check to a gRPC serving status.
func (c *Checker) Status(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	if err := c.Check(ctx); err != nil {
		log.Printf("health: not serving: %v", err)
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

// Watch keeps srv's status current for the overall server ("") and ServiceName until ctx is
// done, then marks everything NOT_SERVING.
func (c *Checker) Watch(ctx context.Context, srv *health.Server, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	update := func() {
		st := c.Status(ctx)
		srv.SetServingStatus("", st)
		srv.SetServingStatus(ServiceName, st)
	}
	update()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			srv.Shutdown()
			return
		case <-t.C:
			update()
		}
	}
}

// ServeHTTP answers readiness probes: 200 when serving, 503 otherwise.
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st := c.Status(r.Context())
	code := http.StatusOK
	if st != healthpb.HealthCheckResponse_SERVING {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": st.String()})
}
