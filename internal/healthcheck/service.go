// Package healthcheck reports the service summary served on /healthz: the
// service name, whether the database answers, and the resulting status.
package healthcheck

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Repository is the store whose reachability decides the status.
type Repository interface {
	Ping(ctx context.Context) error
}

// Status is the /healthz body.
type Status struct {
	Service  string `json:"service"`
	Status   string `json:"status"`
	Database bool   `json:"database"`
}

type Service struct {
	repo    Repository
	name    string
	timeout time.Duration
	logger  *slog.Logger
}

// NewService creates a Service. A nil repo always reports degraded.
func NewService(repo Repository, name string, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Service{
		repo:    repo,
		name:    name,
		timeout: timeout,
		logger:  slog.Default().With("component", "healthcheck"),
	}
}

func (s *Service) Check(ctx context.Context) Status {
	ok := s.ping(ctx)
	status := StatusDegraded
	if ok {
		status = StatusHealthy
	}
	return Status{Service: s.name, Status: status, Database: ok}
}

func (s *Service) ping(ctx context.Context) bool {
	if s.repo == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.repo.Ping(ctx); err != nil {
		s.logger.Warn("database ping failed", "error", err)
		return false
	}
	return true
}

// Handler serves the summary. A degraded service still answers 200.
func (s *Service) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(s.Check(r.Context()))
	}
}
