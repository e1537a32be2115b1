package health

import (
	"context"
	"database/sql"
	"time"
)

// Pinger is anything with a connectivity check, e.g. the redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Service encapsulates health-related checks.
type Service struct {
	DB    *sql.DB
	Cache Pinger
}

// NewService constructs a new health service.
func NewService(db *sql.DB, cache Pinger) *Service {
	return &Service{DB: db, Cache: cache}
}

// Status reports overall health plus per-dependency state. Dependencies that
// are not configured are reported as "disabled" and do not fail the check.
func (s *Service) Status(ctx context.Context) map[string]any {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := map[string]any{"ok": true}

	if s.DB != nil {
		if err := s.DB.PingContext(ctx); err != nil {
			status["ok"] = false
			status["database"] = "down"
		} else {
			status["database"] = "up"
		}
	} else {
		status["database"] = "disabled"
	}

	if s.Cache != nil {
		if err := s.Cache.Ping(ctx); err != nil {
			status["cache"] = "down"
		} else {
			status["cache"] = "up"
		}
	} else {
		status["cache"] = "disabled"
	}

	return status
}
