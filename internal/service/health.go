package service

import (
	"context"

	"github.com/andrsadr/koravi/internal/domain"
)

// Health states reported by CheckHealth
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// HealthReport describes backend reachability
type HealthReport struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
}

// CheckHealth pings the store once, without retries. A reachable database
// whose clients table is missing is degraded rather than unhealthy.
func (s *ClientService) CheckHealth(ctx context.Context) HealthReport {
	err := s.repo.Ping(ctx)
	switch {
	case err == nil:
		return HealthReport{Status: HealthHealthy, Connected: true, Message: "connected to database"}
	case domain.ErrorCode(err) == domain.CodeUndefinedTable:
		return HealthReport{
			Status:    HealthDegraded,
			Connected: true,
			Message:   "connected to database, but clients table not yet created",
			Code:      domain.CodeUndefinedTable,
		}
	default:
		return HealthReport{
			Status:  HealthUnhealthy,
			Message: "database error: " + err.Error(),
			Code:    domain.ErrorCode(err),
		}
	}
}
