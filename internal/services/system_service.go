package services

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/clearcart/api/internal/domain"
	"github.com/clearcart/api/internal/repositories"
)

// ErrSystemUnavailable indicates the health report itself could not be built.
var ErrSystemUnavailable = errors.New("system: health report unavailable")

// SystemServiceDeps bundles collaborators for the system service.
type SystemServiceDeps struct {
	Health repositories.HealthRepository
}

type systemService struct {
	health repositories.HealthRepository
}

var _ SystemService = (*systemService)(nil)

// NewSystemService constructs the readiness reporter.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.Health == nil {
		return nil, errors.New("system service: health repository is required")
	}
	return &systemService{health: deps.Health}, nil
}

// HealthReport probes every registered dependency and aggregates the result.
func (s *systemService) HealthReport(ctx context.Context) (domain.SystemHealthReport, error) {
	report, err := s.health.Collect(ctx)
	if err != nil {
		return domain.SystemHealthReport{}, fmt.Errorf("%w: %v", ErrSystemUnavailable, err)
	}
	return report, nil
}
