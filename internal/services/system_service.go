package services

import (
	"context"
	"errors"
	"time"

	"github.com/adunni-couture/api/internal/repositories"
)

// SystemServiceDeps bundles collaborators for health and build reporting.
type SystemServiceDeps struct {
	Health      repositories.HealthRepository
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
	Clock       func() time.Time
}

type systemService struct {
	health      repositories.HealthRepository
	version     string
	commitSHA   string
	environment string
	startedAt   time.Time
	clock       func() time.Time
}

// NewSystemService wires dependencies into a concrete SystemService implementation.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.Health == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	startedAt := deps.StartedAt
	if startedAt.IsZero() {
		startedAt = clock().UTC()
	}
	return &systemService{
		health:      deps.Health,
		version:     deps.Version,
		commitSHA:   deps.CommitSHA,
		environment: deps.Environment,
		startedAt:   startedAt,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	report, err := s.health.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	now := s.clock()
	report.Version = s.version
	report.CommitSHA = s.commitSHA
	report.Environment = s.environment
	report.Uptime = now.Sub(s.startedAt)
	report.GeneratedAt = now
	return report, nil
}
