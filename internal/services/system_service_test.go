package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/clearcart/api/internal/domain"
)

type fakeHealthRepository struct {
	report domain.SystemHealthReport
	err    error
}

func (f *fakeHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	if f.err != nil {
		return domain.SystemHealthReport{}, f.err
	}
	return f.report, nil
}

func TestSystemServiceHealthReport(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeHealthRepository{report: domain.SystemHealthReport{
		Status: domain.HealthStatusOK,
		Checks: map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusOK, CheckedAt: now},
		},
		GeneratedAt: now,
	}}

	svc, err := NewSystemService(SystemServiceDeps{Health: repo})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusOK || len(report.Checks) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	repo.err = errors.New("probe exploded")
	if _, err := svc.HealthReport(context.Background()); !errors.Is(err, ErrSystemUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
