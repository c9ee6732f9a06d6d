// Package fees keeps the payment fee schedule used for deposit quotes.
package fees

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/antidetect/dashboard_service/internal/domain/entities"
	"github.com/antidetect/dashboard_service/pkg/metrics"
	"go.uber.org/zap"
)

// Provider fetches the live schedule from the fee service
type Provider interface {
	GetPaymentFees(ctx context.Context) (entities.FeeSchedule, error)
}

// Service caches the schedule and falls back to defaults when the provider fails
type Service struct {
	provider Provider
	defaults entities.FeeSchedule
	logger   *zap.Logger

	mu          sync.RWMutex
	current     entities.FeeSchedule
	source      string
	refreshedAt time.Time
}

// Status describes where the current schedule came from
type Status struct {
	Source      string               `json:"source"`
	RefreshedAt time.Time            `json:"refreshed_at"`
	Schedule    entities.FeeSchedule `json:"schedule"`
}

const (
	SourceDefault = "default"
	SourceRemote  = "remote"
)

// NewService creates a fee service starting from the default schedule
func NewService(provider Provider, defaults entities.FeeSchedule, logger *zap.Logger) *Service {
	if len(defaults) == 0 {
		defaults = entities.DefaultFeeSchedule()
	}
	return &Service{
		provider: provider,
		defaults: defaults.Clone(),
		logger:   logger,
		current:  defaults.Clone(),
		source:   SourceDefault,
	}
}

// Schedule returns a copy of the current schedule
func (s *Service) Schedule() entities.FeeSchedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Status returns the current schedule and its origin
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{Source: s.source, RefreshedAt: s.refreshedAt, Schedule: s.current.Clone()}
}

// Refresh loads the schedule from the provider. On failure the last good schedule is kept.
// Methods missing from the remote schedule keep their default rate.
func (s *Service) Refresh(ctx context.Context) error {
	remote, err := s.provider.GetPaymentFees(ctx)
	if err != nil {
		metrics.FeeScheduleRefreshTotal.WithLabelValues("error").Inc()
		s.logger.Warn("Failed to fetch fee schedule, keeping current", zap.Error(err))
		return fmt.Errorf("failed to fetch fee schedule: %w", err)
	}

	merged := s.defaults.Clone()
	for method, rate := range remote {
		if !method.IsValid() {
			s.logger.Debug("Ignoring fee for unknown payment method", zap.String("method", string(method)))
			continue
		}
		if rate.IsNegative() {
			s.logger.Warn("Ignoring negative fee rate", zap.String("method", string(method)), zap.String("rate", rate.String()))
			continue
		}
		merged[method] = rate
	}

	s.mu.Lock()
	s.current = merged
	s.source = SourceRemote
	s.refreshedAt = time.Now().UTC()
	s.mu.Unlock()

	metrics.FeeScheduleRefreshTotal.WithLabelValues("success").Inc()
	s.logger.Info("Fee schedule refreshed", zap.Int("methods", len(merged)))
	return nil
}
