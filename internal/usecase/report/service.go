package report

import (
	"context"

	"github.com/queen-doris/admin-application/internal/domain"
	"github.com/queen-doris/admin-application/internal/repository"
)

// Service exposes the admin dashboard aggregates. Pure reads over the
// transaction log; safe to call concurrently with in-flight submissions.
type Service struct {
	log repository.TransactionLog
}

func New(log repository.TransactionLog) *Service {
	return &Service{log: log}
}

func (s *Service) GetStats(ctx context.Context) (*domain.Stats, error) {
	return s.log.Aggregate(ctx)
}
