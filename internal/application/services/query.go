package services

import (
	"context"
	"errors"

	"github.com/DanielPopoola/marketplace-settlement/internal/application"
	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
)

// TransactionView is a transaction with its settled commission split and
// the risk assessment the attempt was evaluated under, when one exists.
type TransactionView struct {
	Transaction *domain.PaymentTransaction
	Commissions []domain.Commission
	Assessment  *domain.FraudAssessment
}

type QueryService struct {
	repos *application.Repositories
}

func NewQueryService(repos *application.Repositories) *QueryService {
	return &QueryService{repos: repos}
}

func (s *QueryService) GetTransaction(ctx context.Context, id domain.TransactionID) (*TransactionView, error) {
	tx, err := s.repos.Transactions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, application.ErrTransactionNotFound) {
			return nil, application.NewNotFoundError("transaction")
		}
		return nil, err
	}

	commissions, err := s.repos.Commissions.ListByTransaction(ctx, id)
	if err != nil {
		return nil, err
	}

	assessment, err := s.repos.Fraud.LatestAssessmentByTransaction(ctx, id)
	if err != nil {
		return nil, err
	}

	return &TransactionView{Transaction: tx, Commissions: commissions, Assessment: assessment}, nil
}
