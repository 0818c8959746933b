package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanielPopoola/marketplace-settlement/internal/application"
	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
)

type CancelService struct {
	txm    application.TxManager
	logger *slog.Logger
}

func NewCancelService(txm application.TxManager, logger *slog.Logger) *CancelService {
	return &CancelService{txm: txm, logger: logger}
}

// Cancel voids an order before its charge reaches the gateway. Once a
// charge is in flight or captured the cancel is refused; undoing a capture
// is a refund through the permission gate.
func (s *CancelService) Cancel(ctx context.Context, cmd CancelCommand) error {
	if cmd.OrderID == "" {
		return application.NewValidationError(domain.NewMissingRequiredFieldError("order ID"))
	}

	return s.txm.WithTx(ctx, func(ctx context.Context, repos *application.Repositories) error {
		order, err := repos.Orders.FindByIDForUpdate(ctx, cmd.OrderID)
		if err != nil {
			if errors.Is(err, application.ErrOrderNotFound) {
				return application.NewNotFoundError("order")
			}
			return err
		}

		active, err := repos.Transactions.FindActiveByOrderID(ctx, cmd.OrderID)
		switch {
		case err == nil:
			locked, err := repos.Transactions.FindByIDForUpdate(ctx, active.ID)
			if err != nil {
				return err
			}
			if locked.Status == domain.StatusAuthorizing && locked.ClaimedAt != nil {
				// a gateway call is in flight; its outcome must be awaited
				return application.NewConcurrencyConflictError(
					fmt.Errorf("charge for order %s is in flight", cmd.OrderID))
			}
			if err := locked.Cancel(); err != nil {
				return application.NewInvalidStateError(err)
			}
			if err := repos.Transactions.Update(ctx, locked); err != nil {
				return err
			}
		case errors.Is(err, application.ErrTransactionNotFound):
			// nothing in flight, only the order needs cancelling
		default:
			return err
		}

		if err := order.Cancel(time.Now()); err != nil {
			return application.NewInvalidStateError(err)
		}
		if err := repos.Orders.UpdateStatus(ctx, order); err != nil {
			return err
		}

		s.logger.Info("order cancelled", "order_id", cmd.OrderID, "reason", cmd.Reason)
		return nil
	})
}
