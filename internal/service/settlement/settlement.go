package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/dairycoop/settlement-backend/internal/domain/notification"
	"github.com/dairycoop/settlement-backend/internal/domain/settlement"
	"github.com/dairycoop/settlement-backend/internal/pkg/validator"
)

// MarkPaymentPending records the administrative review: Generated → Pending.
func (s *SettlementServiceImpl) MarkPaymentPending(ctx context.Context, id string) (settlement.CollectorPaymentResponse, error) {
	if !validator.IsUUID(id) {
		return settlement.CollectorPaymentResponse{}, settlement.ErrPaymentNotFound
	}
	caller, err := authorize(ctx, "")
	if err != nil {
		return settlement.CollectorPaymentResponse{}, err
	}

	var payment settlement.CollectorPayment
	err = s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		current, err := s.paymentRepo.LockByID(txCtx, id)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(settlement.PaymentStatusPending) {
			return fmt.Errorf("%w: %s -> %s", settlement.ErrInvalidTransition, current.Status, settlement.PaymentStatusPending)
		}

		payment, err = s.paymentRepo.UpdateStatus(txCtx, id, current.Status, settlement.PaymentStatusPending, caller.UserID, s.now().UTC())
		if err != nil {
			return err
		}
		payment.Credits, err = s.creditRepo.ListByPayment(txCtx, id)
		return err
	})
	if err != nil {
		return settlement.CollectorPaymentResponse{}, err
	}

	s.log.Info("collector payment reviewed", "payment_id", id, "by", caller.UserID)
	s.notifyPayment(ctx, caller, notification.TypePaymentPending, "Collector payment approved for payout", payment)
	return toPaymentResponse(payment), nil
}

// MarkPaymentPaid is the terminal Pending → Paid transition. The status
// change, the settlement of every credit deducted by this payment and the
// Paid flag on its collections commit together or not at all.
func (s *SettlementServiceImpl) MarkPaymentPaid(ctx context.Context, id string) (settlement.CollectorPaymentResponse, error) {
	if !validator.IsUUID(id) {
		return settlement.CollectorPaymentResponse{}, settlement.ErrPaymentNotFound
	}
	caller, err := authorize(ctx, "")
	if err != nil {
		return settlement.CollectorPaymentResponse{}, err
	}

	var payment settlement.CollectorPayment
	err = s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		current, err := s.paymentRepo.LockByID(txCtx, id)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(settlement.PaymentStatusPaid) {
			return fmt.Errorf("%w: %s -> %s", settlement.ErrInvalidTransition, current.Status, settlement.PaymentStatusPaid)
		}

		attached, err := s.creditRepo.ListByPayment(txCtx, id)
		if err != nil {
			return err
		}
		var outstanding int64
		for _, c := range attached {
			if c.SettlementStatus == settlement.CreditSettlementPending {
				outstanding++
			}
		}

		paidAt := s.now().UTC()
		payment, err = s.paymentRepo.UpdateStatus(txCtx, id, settlement.PaymentStatusPending, settlement.PaymentStatusPaid, caller.UserID, paidAt)
		if err != nil {
			return err
		}

		settled, err := s.creditRepo.SettleByPayment(txCtx, id, paidAt)
		if err != nil {
			return &settlement.SettlementAtomicityError{PaymentID: id, Cause: err}
		}
		if settled != outstanding {
			return &settlement.SettlementAtomicityError{
				PaymentID: id,
				Cause:     fmt.Errorf("settled %d of %d deducted credits", settled, outstanding),
			}
		}

		if _, err := s.collectionRepo.MarkPaid(txCtx, payment.CollectorID, payment.PeriodStart, payment.PeriodEnd); err != nil {
			return err
		}

		payment.Credits, err = s.creditRepo.ListByPayment(txCtx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, settlement.ErrSettlementAtomicity) {
			s.log.Error("collector payment settlement rolled back", "payment_id", id, "by", caller.UserID, "error", err)
		}
		return settlement.CollectorPaymentResponse{}, err
	}

	s.log.Info("collector payment paid", "payment_id", id, "credits_settled", len(payment.Credits), "by", caller.UserID)
	s.notifyPayment(ctx, caller, notification.TypePaymentPaid, "Collector payment paid", payment)
	return toPaymentResponse(payment), nil
}
