package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/dairycoop/settlement-backend/internal/domain/settlement"
	"github.com/dairycoop/settlement-backend/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type creditRepository struct {
	db *database.DB
}

func NewCreditRepository(db *database.DB) settlement.CreditRepository {
	return &creditRepository{db: db}
}

const creditColumns = `
	id, farmer_id, amount, status, settlement_status, collector_payment_id,
	settled_at, created_at, updated_at
`

func collectCredits(rows pgx.Rows) ([]settlement.CreditRequest, error) {
	defer rows.Close()

	var credits []settlement.CreditRequest
	for rows.Next() {
		var c settlement.CreditRequest
		var status, settlementStatus string
		if err := rows.Scan(
			&c.ID, &c.FarmerID, &c.Amount, &status, &settlementStatus, &c.CollectorPaymentID,
			&c.SettledAt, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan credit request: %w", err)
		}
		c.Status = settlement.CreditStatus(status)
		c.SettlementStatus = settlement.CreditSettlementStatus(settlementStatus)
		credits = append(credits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate credit requests: %w", err)
	}
	return credits, nil
}

func (r *creditRepository) ListDeductible(ctx context.Context, farmerIDs []string) ([]settlement.CreditRequest, error) {
	if len(farmerIDs) == 0 {
		return nil, nil
	}
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT `+creditColumns+`
		FROM credit_requests
		WHERE farmer_id = ANY($1)
		  AND status = 'approved'
		  AND settlement_status = 'pending'
		  AND collector_payment_id IS NULL
		ORDER BY created_at, id
		FOR UPDATE
	`, farmerIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list deductible credits: %w", err)
	}
	return collectCredits(rows)
}

func (r *creditRepository) AttachToPayment(ctx context.Context, ids []string, paymentID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := GetQuerier(ctx, r.db)

	tag, err := q.Exec(ctx, `
		UPDATE credit_requests
		SET collector_payment_id = $2, updated_at = NOW()
		WHERE id = ANY($1) AND collector_payment_id IS NULL AND settlement_status = 'pending'
	`, ids, paymentID)
	if err != nil {
		return 0, fmt.Errorf("failed to attach credits to payment: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *creditRepository) ListByPayment(ctx context.Context, paymentID string) ([]settlement.CreditRequest, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT `+creditColumns+`
		FROM credit_requests
		WHERE collector_payment_id = $1
		ORDER BY created_at, id
	`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment credits: %w", err)
	}
	return collectCredits(rows)
}

func (r *creditRepository) SettleByPayment(ctx context.Context, paymentID string, settledAt time.Time) (int64, error) {
	q := GetQuerier(ctx, r.db)

	tag, err := q.Exec(ctx, `
		UPDATE credit_requests
		SET settlement_status = 'paid', settled_at = $2, updated_at = NOW()
		WHERE collector_payment_id = $1 AND settlement_status = 'pending'
	`, paymentID, settledAt)
	if err != nil {
		return 0, fmt.Errorf("failed to settle payment credits: %w", err)
	}
	return tag.RowsAffected(), nil
}
