package postgresql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dairycoop/settlement-backend/internal/domain/settlement"
	"github.com/dairycoop/settlement-backend/internal/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type paymentRepository struct {
	db *database.DB
}

func NewPaymentRepository(db *database.DB) settlement.PaymentRepository {
	return &paymentRepository{db: db}
}

const paymentSelect = `
	SELECT p.id, p.collector_id, p.period_start, p.period_end, p.gross_earnings,
		   p.total_penalty, p.credit_deductions, p.net_payable, p.summary_count, p.status,
		   p.generated_by, p.reviewed_at, p.reviewed_by, p.paid_at, p.paid_by,
		   p.created_at, p.updated_at, c.full_name
	FROM collector_payments p
	LEFT JOIN collectors c ON c.id = p.collector_id
`

func scanPayment(row pgx.Row) (settlement.CollectorPayment, error) {
	var p settlement.CollectorPayment
	var status string
	err := row.Scan(
		&p.ID, &p.CollectorID, &p.PeriodStart, &p.PeriodEnd, &p.GrossEarnings,
		&p.TotalPenalty, &p.CreditDeductions, &p.NetPayable, &p.SummaryCount, &status,
		&p.GeneratedBy, &p.ReviewedAt, &p.ReviewedBy, &p.PaidAt, &p.PaidBy,
		&p.CreatedAt, &p.UpdatedAt, &p.CollectorName,
	)
	p.Status = settlement.PaymentStatus(status)
	return p, err
}

func (r *paymentRepository) Create(ctx context.Context, p settlement.CollectorPayment) (settlement.CollectorPayment, error) {
	q := GetQuerier(ctx, r.db)

	if p.ID == "" {
		p.ID = uuid.Must(uuid.NewV7()).String()
	}

	query := `
		INSERT INTO collector_payments (
			id, collector_id, period_start, period_end, gross_earnings, total_penalty,
			credit_deductions, net_payable, summary_count, status, generated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`
	err := q.QueryRow(ctx, query,
		p.ID, p.CollectorID, p.PeriodStart, p.PeriodEnd, p.GrossEarnings, p.TotalPenalty,
		p.CreditDeductions, p.NetPayable, p.SummaryCount, string(p.Status), p.GeneratedBy,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "uk_collector_payment_period") {
			return settlement.CollectorPayment{}, settlement.ErrAlreadyGenerated
		}
		return settlement.CollectorPayment{}, fmt.Errorf("failed to create collector payment: %w", err)
	}
	return p, nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (settlement.CollectorPayment, error) {
	q := GetQuerier(ctx, r.db)

	p, err := scanPayment(q.QueryRow(ctx, paymentSelect+` WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return settlement.CollectorPayment{}, settlement.ErrPaymentNotFound
		}
		return settlement.CollectorPayment{}, fmt.Errorf("failed to get collector payment: %w", err)
	}
	return p, nil
}

func (r *paymentRepository) LockByID(ctx context.Context, id string) (settlement.CollectorPayment, error) {
	q := GetQuerier(ctx, r.db)

	p, err := scanPayment(q.QueryRow(ctx, paymentSelect+` WHERE p.id = $1 FOR UPDATE OF p`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return settlement.CollectorPayment{}, settlement.ErrPaymentNotFound
		}
		return settlement.CollectorPayment{}, fmt.Errorf("failed to lock collector payment: %w", err)
	}
	return p, nil
}

func (r *paymentRepository) FindOverlapping(ctx context.Context, collectorID string, start, end time.Time) ([]settlement.CollectorPayment, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, paymentSelect+`
		WHERE p.collector_id = $1 AND p.period_start <= $3 AND p.period_end >= $2
		ORDER BY p.period_start
	`, collectorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to find overlapping payments: %w", err)
	}
	defer rows.Close()

	var payments []settlement.CollectorPayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan collector payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// UpdateStatus is a compare-and-set on status; actor and at fill the
// columns belonging to the target status.
func (r *paymentRepository) UpdateStatus(ctx context.Context, id string, from, to settlement.PaymentStatus, actor string, at time.Time) (settlement.CollectorPayment, error) {
	q := GetQuerier(ctx, r.db)

	var setClause string
	switch to {
	case settlement.PaymentStatusPending:
		setClause = "reviewed_by = $4, reviewed_at = $5"
	case settlement.PaymentStatusPaid:
		setClause = "paid_by = $4, paid_at = $5"
	default:
		return settlement.CollectorPayment{}, settlement.ErrInvalidTransition
	}

	query := fmt.Sprintf(`
		UPDATE collector_payments
		SET status = $3, %s, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING id
	`, setClause)

	var updatedID string
	err := q.QueryRow(ctx, query, id, string(from), string(to), actor, at).Scan(&updatedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return settlement.CollectorPayment{}, settlement.ErrInvalidTransition
		}
		return settlement.CollectorPayment{}, fmt.Errorf("failed to update collector payment status: %w", err)
	}
	return r.GetByID(ctx, updatedID)
}

func (r *paymentRepository) List(ctx context.Context, filter settlement.PaymentFilter) ([]settlement.CollectorPayment, int64, error) {
	q := GetQuerier(ctx, r.db)

	var conditions []string
	var args []interface{}
	argIdx := 1

	if filter.CollectorID != nil {
		conditions = append(conditions, fmt.Sprintf("p.collector_id = $%d", argIdx))
		args = append(args, *filter.CollectorID)
		argIdx++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("p.status = $%d", argIdx))
		args = append(args, *filter.Status)
		argIdx++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var totalCount int64
	countQuery := "SELECT COUNT(*) FROM collector_payments p " + whereClause
	if err := q.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count collector payments: %w", err)
	}

	offset := (filter.Page - 1) * filter.Limit
	query := fmt.Sprintf(`%s %s ORDER BY p.period_start DESC, p.id LIMIT $%d OFFSET $%d`,
		paymentSelect, whereClause, argIdx, argIdx+1)
	args = append(args, filter.Limit, offset)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list collector payments: %w", err)
	}
	defer rows.Close()

	var payments []settlement.CollectorPayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan collector payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate collector payments: %w", err)
	}
	return payments, totalCount, nil
}
