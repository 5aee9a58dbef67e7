package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dairycoop/settlement-backend/internal/domain/settlement"
	"github.com/dairycoop/settlement-backend/internal/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type dailySummaryRepository struct {
	db *database.DB
}

func NewDailySummaryRepository(db *database.DB) settlement.DailySummaryRepository {
	return &dailySummaryRepository{db: db}
}

const summaryColumns = `
	id, collector_id, summary_date, collection_count, total_recorded_liters,
	total_received_liters, variance, penalty_amount, gross_amount, penalty_config_id,
	status, collector_payment_id, received_recorded_by, created_at, updated_at
`

func scanSummary(row pgx.Row) (settlement.DailyCollectorSummary, error) {
	var s settlement.DailyCollectorSummary
	var status string
	err := row.Scan(
		&s.ID, &s.CollectorID, &s.SummaryDate, &s.CollectionCount, &s.TotalRecordedLiters,
		&s.TotalReceivedLiters, &s.Variance, &s.PenaltyAmount, &s.GrossAmount, &s.PenaltyConfigID,
		&status, &s.CollectorPaymentID, &s.ReceivedRecordedBy, &s.CreatedAt, &s.UpdatedAt,
	)
	s.Status = settlement.SummaryStatus(status)
	return s, err
}

func (r *dailySummaryRepository) Get(ctx context.Context, collectorID string, date time.Time) (settlement.DailyCollectorSummary, error) {
	q := GetQuerier(ctx, r.db)

	s, err := scanSummary(q.QueryRow(ctx,
		`SELECT `+summaryColumns+` FROM daily_collector_summaries WHERE collector_id = $1 AND summary_date = $2`,
		collectorID, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return settlement.DailyCollectorSummary{}, settlement.ErrDailySummaryNotFound
		}
		return settlement.DailyCollectorSummary{}, fmt.Errorf("failed to get daily summary: %w", err)
	}
	return s, nil
}

// Upsert writes the (collector, date) summary; frozen rows are left untouched
// and reported as ErrSummaryFrozen.
func (r *dailySummaryRepository) Upsert(ctx context.Context, s settlement.DailyCollectorSummary) (settlement.DailyCollectorSummary, error) {
	q := GetQuerier(ctx, r.db)

	if s.ID == "" {
		s.ID = uuid.Must(uuid.NewV7()).String()
	}

	query := `
		INSERT INTO daily_collector_summaries (
			id, collector_id, summary_date, collection_count, total_recorded_liters,
			total_received_liters, variance, penalty_amount, gross_amount, penalty_config_id,
			status, received_recorded_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (collector_id, summary_date) DO UPDATE SET
			collection_count = EXCLUDED.collection_count,
			total_recorded_liters = EXCLUDED.total_recorded_liters,
			total_received_liters = EXCLUDED.total_received_liters,
			variance = EXCLUDED.variance,
			penalty_amount = EXCLUDED.penalty_amount,
			gross_amount = EXCLUDED.gross_amount,
			penalty_config_id = EXCLUDED.penalty_config_id,
			status = EXCLUDED.status,
			received_recorded_by = EXCLUDED.received_recorded_by,
			updated_at = NOW()
		WHERE daily_collector_summaries.status <> 'frozen'
		RETURNING ` + summaryColumns

	saved, err := scanSummary(q.QueryRow(ctx, query,
		s.ID, s.CollectorID, s.SummaryDate, s.CollectionCount, s.TotalRecordedLiters,
		s.TotalReceivedLiters, s.Variance, s.PenaltyAmount, s.GrossAmount, s.PenaltyConfigID,
		string(s.Status), s.ReceivedRecordedBy,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return settlement.DailyCollectorSummary{}, settlement.ErrSummaryFrozen
		}
		return settlement.DailyCollectorSummary{}, fmt.Errorf("failed to upsert daily summary: %w", err)
	}
	return saved, nil
}

func (r *dailySummaryRepository) ListByCollector(ctx context.Context, collectorID string, from, to time.Time) ([]settlement.DailyCollectorSummary, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT `+summaryColumns+`
		FROM daily_collector_summaries
		WHERE collector_id = $1 AND summary_date BETWEEN $2 AND $3
		ORDER BY summary_date
	`, collectorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily summaries: %w", err)
	}
	return collectSummaries(rows)
}

func (r *dailySummaryRepository) Freeze(ctx context.Context, ids []string, paymentID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := GetQuerier(ctx, r.db)

	tag, err := q.Exec(ctx, `
		UPDATE daily_collector_summaries
		SET status = 'frozen', collector_payment_id = $2, updated_at = NOW()
		WHERE id = ANY($1) AND status = 'finalized'
	`, ids, paymentID)
	if err != nil {
		return 0, fmt.Errorf("failed to freeze daily summaries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *dailySummaryRepository) ListProvisionalBefore(ctx context.Context, before time.Time) ([]settlement.DailyCollectorSummary, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT `+summaryColumns+`
		FROM daily_collector_summaries
		WHERE status = 'provisional' AND summary_date < $1
		ORDER BY collector_id, summary_date
	`, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list provisional summaries: %w", err)
	}
	return collectSummaries(rows)
}

func collectSummaries(rows pgx.Rows) ([]settlement.DailyCollectorSummary, error) {
	defer rows.Close()

	var summaries []settlement.DailyCollectorSummary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily summaries: %w", err)
	}
	return summaries, nil
}
