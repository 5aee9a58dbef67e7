package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/dairycoop/settlement-backend/internal/domain/settlement"
	"github.com/dairycoop/settlement-backend/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type staffRepository struct {
	db *database.DB
}

func NewStaffRepository(db *database.DB) settlement.StaffRepository {
	return &staffRepository{db: db}
}

const collectorColumns = `id, full_name, phone, route, is_active, created_at, updated_at`

func scanCollector(row pgx.Row) (settlement.Collector, error) {
	var c settlement.Collector
	err := row.Scan(&c.ID, &c.FullName, &c.Phone, &c.Route, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *staffRepository) GetCollectorByID(ctx context.Context, id string) (settlement.Collector, error) {
	q := GetQuerier(ctx, r.db)

	c, err := scanCollector(q.QueryRow(ctx, `SELECT `+collectorColumns+` FROM collectors WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return settlement.Collector{}, settlement.ErrCollectorNotFound
		}
		return settlement.Collector{}, fmt.Errorf("failed to get collector: %w", err)
	}
	return c, nil
}

// LockCollector serialises summary writes and batch generation per collector
// for the rest of the transaction.
func (r *staffRepository) LockCollector(ctx context.Context, id string) (settlement.Collector, error) {
	q := GetQuerier(ctx, r.db)

	c, err := scanCollector(q.QueryRow(ctx, `SELECT `+collectorColumns+` FROM collectors WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return settlement.Collector{}, settlement.ErrCollectorNotFound
		}
		return settlement.Collector{}, fmt.Errorf("failed to lock collector: %w", err)
	}
	return c, nil
}

func (r *staffRepository) ListActiveCollectors(ctx context.Context) ([]settlement.Collector, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `SELECT `+collectorColumns+` FROM collectors WHERE is_active ORDER BY full_name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collectors: %w", err)
	}
	defer rows.Close()

	var collectors []settlement.Collector
	for rows.Next() {
		c, err := scanCollector(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan collector: %w", err)
		}
		collectors = append(collectors, c)
	}
	return collectors, rows.Err()
}
