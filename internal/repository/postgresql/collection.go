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

type collectionRepository struct {
	db          *database.DB
	readRetries int
}

// NewCollectionRepository returns the collection ledger store. Ledger reads
// outside a transaction are retried up to readRetries times.
func NewCollectionRepository(db *database.DB, readRetries int) settlement.CollectionRepository {
	return &collectionRepository{db: db, readRetries: readRetries}
}

const collectionSelect = `
	SELECT c.id, c.farmer_id, c.collector_id, c.liters, c.rate_per_liter, c.total_amount,
		   c.collection_date, c.collected_at, c.latitude, c.longitude, c.status,
		   c.approved_at, c.approved_by, c.created_at, c.updated_at, f.full_name
	FROM collections c
	LEFT JOIN farmers f ON f.id = c.farmer_id
`

func scanCollection(row pgx.Row) (settlement.Collection, error) {
	var c settlement.Collection
	var status string
	err := row.Scan(
		&c.ID, &c.FarmerID, &c.CollectorID, &c.Liters, &c.RatePerLiter, &c.TotalAmount,
		&c.CollectionDate, &c.CollectedAt, &c.Latitude, &c.Longitude, &status,
		&c.ApprovedAt, &c.ApprovedBy, &c.CreatedAt, &c.UpdatedAt, &c.FarmerName,
	)
	c.Status = settlement.CollectionStatus(status)
	return c, err
}

func (r *collectionRepository) Create(ctx context.Context, c settlement.Collection) (settlement.Collection, error) {
	q := GetQuerier(ctx, r.db)

	if c.ID == "" {
		c.ID = uuid.Must(uuid.NewV7()).String()
	}

	query := `
		INSERT INTO collections (
			id, farmer_id, collector_id, liters, rate_per_liter, total_amount,
			collection_date, collected_at, latitude, longitude, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`
	err := q.QueryRow(ctx, query,
		c.ID, c.FarmerID, c.CollectorID, c.Liters, c.RatePerLiter, c.TotalAmount,
		c.CollectionDate, c.CollectedAt, c.Latitude, c.Longitude, string(c.Status),
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return settlement.Collection{}, fmt.Errorf("failed to create collection: %w", err)
	}
	return c, nil
}

func (r *collectionRepository) GetByID(ctx context.Context, id string) (settlement.Collection, error) {
	q := GetQuerier(ctx, r.db)

	c, err := scanCollection(q.QueryRow(ctx, collectionSelect+` WHERE c.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return settlement.Collection{}, settlement.ErrCollectionNotFound
		}
		return settlement.Collection{}, fmt.Errorf("failed to get collection: %w", err)
	}
	return c, nil
}

// ListByCollector is the ledger read: ordered by collection time, ties broken by id.
func (r *collectionRepository) ListByCollector(ctx context.Context, collectorID string, from, to time.Time, statuses []settlement.CollectionStatus) ([]settlement.Collection, error) {
	q := GetQuerier(ctx, r.db)

	statusArgs := make([]string, len(statuses))
	for i, s := range statuses {
		statusArgs[i] = string(s)
	}

	query := collectionSelect + `
		WHERE c.collector_id = $1
		  AND c.collection_date BETWEEN $2 AND $3
		  AND c.status = ANY($4)
		ORDER BY c.collected_at, c.id
	`

	var collections []settlement.Collection
	err := retryRead(ctx, r.readRetries, func() error {
		collections = collections[:0]
		rows, err := q.Query(ctx, query, collectorID, from, to, statusArgs)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			c, err := scanCollection(rows)
			if err != nil {
				return err
			}
			collections = append(collections, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return collections, nil
}

func (r *collectionRepository) Approve(ctx context.Context, id string, approvedBy string, approvedAt time.Time) (settlement.Collection, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE collections
		SET status = $2, approved_by = $3, approved_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = $5
		RETURNING id
	`
	var updatedID string
	err := q.QueryRow(ctx, query, id, string(settlement.CollectionStatusApproved), approvedBy, approvedAt,
		string(settlement.CollectionStatusCollected)).Scan(&updatedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return settlement.Collection{}, getErr
			}
			return settlement.Collection{}, settlement.ErrCollectionAlreadyApproved
		}
		return settlement.Collection{}, fmt.Errorf("failed to approve collection: %w", err)
	}
	return r.GetByID(ctx, updatedID)
}

func (r *collectionRepository) MarkPaid(ctx context.Context, collectorID string, from, to time.Time) (int64, error) {
	q := GetQuerier(ctx, r.db)

	tag, err := q.Exec(ctx, `
		UPDATE collections
		SET status = $4, updated_at = NOW()
		WHERE collector_id = $1 AND collection_date BETWEEN $2 AND $3 AND status = $5
	`, collectorID, from, to, string(settlement.CollectionStatusPaid), string(settlement.CollectionStatusApproved))
	if err != nil {
		return 0, fmt.Errorf("failed to mark collections paid: %w", err)
	}
	return tag.RowsAffected(), nil
}
