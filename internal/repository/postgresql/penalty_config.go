package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dairycoop/settlement-backend/internal/domain/settlement"
	"github.com/dairycoop/settlement-backend/internal/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type penaltyConfigRepository struct {
	db *database.DB
}

func NewPenaltyConfigRepository(db *database.DB) settlement.PenaltyConfigRepository {
	return &penaltyConfigRepository{db: db}
}

const penaltyConfigColumns = `id, name, version, bands, is_active, created_by, created_at, updated_at`

// scanPenaltyConfig decodes and re-validates the stored bands so a corrupt
// row never reaches the evaluator.
func scanPenaltyConfig(row pgx.Row) (settlement.VariancePenaltyConfig, error) {
	var cfg settlement.VariancePenaltyConfig
	var bandsJSON []byte
	if err := row.Scan(&cfg.ID, &cfg.Name, &cfg.Version, &bandsJSON, &cfg.IsActive, &cfg.CreatedBy, &cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
		return settlement.VariancePenaltyConfig{}, err
	}
	if err := json.Unmarshal(bandsJSON, &cfg.Bands); err != nil {
		return settlement.VariancePenaltyConfig{}, fmt.Errorf("%w: config %s: %v", settlement.ErrInvalidPenaltyConfig, cfg.ID, err)
	}
	if err := settlement.ValidateBands(cfg.Bands); err != nil {
		return settlement.VariancePenaltyConfig{}, fmt.Errorf("%w: config %s: %v", settlement.ErrInvalidPenaltyConfig, cfg.ID, err)
	}
	return cfg, nil
}

// Create stores a new inactive version numbered after the current maximum.
func (r *penaltyConfigRepository) Create(ctx context.Context, cfg settlement.VariancePenaltyConfig) (settlement.VariancePenaltyConfig, error) {
	q := GetQuerier(ctx, r.db)

	if cfg.ID == "" {
		cfg.ID = uuid.Must(uuid.NewV7()).String()
	}
	bandsJSON, err := json.Marshal(cfg.Bands)
	if err != nil {
		return settlement.VariancePenaltyConfig{}, fmt.Errorf("failed to marshal penalty bands: %w", err)
	}

	query := `
		INSERT INTO variance_penalty_configs (id, name, version, bands, is_active, created_by)
		SELECT $1, $2, COALESCE(MAX(version), 0) + 1, $3, FALSE, $4
		FROM variance_penalty_configs
		RETURNING ` + penaltyConfigColumns

	saved, err := scanPenaltyConfig(q.QueryRow(ctx, query, cfg.ID, cfg.Name, bandsJSON, cfg.CreatedBy))
	if err != nil {
		if isUniqueViolation(err, "uk_variance_penalty_config_version") {
			return settlement.VariancePenaltyConfig{}, fmt.Errorf("%w: concurrent version allocation, retry", settlement.ErrInvalidPenaltyConfig)
		}
		return settlement.VariancePenaltyConfig{}, fmt.Errorf("failed to create penalty config: %w", err)
	}
	return saved, nil
}

func (r *penaltyConfigRepository) GetByID(ctx context.Context, id string) (settlement.VariancePenaltyConfig, error) {
	q := GetQuerier(ctx, r.db)

	cfg, err := scanPenaltyConfig(q.QueryRow(ctx, `SELECT `+penaltyConfigColumns+` FROM variance_penalty_configs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return settlement.VariancePenaltyConfig{}, settlement.ErrPenaltyConfigNotFound
		}
		return settlement.VariancePenaltyConfig{}, fmt.Errorf("failed to get penalty config: %w", err)
	}
	return cfg, nil
}

func (r *penaltyConfigRepository) GetActive(ctx context.Context) (settlement.VariancePenaltyConfig, error) {
	q := GetQuerier(ctx, r.db)

	cfg, err := scanPenaltyConfig(q.QueryRow(ctx, `SELECT `+penaltyConfigColumns+` FROM variance_penalty_configs WHERE is_active`))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return settlement.VariancePenaltyConfig{}, settlement.ErrNoActivePolicy
		}
		return settlement.VariancePenaltyConfig{}, fmt.Errorf("failed to get active penalty config: %w", err)
	}
	return cfg, nil
}

func (r *penaltyConfigRepository) List(ctx context.Context) ([]settlement.VariancePenaltyConfig, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `SELECT `+penaltyConfigColumns+` FROM variance_penalty_configs ORDER BY version DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list penalty configs: %w", err)
	}
	defer rows.Close()

	var configs []settlement.VariancePenaltyConfig
	for rows.Next() {
		cfg, err := scanPenaltyConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan penalty config: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// activationLockKey names the transaction-scoped advisory lock that orders
// concurrent activations.
const activationLockKey = "variance_penalty_configs.activate"

// Activate must run inside a transaction: it clears the active flag before
// setting it so the partial unique index is never violated. Activations are
// serialised on an advisory lock; a violation that still slips through is
// reported as ErrPenaltyActivationConflict.
func (r *penaltyConfigRepository) Activate(ctx context.Context, id string) error {
	q := GetQuerier(ctx, r.db)

	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, activationLockKey); err != nil {
		return fmt.Errorf("failed to lock penalty config activation: %w", err)
	}
	if _, err := q.Exec(ctx, `UPDATE variance_penalty_configs SET is_active = FALSE, updated_at = NOW() WHERE is_active AND id <> $1`, id); err != nil {
		return fmt.Errorf("failed to deactivate penalty configs: %w", err)
	}
	tag, err := q.Exec(ctx, `UPDATE variance_penalty_configs SET is_active = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		if isUniqueViolation(err, "uk_variance_penalty_config_active") {
			return settlement.ErrPenaltyActivationConflict
		}
		return fmt.Errorf("failed to activate penalty config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return settlement.ErrPenaltyConfigNotFound
	}
	return nil
}
