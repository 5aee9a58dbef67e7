package postgresql_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/dairycoop/settlement-backend/internal/pkg/database"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// TestDatabaseSetup holds the connection shared by the repository tests
type TestDatabaseSetup struct {
	DB *database.DB
}

var settlementTables = []string{
	"notifications",
	"credit_requests",
	"daily_collector_summaries",
	"collector_payments",
	"variance_penalty_configs",
	"collections",
	"farmers",
	"collectors",
}

// NewTestDatabase connects to TEST_DATABASE_URL and applies the schema.
// Tests are skipped when the variable is unset.
func NewTestDatabase(t *testing.T) *TestDatabaseSetup {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.NewPostgreSQLDB(ctx, dsn, database.PoolSize{MaxConns: 4})
	require.NoError(t, err, "failed to connect to test database")

	schema, err := os.ReadFile(filepath.Join("..", "..", "..", "..", "migrations", "001_settlement.sql"))
	require.NoError(t, err)
	_, err = db.Exec(ctx, string(schema))
	require.NoError(t, err, "failed to apply schema")

	setup := &TestDatabaseSetup{DB: db}
	require.NoError(t, setup.TruncateAllTables(ctx))
	t.Cleanup(setup.Close)
	return setup
}

// TruncateAllTables empties every settlement table
func (s *TestDatabaseSetup) TruncateAllTables(ctx context.Context) error {
	tx, err := s.DB.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, table := range settlementTables {
		if _, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *TestDatabaseSetup) Close() {
	s.DB.Close()
}

func (s *TestDatabaseSetup) insertCollector(t *testing.T, id, name string) {
	t.Helper()
	_, err := s.DB.Exec(context.Background(),
		`INSERT INTO collectors (id, full_name, is_active) VALUES ($1, $2, TRUE)`, id, name)
	require.NoError(t, err)
}

func (s *TestDatabaseSetup) insertFarmer(t *testing.T, id, name string) {
	t.Helper()
	_, err := s.DB.Exec(context.Background(),
		`INSERT INTO farmers (id, full_name) VALUES ($1, $2)`, id, name)
	require.NoError(t, err)
}

func (s *TestDatabaseSetup) insertCredit(t *testing.T, id, farmerID string, amount decimal.Decimal, status string) {
	t.Helper()
	_, err := s.DB.Exec(context.Background(),
		`INSERT INTO credit_requests (id, farmer_id, amount, status) VALUES ($1, $2, $3, $4)`,
		id, farmerID, amount, status)
	require.NoError(t, err)
}
