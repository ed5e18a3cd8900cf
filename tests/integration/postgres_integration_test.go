//go:build integration

package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/hadron/hadron/internal/persistence/postgres"
	"github.com/hadron/hadron/internal/schema"
)

var (
	testPool    *pgxpool.Pool
	pgContainer testcontainers.Container
	setupErr    error
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_PASSWORD": "secret", "POSTGRES_USER": "postgres", "POSTGRES_DB": "hadron"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}
	pgContainer = container

	setupErr = initialiseDatabase(ctx)
	exitCode := 0
	if setupErr != nil {
		fmt.Fprintf(os.Stderr, "postgres integration tests skipped: %v\n", setupErr)
	} else {
		exitCode = m.Run()
	}

	if testPool != nil {
		testPool.Close()
	}
	if pgContainer != nil {
		_ = pgContainer.Terminate(ctx)
	}
	os.Exit(exitCode)
}

func initialiseDatabase(ctx context.Context) error {
	host, err := pgContainer.Host(ctx)
	if err != nil {
		return fmt.Errorf("container host: %w", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return fmt.Errorf("container port: %w", err)
	}
	dsn := fmt.Sprintf("postgres://postgres:secret@%s:%s/hadron?sslmode=disable", host, port.Port())

	if err := applyMigrations(dsn); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("pgx pool: %w", err)
	}
	testPool = pool
	return nil
}

func applyMigrations(dsn string) error {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return fmt.Errorf("runtime caller lookup failed")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
	migrationsDir := filepath.Join(root, "db", "migrations")
	sourceURL := fmt.Sprintf("file://%s", migrationsDir)

	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open sql connection: %w", err)
	}
	defer sqlDB.Close()

	var driverConfig pgxmigrate.Config
	driver, err := pgxmigrate.WithInstance(sqlDB, &driverConfig)
	if err != nil {
		return fmt.Errorf("pgx5 driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(sourceURL, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// TestInstrumentDirectoryRoundTrip exercises the instrument store's lookup
// paths end to end against a real schema: LookupOrCreate upserts a new
// instrument, Lookup finds it by exact match, and Lookup with a lower-cased
// ticker finds it case-insensitively.
func TestInstrumentDirectoryRoundTrip(t *testing.T) {
	if setupErr != nil {
		t.Skipf("postgres integration setup unavailable: %v", setupErr)
	}
	ctx := context.Background()
	store := postgres.NewInstrumentStore(testPool)

	ticker := "ACME-" + uuid.NewString()[:8]
	id, err := store.LookupOrCreate(ctx, ticker, schema.AssetClassEquity, schema.SourceEquities)
	if err != nil {
		t.Fatalf("lookup or create: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected a non-zero instrument id")
	}

	gotID, found, err := store.Lookup(ctx, ticker, schema.AssetClassEquity, schema.SourceEquities)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !found || gotID != id {
		t.Fatalf("expected exact-match lookup to find id %d, got %d found=%t", id, gotID, found)
	}

	lowerID, found, err := store.Lookup(ctx, lowerTicker(ticker), schema.AssetClassEquity, schema.SourceEquities)
	if err != nil {
		t.Fatalf("case-insensitive lookup: %v", err)
	}
	if !found || lowerID != id {
		t.Fatalf("expected case-insensitive lookup to find id %d, got %d found=%t", id, lowerID, found)
	}
}

// TestTickStoreInsertBatchPersistsEveryRow verifies that every tick of a
// batch is persisted and that a tick without a size is stored with a NULL
// size.
func TestTickStoreInsertBatchPersistsEveryRow(t *testing.T) {
	if setupErr != nil {
		t.Skipf("postgres integration setup unavailable: %v", setupErr)
	}
	ctx := context.Background()
	instruments := postgres.NewInstrumentStore(testPool)
	ticks := postgres.NewTickStore(testPool)

	ticker := "TICK-" + uuid.NewString()[:8]
	id, err := instruments.LookupOrCreate(ctx, ticker, schema.AssetClassEquity, schema.SourceEquities)
	if err != nil {
		t.Fatalf("lookup or create: %v", err)
	}

	size := decimal.RequireFromString("10")
	batch := []schema.CanonicalTick{
		{
			InstrumentID: id,
			Ticker:       ticker,
			AssetClass:   schema.AssetClassEquity,
			Source:       schema.SourceEquities,
			Venue:        "test-venue",
			Kind:         schema.TickKindTrade,
			Price:        decimal.RequireFromString("101.25"),
			Size:         &size,
			Timestamp:    time.Now().UTC(),
			RawSeq:       1,
		},
		{
			InstrumentID: id,
			Ticker:       ticker,
			AssetClass:   schema.AssetClassEquity,
			Source:       schema.SourceEquities,
			Venue:        "test-venue",
			Kind:         schema.TickKindTrade,
			Price:        decimal.RequireFromString("101.75"),
			Timestamp:    time.Now().UTC(),
			RawSeq:       2,
		},
	}

	if err := ticks.InsertBatch(ctx, batch); err != nil {
		t.Fatalf("insert batch: %v", err)
	}

	var count int
	if err := testPool.QueryRow(ctx, "SELECT COUNT(*) FROM ticks WHERE instrument_id = $1", id).Scan(&count); err != nil {
		t.Fatalf("count ticks: %v", err)
	}
	if count != len(batch) {
		t.Fatalf("expected %d persisted ticks, got %d", len(batch), count)
	}

	var nullSizes int
	if err := testPool.QueryRow(ctx, "SELECT COUNT(*) FROM ticks WHERE instrument_id = $1 AND size IS NULL", id).Scan(&nullSizes); err != nil {
		t.Fatalf("count null sizes: %v", err)
	}
	if nullSizes != 1 {
		t.Fatalf("expected the sizeless tick to persist a NULL size, got %d null rows", nullSizes)
	}
}

// TestOrderStoreCreateIntentAndRecordExecution exercises the full
// intent-to-execution persistence path, checking that a repeated intent
// insert succeeds, that the intent's metadata is stored (non-empty), and that
// the execution's fill price reads back unchanged.
func TestOrderStoreCreateIntentAndRecordExecution(t *testing.T) {
	if setupErr != nil {
		t.Skipf("postgres integration setup unavailable: %v", setupErr)
	}
	ctx := context.Background()
	instruments := postgres.NewInstrumentStore(testPool)
	orders := postgres.NewOrderStore(testPool)

	ticker := "ORD-" + uuid.NewString()[:8]
	instrumentID, err := instruments.LookupOrCreate(ctx, ticker, schema.AssetClassEquity, schema.SourceEquities)
	if err != nil {
		t.Fatalf("lookup or create: %v", err)
	}

	intent := schema.OrderIntent{
		ID:           uuid.NewString(),
		InstrumentID: instrumentID,
		StrategyID:   "sma5-crossover",
		Side:         schema.OrderSideBuy,
		Type:         schema.OrderTypeMarket,
		Quantity:     decimal.RequireFromString("10"),
		CreatedAt:    time.Now().UTC(),
		Metadata:     map[string]string{"mean": "101.40"},
	}
	if err := orders.CreateIntent(ctx, intent); err != nil {
		t.Fatalf("create intent: %v", err)
	}
	// idempotent on retry
	if err := orders.CreateIntent(ctx, intent); err != nil {
		t.Fatalf("create intent (retry): %v", err)
	}

	exec := schema.OrderExecution{
		ID:           uuid.NewString(),
		IntentID:     intent.ID,
		InstrumentID: instrumentID,
		Venue:        "simulation",
		VenueOrderID: "SIM-" + intent.ID,
		Status:       schema.ExecutionFilled,
		FillPrice:    decimal.RequireFromString("100.00"),
		FillQuantity: intent.Quantity,
		ExecutedAt:   time.Now().UTC(),
	}
	if err := orders.RecordExecution(ctx, exec); err != nil {
		t.Fatalf("record execution: %v", err)
	}

	var persistedMetadata string
	if err := testPool.QueryRow(ctx, "SELECT metadata::text FROM order_intents WHERE id = $1", intent.ID).Scan(&persistedMetadata); err != nil {
		t.Fatalf("query intent metadata: %v", err)
	}
	if persistedMetadata == "" {
		t.Fatalf("expected non-empty persisted metadata")
	}

	var fillPrice string
	if err := testPool.QueryRow(ctx, "SELECT fill_price::text FROM order_executions WHERE id = $1", exec.ID).Scan(&fillPrice); err != nil {
		t.Fatalf("query execution fill price: %v", err)
	}
	if !decimal.RequireFromString(fillPrice).Equal(exec.FillPrice) {
		t.Fatalf("expected fill price %s, got %s", exec.FillPrice, fillPrice)
	}
}

func lowerTicker(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
