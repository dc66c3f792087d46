// Package integration runs the tourist safety backend against real
// PostgreSQL, Redis and Kafka containers started with testcontainers.
package integration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"

	"github.com/tsafe/backend/internal/infrastructure/config"
	"github.com/tsafe/backend/internal/infrastructure/migration"
	"github.com/tsafe/backend/internal/infrastructure/persistence"
	"github.com/tsafe/backend/migrations"
)

// postgresOnce starts one migrated PostgreSQL container per test binary.
var postgresOnce struct {
	sync.Once
	container *tcpostgres.PostgresContainer
	cfg       config.DatabaseConfig
	err       error
}

// TestDB is a connection pool to the shared, migrated container. It opens
// through the same constructor the server uses.
type TestDB struct {
	*persistence.Database
	t *testing.T
}

func startPostgres() (*tcpostgres.PostgresContainer, config.DatabaseConfig, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("tsafe_test"),
		tcpostgres.WithUsername("tsafe"),
		tcpostgres.WithPassword("tsafe"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
	if err != nil {
		return nil, config.DatabaseConfig{}, fmt.Errorf("start postgres: %w", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		return container, config.DatabaseConfig{}, err
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return container, config.DatabaseConfig{}, err
	}

	cfg := config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            "tsafe",
		Password:        "tsafe",
		DBName:          "tsafe_test",
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5,
	}
	return container, cfg, migrate(cfg)
}

func migrate(cfg config.DatabaseConfig) error {
	db, err := persistence.NewDatabaseWithLogger(&cfg, logger.Discard)
	if err != nil {
		return err
	}
	defer db.Close()

	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	m, err := migration.NewFromFS(sqlDB, migrations.FS, zap.NewNop())
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	return m.Up()
}

// NewSharedTestDB connects to the package's container, starting and
// migrating it on first use. Tests sharing it call CleanTables first.
func NewSharedTestDB(t *testing.T) *TestDB {
	t.Helper()

	postgresOnce.Do(func() {
		postgresOnce.container, postgresOnce.cfg, postgresOnce.err = startPostgres()
	})
	require.NoError(t, postgresOnce.err, "PostgreSQL container")

	db, err := persistence.NewDatabaseWithLogger(&postgresOnce.cfg, logger.Discard)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &TestDB{Database: db, t: t}
}

// CleanTables empties every application table in one statement.
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()

	var tables []string
	require.NoError(tdb.t, tdb.DB.Raw(
		`SELECT quote_ident(tablename) FROM pg_tables WHERE schemaname = 'public' AND tablename <> 'schema_migrations'`,
	).Scan(&tables).Error)
	if len(tables) == 0 {
		return
	}
	require.NoError(tdb.t, tdb.DB.Exec("TRUNCATE TABLE "+strings.Join(tables, ", ")+" RESTART IDENTITY CASCADE").Error)
}

// terminatePostgres stops the shared container once the package is done.
func terminatePostgres() {
	if postgresOnce.container == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = postgresOnce.container.Terminate(ctx)
}
