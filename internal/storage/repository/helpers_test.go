package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/ea-access/internal/migrations"
	"github.com/magabrotheeeer/ea-access/internal/models"
)

var baseTime = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// setupTestDatabase поднимает PostgreSQL в контейнере и применяет миграции.
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err, "failed to start container")

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	storage, err := New(dsn)
	require.NoError(t, err)

	migrationsPath, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, migrationsPath))
	require.NoError(t, CheckDatabaseReady(storage))

	cleanup := func() {
		_ = storage.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return storage, cleanup
}

// TestDataFactory создаёт тестовые данные.
type TestDataFactory struct {
	storage *Storage
}

func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

func (f *TestDataFactory) CreatePrincipal(t *testing.T, userID string) *models.Principal {
	t.Helper()
	p, created, err := f.storage.CreatePrincipal(context.Background(), models.Principal{
		UserID:               userID,
		Username:             "user_" + userID,
		Tier:                 models.TierFree,
		DailySignalResetDate: models.UTCDate(baseTime),
		CreatedAt:            baseTime,
	})
	require.NoError(t, err)
	require.True(t, created)
	return p
}

func (f *TestDataFactory) IssueToken(t *testing.T, value, userID, deviceID string, expiresAt time.Time) {
	t.Helper()
	_, err := f.storage.DeactivateAndInsert(context.Background(), models.Token{
		Token:         value,
		UserID:        userID,
		BoundDeviceID: deviceID,
		Tier:          models.TierSuper,
		IsActive:      true,
		ExpiresAt:     expiresAt,
		CreatedAt:     baseTime,
	})
	require.NoError(t, err)
}
