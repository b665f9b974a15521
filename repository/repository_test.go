package repository

import (
	"fmt"
	"testing"

	"github.com/ahmadzakiakmal/medichain/repository/models"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepository(t *testing.T, opts Options) *Repository {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	repo := NewRepository(db, cmtlog.NewNopLogger(), opts)
	require.NoError(t, repo.Migrate())
	return repo
}

func mustCreateHospital(t *testing.T, repo *Repository, name string, lat, lon *float64) *models.Hospital {
	t.Helper()
	h, repoErr := repo.CreateHospital(&models.Hospital{
		Name:          name,
		Email:         fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
		PasswordHash:  "hash",
		WalletAddress: "0x" + uuid.NewString(),
		Latitude:      lat,
		Longitude:     lon,
	})
	require.Nil(t, repoErr)
	return h
}

func ptr[T any](v T) *T {
	return &v
}
