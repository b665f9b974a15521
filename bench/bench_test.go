package bench

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ahmadzakiakmal/medichain/auth"
	"github.com/ahmadzakiakmal/medichain/client"
	"github.com/ahmadzakiakmal/medichain/repository"
	"github.com/ahmadzakiakmal/medichain/server"
	service_registry "github.com/ahmadzakiakmal/medichain/srvreg"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newAPI(t *testing.T) *client.HTTPClient {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	repo := repository.NewRepository(db, cmtlog.NewNopLogger(), repository.Options{})
	require.NoError(t, repo.Migrate())
	tokens, err := auth.NewTokenManager("bench-secret", time.Hour)
	require.NoError(t, err)

	sr := service_registry.NewServiceRegistry(service_registry.Dependencies{
		Repository: repo,
		Hasher:     auth.NewArgon2Hasher(auth.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}),
		Tokens:     tokens,
		Logger:     cmtlog.NewNopLogger(),
	})
	sr.RegisterDefaultServices()

	opts := server.DefaultOptions()
	opts.RateLimit = 0
	ws := server.NewWebServer(opts, sr, nil, nil, cmtlog.NewNopLogger())
	ts := httptest.NewServer(ws.Handler())
	t.Cleanup(ts.Close)
	return client.NewHTTPClient(ts.URL)
}

func TestRunWritesOneRowPerStep(t *testing.T) {
	api := newAPI(t)

	var out bytes.Buffer
	require.NoError(t, Run(api, Options{Iterations: 2}, &out))

	rows, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1+2*7)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, "Register Seller", rows[1][1])
	assert.Equal(t, "Complete Order", rows[6][1])
	assert.Equal(t, "Complete Workflow", rows[7][1])
	assert.Equal(t, "2", rows[8][0])
}

func TestRunStopsOnFailure(t *testing.T) {
	api := client.NewHTTPClient("http://127.0.0.1:1")
	api.Client.Timeout = time.Second

	var out bytes.Buffer
	err := Run(api, Options{Iterations: 3}, &out)
	require.Error(t, err)

	rows, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	// header plus the failed first step
	assert.Len(t, rows, 2)
}
