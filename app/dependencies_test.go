package app

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/upb/coffee-shop/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            5000,
			ShutdownTimeout: 5 * time.Second,
		},
		Database: config.DatabaseConfig{
			Host:            "127.0.0.1",
			Port:            1,
			User:            "postgres",
			Password:        "postgres",
			Database:        "coffee_shop_test",
			SSLMode:         "disable",
			MaxOpenConns:    2,
			MaxIdleConns:    1,
			ConnMaxLifetime: time.Minute,
		},
		Auth: config.AuthConfig{
			Domain:           "coffee-shop.test.auth0.com",
			Audience:         "drinks",
			Algorithms:       []string{"RS256"},
			JWKSCacheTTL:     10 * time.Minute,
			JWKSHTTPTimeout:  time.Second,
			JWKSMissCooldown: 30 * time.Second,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
		Observability: config.ObservabilityConfig{
			LogLevel:       "error",
			LogFormat:      "json",
			MetricsEnabled: true,
			MetricsPath:    "/metrics",
		},
	}
}

func newMockDependencies(t *testing.T, cfg *config.Config) (*Dependencies, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	deps, err := NewDependenciesWithDB(cfg, db, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, deps)
	return deps, mock
}

func TestNewDependenciesWithDB(t *testing.T) {
	t.Run("wires every component", func(t *testing.T) {
		deps, _ := newMockDependencies(t, testConfig(t))

		assert.NotNil(t, deps.Config)
		assert.NotNil(t, deps.DB)
		assert.NotNil(t, deps.Logger)
		assert.NotNil(t, deps.RepoFactory)
		assert.NotNil(t, deps.Drinks)
		assert.NotNil(t, deps.TxManager)
		assert.NotNil(t, deps.DrinkService)
		assert.NotNil(t, deps.Metrics)
		assert.NotNil(t, deps.KeySet)
		assert.NotNil(t, deps.Verifier)
		assert.NotNil(t, deps.Guard)
	})

	t.Run("key set url derives from domain", func(t *testing.T) {
		deps, _ := newMockDependencies(t, testConfig(t))

		assert.Equal(t, "https://coffee-shop.test.auth0.com/.well-known/jwks.json", deps.KeySet.URL())
	})

	t.Run("key set url override", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth.JWKSURL = "http://127.0.0.1:9999/jwks.json"

		deps, _ := newMockDependencies(t, cfg)

		assert.Equal(t, "http://127.0.0.1:9999/jwks.json", deps.KeySet.URL())
	})

	t.Run("auth disabled without identity provider", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth.Domain = ""

		deps, _ := newMockDependencies(t, cfg)

		assert.Nil(t, deps.KeySet)
		assert.Nil(t, deps.Verifier)
		require.NotNil(t, deps.Guard)
	})

	t.Run("metrics disabled", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Observability.MetricsEnabled = false

		deps, _ := newMockDependencies(t, cfg)

		assert.Nil(t, deps.Metrics)
		assert.NotNil(t, deps.Guard)
	})
}

func TestUnconfiguredVerifier(t *testing.T) {
	claims, err := unconfiguredVerifier{}.Verify(context.Background(), "token")

	assert.Nil(t, claims)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestNewDependencies(t *testing.T) {
	t.Run("unreachable database", func(t *testing.T) {
		ctx := context.Background()

		deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))

		assert.Nil(t, deps)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})
}

func TestDependenciesClose(t *testing.T) {
	t.Run("closes the pool once", func(t *testing.T) {
		deps, mock := newMockDependencies(t, testConfig(t))
		mock.ExpectClose()

		require.NoError(t, deps.Close(context.Background()))
		assert.Nil(t, deps.RepoFactory)
		assert.NoError(t, mock.ExpectationsWereMet())

		require.NoError(t, deps.Close(context.Background()))
	})
}
