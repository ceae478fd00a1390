package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/coffee-shop/auth"
	"github.com/upb/coffee-shop/config"
	"github.com/upb/coffee-shop/internal/observability"
	"github.com/upb/coffee-shop/middleware"
	"github.com/upb/coffee-shop/repositories"
	"github.com/upb/coffee-shop/repositories/postgres"
	"github.com/upb/coffee-shop/services"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Drinks    repositories.DrinkRepository
	TxManager repositories.TransactionManager

	// Services
	DrinkService *services.DrinkService

	// Auth
	KeySet   *auth.KeySetCache
	Verifier *auth.Verifier
	Guard    *middleware.Guard
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := newDependencies(cfg, factory, logger)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	return deps, nil
}

// NewDependenciesWithDB wires the application over an already opened pool.
func NewDependenciesWithDB(cfg *config.Config, db *sql.DB, logger *zap.Logger) (*Dependencies, error) {
	factory := postgres.NewRepositoryFactoryFromDB(postgres.WrapDB(db, logger), logger)
	return newDependencies(cfg, factory, logger)
}

func newDependencies(cfg *config.Config, factory *postgres.RepositoryFactory, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
		DB:          factory.GetDB(),
	}

	if err := deps.initMetrics(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	deps.initRepositories()
	deps.initServices()
	deps.initAuth(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initMetrics creates the Prometheus registry when metrics are enabled
func (d *Dependencies) initMetrics(cfg *config.Config) error {
	if !cfg.Observability.MetricsEnabled {
		return nil
	}
	metrics, err := observability.NewMetrics(nil)
	if err != nil {
		return err
	}
	d.Metrics = metrics
	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Drinks = repos.Drinks
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initServices() {
	d.DrinkService = services.NewDrinkService(d.Drinks, d.TxManager, d.Logger)
}

// initAuth builds the authorization pipeline: key set cache, verifier, guard
func (d *Dependencies) initAuth(cfg *config.Config) {
	var observer middleware.FailureObserver
	if d.Metrics != nil {
		observer = d.Metrics
	}

	if !cfg.AuthEnabled() {
		d.Logger.Warn("identity provider not configured, protected endpoints will reject every token")
		d.Guard = middleware.NewGuard(unconfiguredVerifier{}, d.Logger, observer)
		return
	}

	keySetCfg := auth.KeySetConfig{
		Domain:       cfg.Auth.Domain,
		JWKSURL:      cfg.Auth.JWKSURL,
		CacheTTL:     cfg.Auth.JWKSCacheTTL,
		HTTPTimeout:  cfg.Auth.JWKSHTTPTimeout,
		MissCooldown: cfg.Auth.JWKSMissCooldown,
	}
	if d.Metrics != nil {
		keySetCfg.Observer = d.Metrics
	}
	d.KeySet = auth.NewKeySetCache(keySetCfg, d.Logger)

	d.Verifier = auth.NewVerifier(d.KeySet, auth.VerifierConfig{
		Domain:     cfg.Auth.Domain,
		Audience:   cfg.Auth.Audience,
		Algorithms: cfg.Auth.Algorithms,
		Leeway:     cfg.Auth.Leeway,
	}, d.Logger)

	d.Guard = middleware.NewGuard(d.Verifier, d.Logger, observer)

	d.Logger.Info("authorization initialized",
		zap.String("jwks_url", d.KeySet.URL()),
		zap.String("issuer", auth.Issuer(cfg.Auth.Domain)),
		zap.String("audience", cfg.Auth.Audience),
		zap.Duration("jwks_cache_ttl", cfg.Auth.JWKSCacheTTL))
}

// unconfiguredVerifier rejects every token; used when no identity provider is set
type unconfiguredVerifier struct{}

func (unconfiguredVerifier) Verify(context.Context, string) (*auth.Claims, error) {
	return nil, auth.ErrKeySetUnavailable.WithDescription("Authorization is not configured.")
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
	}

	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
