package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/auth"
	"github.com/platinummonkey/gatekeeper/pkg/cache"
	"github.com/platinummonkey/gatekeeper/pkg/config"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/identity"
	"github.com/platinummonkey/gatekeeper/pkg/identity/oidc"
	"github.com/platinummonkey/gatekeeper/pkg/identity/supabase"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/orgs"
	"github.com/platinummonkey/gatekeeper/pkg/store"
	"github.com/platinummonkey/gatekeeper/pkg/store/memory"
	"github.com/platinummonkey/gatekeeper/pkg/store/postgres"
	"github.com/platinummonkey/gatekeeper/pkg/users"
)

// App holds the wired services of one gatekeeper process
type App struct {
	Config   *config.Config
	Logger   *observability.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Health   *observability.HealthChecker

	Store    store.Store
	Cache    cache.SessionCache
	Audit    audit.Logger
	Provider identity.Provider

	Guard         *orgs.AccessGuard
	Organizations *orgs.OrganizationService
	Memberships   *orgs.MembershipService
	Users         *users.Service
	Auth          *auth.Service

	db      *sql.DB
	auditDB *audit.DBLogger
}

// Options overrides collaborators New would otherwise build from config
type Options struct {
	// Providers replaces the default registry (supabase and oidc)
	Providers *identity.Registry
	// Version is reported by the health endpoints
	Version string
}

// NewProviderRegistry returns a registry with every built-in provider registered
func NewProviderRegistry(logger *observability.Logger) *identity.Registry {
	r := identity.NewRegistry(logger)
	r.Register("supabase", supabase.Factory)
	r.Register("oidc", oidc.Factory)
	return r
}

// New builds every component in dependency order. On error, whatever was
// already opened is closed.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger, opts Options) (a *App, err error) {
	if logger == nil {
		logger = observability.Discard()
	}
	a = &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		Health:   observability.NewHealthChecker(opts.Version),
	}
	defer func() {
		if err != nil {
			if cerr := a.Close(); cerr != nil {
				logger.WithError(cerr).Warn("Failed to release resources after startup error")
			}
			a = nil
		}
	}()

	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = observability.NewMetrics(a.Registry)

	if err = a.openStore(ctx); err != nil {
		return a, err
	}
	if err = a.openCache(ctx); err != nil {
		return a, err
	}
	if err = a.openAudit(); err != nil {
		return a, err
	}

	providers := opts.Providers
	if providers == nil {
		providers = NewProviderRegistry(logger)
	}
	provider, err := providers.Create(ctx, cfg.Provider)
	if err != nil {
		return a, err
	}
	if _, unconfigured := provider.(*identity.Unconfigured); unconfigured {
		logger.WithField("provider", cfg.Provider.Name).Error("Identity provider is not configured; every authentication will fail")
	}
	a.Provider = identity.Instrument(provider, a.Metrics)

	a.Guard = orgs.NewAccessGuard(a.Store)
	orgOpts := orgs.Options{
		Audit:   a.Audit,
		Logger:  logger,
		Metrics: a.Metrics,
	}
	a.Organizations = orgs.NewOrganizationService(a.Store, a.Guard, orgOpts)
	a.Memberships = orgs.NewMembershipService(a.Store, a.Guard, orgOpts)
	a.Users = users.NewService(a.Store, users.Options{Audit: a.Audit, Logger: logger})

	a.Auth = auth.NewService(a.Provider, a.Store, a.Guard, auth.Options{
		Cache:             a.Cache,
		Audit:             a.Audit,
		Logger:            logger,
		Metrics:           a.Metrics,
		DefaultSessionTTL: cfg.Session.DefaultTTL,
		ProviderTimeout:   cfg.Provider.Timeout,
	})

	a.registerHealthChecks()

	logger.WithFields(map[string]interface{}{
		"store":    cfg.Database.Kind,
		"cache":    cfg.Cache.Kind,
		"provider": cfg.Provider.Name,
	}).Info("Gatekeeper initialized")

	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.Database.Kind {
	case config.StoreKindMemory:
		a.Logger.Warn("Using in-memory store; data is lost on restart")
		a.Store = memory.NewStore()
		return nil
	case config.StoreKindPostgres:
		db, err := postgres.Connect(postgres.ConnectionConfig{
			URL:      a.Config.Database.URL,
			MaxConns: a.Config.Database.MaxConns,
			MinConns: a.Config.Database.MinConns,
			Timeout:  a.Config.Database.Timeout,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.db = db
		pg := postgres.NewStore(db)
		a.Store = pg
		if a.Config.Database.AutoMigrate {
			if err := pg.EnsureSchema(ctx); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported store: %s", a.Config.Database.Kind)
	}
}

func (a *App) openCache(ctx context.Context) error {
	switch a.Config.Cache.Kind {
	case config.CacheKindNone, "":
		return nil
	case config.CacheKindMemory:
		a.Cache = cache.NewLRUSessionCache(a.Config.Cache.Size, a.Config.Cache.TTL)
		return nil
	case config.CacheKindRedis:
		c, err := cache.NewRedisSessionCache(ctx, a.Config.Cache.RedisURL, a.Config.Cache.TTL)
		if err != nil {
			return fmt.Errorf("failed to open session cache: %w", err)
		}
		a.Cache = c
		return nil
	default:
		return fmt.Errorf("unsupported cache: %s", a.Config.Cache.Kind)
	}
}

func (a *App) openAudit() error {
	loggers := []audit.Logger{audit.NewStructuredLogger(a.Logger)}
	if a.db != nil {
		dbLogger, err := audit.NewDBLogger(a.db)
		if err != nil {
			return fmt.Errorf("failed to create audit logger: %w", err)
		}
		a.auditDB = dbLogger
		loggers = append(loggers, dbLogger)
	}
	a.Audit = audit.NewMultiLogger(loggers...)
	return nil
}

func (a *App) registerHealthChecks() {
	a.Health.Register("store", true, func(ctx context.Context) error {
		if a.db != nil {
			a.Metrics.RecordDBStats(a.db.Stats())
		}
		return a.Store.Ping(ctx)
	})
	if a.Cache != nil {
		// sessions still validate without the cache
		a.Health.Register("session_cache", false, a.Cache.Ping)
	}
}

// Handler serves the health and metrics endpoints, traced with otelhttp
func (a *App) Handler() http.Handler {
	router := mux.NewRouter()
	observability.RegisterHealthRoutes(router, a.Health)
	if a.Config.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(router, a.Registry)
	}
	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(a.Logger),
		httputil.LoggingMiddleware(a.Logger),
	)(router)
	return otelhttp.NewHandler(handler, "gatekeeper.http")
}

// PurgeSessions expires overdue sessions and deletes those ended longer ago
// than the configured retention. Audit rows past their retention go too.
func (a *App) PurgeSessions(ctx context.Context) error {
	now := time.Now().UTC()
	expired, purged, err := a.Auth.PurgeExpiredSessions(ctx, now.Add(-a.Config.Session.PurgeRetention))
	if err != nil {
		return err
	}
	logger := a.Logger.WithFields(map[string]interface{}{
		"expired": expired,
		"purged":  purged,
	})

	if a.auditDB != nil && a.Config.Session.AuditRetention > 0 {
		removed, err := a.auditDB.Cleanup(ctx, a.Config.Session.AuditRetention)
		if err != nil {
			return err
		}
		logger = logger.WithField("audit_removed", removed)
	}

	logger.Info("Session purge completed")
	return nil
}

// Close releases the cache, audit sinks and store. Safe on a partly built App.
func (a *App) Close() error {
	var errs []error
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close session cache: %w", err))
		}
	}
	if a.Audit != nil {
		if err := a.Audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close audit logger: %w", err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close store: %w", err))
		}
	} else if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
