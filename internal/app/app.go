// Package app wires the substrate's components into a running HTTP server:
// config, infrastructure connections, migrations, and every domain router
// (identity, entity migration, binary files, data requests, audit log).
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/strixun/edgecore/internal/audit"
	"github.com/strixun/edgecore/internal/blob"
	"github.com/strixun/edgecore/internal/config"
	"github.com/strixun/edgecore/internal/datarequest"
	"github.com/strixun/edgecore/internal/entity"
	"github.com/strixun/edgecore/internal/httpserver"
	"github.com/strixun/edgecore/internal/identity"
	"github.com/strixun/edgecore/internal/integrity"
	"github.com/strixun/edgecore/internal/kv"
	"github.com/strixun/edgecore/internal/platform"
	"github.com/strixun/edgecore/internal/telemetry"
	"github.com/strixun/edgecore/pkg/cipher"
)

// Run reads config, connects to infrastructure, and serves the HTTP API
// until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting edgecore", "listen", cfg.ListenAddr(), "env", cfg.Environment)

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if !cfg.SkipMigrations {
		if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("migrations applied")
	}

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg)
	auditWriter, err := mountRoutes(ctx, srv, cfg, logger, db, rdb)
	if err != nil {
		return fmt.Errorf("wiring routes: %w", err)
	}
	defer auditWriter.Close()

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// mountRoutes wires every component store/service and mounts its HTTP
// routes onto srv.Router. Kept separate from Run so the wiring graph reads
// top to bottom without the listen/shutdown plumbing around it. It returns
// the audit writer so the caller can flush it on shutdown.
func mountRoutes(ctx context.Context, srv *httpserver.Server, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) (*audit.Writer, error) {
	store := kv.NewRedisStore(rdb)
	entityStore := entity.NewStore(store)

	// C5 identity service.
	customers := identity.NewCustomerStore(entityStore)
	superAdmins := identity.NewSuperAdminChecker(cfg.SuperAdminEmails)
	rateLimiter := identity.NewRateLimiter(store)
	otpMgr := identity.NewOTPManager(store, noopEmailSender{logger: logger})

	sessionSecret := cfg.JWTSecret
	if sessionSecret == "" {
		var err error
		sessionSecret, err = generateDevSecret()
		if err != nil {
			return nil, fmt.Errorf("generating development session secret: %w", err)
		}
		logger.Warn("JWT_SECRET not set; using an auto-generated development secret")
	}
	sessions, err := identity.NewSessionManager(sessionSecret, store)
	if err != nil {
		return nil, fmt.Errorf("creating session manager: %w", err)
	}

	authenticator := identity.NewAuthenticator(sessions, superAdmins, cfg.ServiceAPIKey, logger)
	identityHandler := identity.NewHandler(otpMgr, sessions, customers, rateLimiter, superAdmins, cfg.CookieApexDomain, cfg.Environment == "test")

	// C4 integrity layer, wired as ambient middleware on every route: it
	// verifies service-to-service requests and signs responses, and passes
	// ordinary bearer-token calls straight through.
	signer := integrity.NewSigner(cfg.NetworkIntegrityKeyphrase)
	srv.Router.Use(integrity.VerifyMiddleware(signer, logger))

	// Public, pre-authentication auth routes.
	srv.Router.Post("/auth/request-otp", identityHandler.HandleRequestOTP)
	srv.Router.Post("/auth/verify-otp", identityHandler.HandleVerifyOTP)

	// Authenticated routes: identity middleware resolves the caller, then
	// response encryption seals the JSON body under the caller's own
	// bearer token before it leaves the process.
	authed := srv.Router.With(authenticator.Middleware, identity.RequireCSRF, cipher.EncryptMiddleware(identity.CipherCallerFromContext, map[string]cipher.Schema{}, logger))

	authed.Post("/auth/refresh", identityHandler.HandleRefresh)
	authed.Post("/auth/logout", identityHandler.HandleLogout)
	authed.Get("/auth/me", identityHandler.HandleMe)

	// Binary file pipeline: a filesystem-backed store in non-test
	// environments, in-memory otherwise.
	blobBackend, err := newBlobBackend(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating blob backend: %w", err)
	}
	pipeline := blob.NewPipeline(blobBackend)
	blobHandler := blob.NewHandler(pipeline)
	authed.Mount("/files", blobHandler.Routes())

	// Audit log: async KVStore-backed append writer, consumed by every
	// admin-gated action below.
	auditWriter := audit.NewWriter(store, logger)
	auditWriter.Start(ctx)
	auditHandler := audit.NewHandler(store, logger)
	authed.Mount("/audit-log", auditHandler.Routes())

	// Admin-gated routes: super admin or service-to-service caller only.
	admin := srv.Router.With(authenticator.Middleware, identity.RequireCSRF, identity.RequireSuperAdmin, identity.RateLimit(rateLimiter, identity.BucketAdmin))

	migrator := entity.NewMigrator(entityStore, store)
	legacySource := entity.NewPostgresLegacySource(db)
	migrateHandler := entity.NewHandler(migrator, legacySource)
	admin.Mount("/admin/migrate", migrateHandler.Routes())

	drStore := datarequest.NewStore(db)
	drHandler := datarequest.NewHandler(drStore, customers, auditWriter)
	admin.Mount("/admin/data-requests", drHandler.Routes())

	return auditWriter, nil
}

func newBlobBackend(cfg *config.Config, logger *slog.Logger) (blob.Backend, error) {
	if cfg.Environment == "test" {
		return blob.NewMemoryBackend(), nil
	}
	fsBackend, err := blob.NewFilesystemBackend("data/blobs")
	if err != nil {
		logger.Warn("creating filesystem blob backend; falling back to memory", "error", err)
		return blob.NewMemoryBackend(), nil
	}
	return fsBackend, nil
}

// generateDevSecret returns a random hex string long enough to satisfy
// identity.MinJWTSecretLen, for use only when JWT_SECRET is unset.
func generateDevSecret() (string, error) {
	b := make([]byte, identity.MinJWTSecretLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// noopEmailSender logs OTP delivery instead of calling a real vendor; wire
// a concrete identity.EmailSender implementation in production.
type noopEmailSender struct {
	logger *slog.Logger
}

func (n noopEmailSender) Send(ctx context.Context, msg identity.Email) error {
	n.logger.Info("email dispatch (no vendor configured)", "to", msg.To, "subject", msg.Subject)
	return nil
}
