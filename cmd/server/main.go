package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/school-auth/audit"
	fakeauditsink "github.com/jrsteele09/school-auth/audit/repofake"
	"github.com/jrsteele09/school-auth/audit/sqlitesink"
	"github.com/jrsteele09/school-auth/auth"
	"github.com/jrsteele09/school-auth/compliance"
	fakecredentialstore "github.com/jrsteele09/school-auth/identity/repofake"
	"github.com/jrsteele09/school-auth/internal/config"
	"github.com/jrsteele09/school-auth/internal/database"
	"github.com/jrsteele09/school-auth/internal/logging"
	"github.com/jrsteele09/school-auth/lockout"
	fakelockoutstore "github.com/jrsteele09/school-auth/lockout/repofake"
	"github.com/jrsteele09/school-auth/lockout/sqlitestore"
	"github.com/jrsteele09/school-auth/mfa"
	fakemfarepo "github.com/jrsteele09/school-auth/mfa/repofake"
	"github.com/jrsteele09/school-auth/server"
	fakesessionrepo "github.com/jrsteele09/school-auth/sessions/repofakes"
	"github.com/jrsteele09/school-auth/tenantctx"
	tenantrepofakes "github.com/jrsteele09/school-auth/tenants/repofakes"
)

const (
	cleanupInterval = time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("Error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logging.Init(c)
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lockoutStore, auditSink, closeStorage, err := openStorage(ctx, c)
	if err != nil {
		return err
	}
	defer closeStorage()

	auditLog, err := audit.NewLog(auditSink,
		audit.WithQueueSize(c.GetAuditQueueSize()),
		audit.WithRetry(c.GetAuditRetryBaseDelay(), c.GetAuditRetryMaxDelay()),
		audit.WithDeadLetterGrace(c.GetAuditDeadLetterGrace()),
	)
	if err != nil {
		return fmt.Errorf("audit log: %w", err)
	}

	credentials := fakecredentialstore.NewFakeCredentialStore()
	sessionRepo := fakesessionrepo.NewFakeSessionRepo()
	tenantRepo := tenantrepofakes.NewFakeTenantRepo()
	mfaRepo := fakemfarepo.NewFakeSecretRepo()
	if err := seedTenants(tenantRepo, c.GetTenants()); err != nil {
		return err
	}
	if err := seedSuperAdmin(credentials, tenantRepo, c.GetSuperAdmin()); err != nil {
		return err
	}

	policy, err := lockout.NewPolicy(lockoutStore,
		lockout.WithMaxAttempts(c.GetMaxFailedAttempts()),
		lockout.WithLockoutDuration(c.GetLockoutDuration()),
	)
	if err != nil {
		return fmt.Errorf("lockout policy: %w", err)
	}
	gate, err := mfa.NewGate(mfaRepo, mfa.WithIssuer(c.GetMFAIssuer()), mfa.WithRecorder(auditLog))
	if err != nil {
		return fmt.Errorf("mfa gate: %w", err)
	}
	contexts, err := tenantctx.NewManager(tenantRepo, c.GetMasterKey(), tenantctx.WithRecorder(auditLog))
	if err != nil {
		return fmt.Errorf("tenant contexts: %w", err)
	}

	sessionManager, err := auth.NewSessionManager(
		auth.Repos{Credentials: credentials, Sessions: sessionRepo, Tenants: tenantRepo},
		policy, gate, contexts, auditLog,
		auth.WithCredentialTimeout(c.GetCredentialTimeout()),
		auth.WithSessionLifetimes(c.GetDefaultSessionLifetime(), c.GetRememberMeLifetime()),
		auth.WithMinPasswordLength(c.GetMinPasswordLength()),
	)
	if err != nil {
		return fmt.Errorf("session manager: %w", err)
	}

	complianceService, err := compliance.NewService(tenantRepo, auditLog, sessionManager, c.GetConfirmationSigningKey(),
		compliance.WithDataSources(credentials, mfaRepo, compliance.SessionData(sessionRepo)),
		compliance.WithConfirmationTTL(c.GetConfirmationTTL()),
	)
	if err != nil {
		return fmt.Errorf("compliance service: %w", err)
	}

	handler, err := server.New(c, server.Services{Sessions: sessionManager, Audit: auditLog, Compliance: complianceService})
	if err != nil {
		return err
	}

	go cleanupLoop(ctx, sessionManager)

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go listenAndServe(httpServer)
	waitForStopSignal()
	cancel()
	return shutdown(httpServer, auditLog)
}

// openStorage selects the lockout store and audit sink for the configured backend.
func openStorage(ctx context.Context, c config.Config) (lockout.Store, audit.Sink, func(), error) {
	if c.GetStorageBackend() != config.StorageSQLite {
		log.Warn().Msg("Using in-memory storage; lockout counters and audit events are lost on restart")
		return fakelockoutstore.NewFakeLockoutStore(), fakeauditsink.NewFakeSink(), func() {}, nil
	}

	db, err := database.Open(ctx, database.Config{
		Path:        c.GetDatabasePath(),
		WALMode:     c.GetDatabaseWALMode(),
		BusyTimeout: c.GetDatabaseBusyTimeout(),
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info().Str("path", db.Path()).Msg("SQLite storage ready")
	closeDB := func() {
		if err := db.Close(); err != nil {
			log.Err(err).Msg("closing database")
		}
	}
	return sqlitestore.New(db.DB), sqlitesink.New(db.DB), closeDB, nil
}

func cleanupLoop(ctx context.Context, sessionManager *auth.SessionManager) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessionManager.CleanupExpiredSessions(ctx)
			if err != nil {
				log.Err(err).Msg("expired session cleanup failed")
			} else if n > 0 {
				log.Debug().Int("count", n).Msg("expired sessions removed")
			}
		}
	}
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

// shutdown stops accepting requests, then drains the audit queue.
func shutdown(server *http.Server, auditLog *audit.Log) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	if err := auditLog.Close(ctx); err != nil {
		return fmt.Errorf("audit drain: %w", err)
	}
	if n := len(auditLog.DeadLetters()); n > 0 {
		log.Error().Int("count", n).Msg("audit events dead-lettered")
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
