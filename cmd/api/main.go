package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"veritrail.io/internal/authz"
	"veritrail.io/internal/compliance"
	"veritrail.io/internal/config"
	"veritrail.io/internal/httpapi"
	"veritrail.io/internal/identity"
	"veritrail.io/internal/migrate"
	"veritrail.io/internal/obs"
	"veritrail.io/internal/session"
	"veritrail.io/internal/store/pg"
	"veritrail.io/internal/tenant"
	"veritrail.io/internal/training"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	runMigrations := flag.Bool("migrate", false, "apply pending migrations before serving")
	flag.Parse()

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			log.Printf("config: %v", err)
		}
		log.Fatal("invalid configuration")
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)
	log.Printf("starting veritrail-api %s: %v", version, cfg.LogSummary())

	store, err := pg.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if *runMigrations {
		mgr := migrate.NewManager(store.DB(), cfg.MigrationsDir, cfg.SeedsDir)
		applied, err := mgr.Up(ctx)
		if err != nil {
			log.Fatalf("migrate up: %v", err)
		}
		for _, name := range applied {
			log.Printf("applied migration %s", name)
		}
	}

	identitySvc, err := identity.NewService(store)
	if err != nil {
		log.Fatalf("identity service: %v", err)
	}
	authzSvc, err := authz.NewService(store)
	if err != nil {
		log.Fatalf("authz service: %v", err)
	}
	if err := authzSvc.EnsureBuiltins(ctx); err != nil {
		log.Fatalf("seed permissions: %v", err)
	}
	if cfg.BootstrapEmail != "" && cfg.BootstrapPassword != "" {
		if err := bootstrapOperator(ctx, identitySvc, authzSvc, cfg.BootstrapEmail, cfg.BootstrapPassword); err != nil {
			log.Fatalf("bootstrap operator: %v", err)
		}
	}
	cancel()

	sessionSvc, err := session.NewService(store, store, cfg.JWTSecret,
		session.WithAccessTTL(cfg.AccessTTL()),
		session.WithSessionTTL(cfg.SessionTTL()))
	if err != nil {
		log.Fatalf("session service: %v", err)
	}
	complianceSvc, err := compliance.NewService(store)
	if err != nil {
		log.Fatalf("compliance service: %v", err)
	}
	trainingSvc, err := training.NewService(store)
	if err != nil {
		log.Fatalf("training service: %v", err)
	}

	api := httpapi.New(httpapi.Services{
		Sessions:   sessionSvc,
		Identity:   identitySvc,
		Authz:      authzSvc,
		Compliance: complianceSvc,
		Training:   trainingSvc,
		Trail:      store,
	}, httpapi.ReadyProbe{DB: store.DB()}, version)

	handler := httpapi.RequestID(
		httpapi.Logging(
			httpapi.SecurityHeaders(
				httpapi.CORS(
					httpapi.MaxBodyBytes(
						httpapi.RateLimit(api.Handler(), cfg.RateBurst, cfg.RatePerSecond),
						cfg.MaxBodyBytes)))))

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Background sweep that moves past-due in-progress tasks to overdue.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go runOverdueSweep(sweepCtx, complianceSvc, cfg.OverdueSweepInterval())

	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("shutting down...")
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Println("stopped")
}

// bootstrapOperator guarantees a first login exists on a fresh database: a
// system principal holding every builtin grant. A principal with the
// configured email already present means an earlier boot did the work.
func bootstrapOperator(ctx context.Context, idsvc *identity.Service, azsvc *authz.Service, email, password string) error {
	scope := tenant.SystemScope("bootstrap")
	p, created, err := idsvc.EnsureSystemPrincipal(ctx, scope, email, password)
	if err != nil {
		return err
	}
	if !created {
		log.Printf("bootstrap: operator %s already present", p.Email)
		return nil
	}
	for _, perm := range authz.BuiltinPermissions {
		if _, err := azsvc.GrantPermission(ctx, scope, p.ID, perm.Name, nil); err != nil {
			return err
		}
	}
	log.Printf("bootstrap: created operator %s with %d grants", p.Email, len(authz.BuiltinPermissions))
	return nil
}

func runOverdueSweep(ctx context.Context, svc *compliance.Service, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx := tenant.WithScope(ctx, tenant.SystemScope("overdue-sweeper"))
			n, err := svc.MarkOverdue(sweepCtx)
			if err != nil {
				log.Printf("overdue sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("overdue sweep: %d tasks marked", n)
			}
		}
	}
}
