package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"pagegate.org/internal/audit"
	"pagegate.org/internal/config"
	"pagegate.org/internal/geo"
	"pagegate.org/internal/httpapi"
	"pagegate.org/internal/notify"
	"pagegate.org/internal/obs"
	"pagegate.org/internal/store"
	"pagegate.org/internal/token"
)

var version = "1.0.0"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := sql.Open("pgx", cfg.PGDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		log.Fatalf("ping db: %v", err)
	}
	cancel()

	st := store.New(db)
	if err := st.EnsureDefaultAdmin(context.Background(), cfg.DefaultAdminMail, cfg.DefaultAdminPass); err != nil {
		log.Fatalf("seed default admin: %v", err)
	}

	tokens, err := token.NewAuthority(cfg.SigningKeyB64, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("token authority: %v", err)
	}

	resolver := geo.NewResolver(cfg.GeoEndpoint, cfg.GeoAccount, cfg.GeoLicense, cfg.GeoCacheLife)

	mailer := notify.NewSMTPMailer(cfg.SMTPServer, cfg.SMTPPort, cfg.MailPassword)
	notifyq := notify.NewQueue(mailer, resolver, cfg.MailFrom)
	notifyq.Start()

	sink, err := audit.NewFileSink(cfg.AccessLogPath)
	if err != nil {
		log.Fatalf("open access log: %v", err)
	}
	auditq := audit.NewQueue(sink, resolver)
	auditq.Start()

	api := httpapi.New(st, tokens, notifyq, auditq, httpapi.ReadyProbe{DB: db}, httpapi.Config{
		CookieDomain:   cfg.CookieDomain,
		NotifyMail:     cfg.NotifyMail,
		FrontendOrigin: cfg.FrontendOrigin,
		RateBurst:      cfg.RateBurst,
		RatePerSec:     cfg.RatePerSec,
	})

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting pagegate-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = sink.Close()
	_ = db.Close()
	log.Println("Stopped")
}
