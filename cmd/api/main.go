package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aditi21Attri/VM-visa-backend-sub001/auth"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/db"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/document"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/gateway"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/notify"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/payment"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/workflow"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}
	verifier := auth.NewService(jwtSecret)
	if hash := os.Getenv("ARBITER_KEY_HASH"); hash != "" {
		verifier = verifier.WithArbiterKeyHash(hash)
	}

	var docs document.Store
	if base := os.Getenv("DOCS_BASE_URL"); base != "" {
		docs = document.NewPrefixStore(base)
	}

	store := workflow.NewPGStore(pool)
	engine := workflow.NewEngine(store, workflow.NewPGProposals(pool))
	server := gateway.NewServer(engine, verifier, payment.NewSandbox(), docs, log.Default())

	dispatcher := notify.NewDispatcher(notify.NewPGOutbox(pool), notify.NewLogSink(log.Default()), log.Default())
	if v := os.Getenv("OUTBOX_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("parse OUTBOX_INTERVAL: %v", err)
		}
		dispatcher = dispatcher.WithInterval(interval)
	}

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("escrow api listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return dispatcher.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("escrow api: %v", err)
	}
	log.Print("escrow api stopped")
}
