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

	"tableside/internal/chessgame"
	"tableside/internal/config"
	"tableside/internal/connect4"
	"tableside/internal/handlers"
	"tableside/internal/identity"
	"tableside/internal/lobby"
	"tableside/internal/logging"
	"tableside/internal/storage"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Debug = cfg.Debug

	reg := lobby.NewRegistry()
	reg.Register(connect4.Rules{}.Config(), connect4.NewSession)
	reg.Register(chessgame.Rules{}.Config(), chessgame.NewSession)

	opts := []lobby.Option{lobby.WithGrace(cfg.RoomGrace), lobby.WithIdleTTL(cfg.RoomIdleTTL)}

	// Persistence is optional; without a DSN matches only live in memory.
	var store *storage.Store
	var rec *storage.Recorder
	if cfg.DatabaseURL != "" {
		db, err := storage.New(cfg.DatabaseURL, cfg.Debug)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		store = storage.NewStore(db)
		rec = storage.NewRecorder(store, 5*time.Second)
		opts = append(opts, lobby.WithRecorder(rec))
	} else {
		log.Printf("DATABASE_URL not set, match history disabled")
	}

	l := lobby.New(reg, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if rec != nil {
		if n := rec.Resume(ctx, l); n > 0 {
			log.Printf("resumed %d matches", n)
		}
	}
	go l.Run(ctx, cfg.SweepInterval)

	var id *identity.Provider
	if cfg.ClientID != "" {
		id = identity.New(cfg.ClientID, cfg.ClientSecret, cfg.RedirectURI)
	}
	h := handlers.NewHandler(l, id, store, version())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h.Routes(cfg.AllowOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	log.Printf("Tableside %s listening on http://localhost:%s …", version(), cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
