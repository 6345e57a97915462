package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tamarabolmanac/hajki-quiz/internal/auth"
	"github.com/tamarabolmanac/hajki-quiz/internal/challenge"
	"github.com/tamarabolmanac/hajki-quiz/internal/config"
	"github.com/tamarabolmanac/hajki-quiz/internal/httpapi"
	"github.com/tamarabolmanac/hajki-quiz/internal/hub"
	"github.com/tamarabolmanac/hajki-quiz/internal/presence"
	"github.com/tamarabolmanac/hajki-quiz/internal/quiz"
	"github.com/tamarabolmanac/hajki-quiz/internal/store"
	"github.com/tamarabolmanac/hajki-quiz/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file: %v", err)
	}
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}

	rules := quiz.Rules{Questions: cfg.QuestionsPerGame, TimerSec: cfg.QuestionTimerSec}
	h := hub.NewHub(ctx, db, rules, logger)
	tracker := presence.NewTracker(logger)
	broker := challenge.NewBroker(h, cfg.ChallengeTTL, logger)
	authSvc := auth.NewService(cfg.JWTSecret, cfg.TokenTTL)

	cable := ws.Handler(ws.Deps{
		Auth:     authSvc,
		Presence: tracker,
		Broker:   broker,
		Hub:      h,
		Users:    db,
		Log:      logger,
	})
	api := &httpapi.API{Users: db, Auth: authSvc, Presence: tracker, Log: logger}

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.SetupRoutes(api, cable)}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		h.Inbox() <- hub.ShutdownHub{}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

// openStore picks Postgres when configured and the built-in bank otherwise,
// so a checkout runs without any infrastructure.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("DATABASE_URL not set, using in-memory store")
		return store.NewMemory(), nil
	}
	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.SeedQuestions(ctx); err != nil {
		return nil, err
	}
	return db, nil
}
