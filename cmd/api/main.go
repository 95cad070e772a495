package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/shardrop/airdrop-registry/internal/admin"
	"github.com/shardrop/airdrop-registry/internal/airdrop"
	"github.com/shardrop/airdrop-registry/internal/airdrop/repo"
	"github.com/shardrop/airdrop-registry/internal/captcha"
	"github.com/shardrop/airdrop-registry/internal/geoip"
	"github.com/shardrop/airdrop-registry/internal/ratelimit"
	"github.com/shardrop/airdrop-registry/internal/router"
	"github.com/shardrop/airdrop-registry/internal/wallet"
	"github.com/shardrop/airdrop-registry/pkg/database"
	"github.com/shardrop/airdrop-registry/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	_ = godotenv.Load()

	lg, err := utilities.InitLogger(utilities.LogConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()
	sugar.Info("starting airdrop-registry")

	sqlDB, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer sqlDB.Close()

	sqlxDB := sqlx.NewDb(sqlDB, "postgres")
	defer sqlxDB.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	users := repo.NewUserRepo(sqlxDB)
	txs := repo.NewTransactionRepo(sqlxDB)
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := users.EnsureTable(initCtx); err != nil {
		sugar.Fatalf("ensure eligible_users table: %v", err)
	}
	if err := txs.EnsureTable(initCtx); err != nil {
		sugar.Fatalf("ensure transactions table: %v", err)
	}

	walletSvc, err := wallet.New(initCtx, wallet.ConfigFromEnv(), txs, sugar)
	if err != nil {
		sugar.Fatalf("wallet init: %v", err)
	}

	geo := geoip.NewResolver(geoip.DefaultConfig(), sugar)
	verifier := captcha.FromEnv()
	service := airdrop.NewService(users, txs, walletSvc, verifier, geo, sugar)

	window := envDuration("RATE_LIMIT_WINDOW_MS", 15*time.Minute)
	maxReqs := envInt("RATE_LIMIT_MAX_REQUESTS", 100)
	claimLimiter := ratelimit.New(15*time.Minute, 5)

	devMode := os.Getenv("APP_ENV") == "development"
	airdropHandler := airdrop.NewHandler(service, claimLimiter, sugar, devMode)
	adminHandler := admin.NewHandler(users, txs, walletSvc, os.Getenv("API_SECRET_KEY"), sugar)

	handler := router.RegisterRoutes(airdropHandler, adminHandler, router.Config{
		FrontendURL:        os.Getenv("FRONTEND_URL"),
		StaticDir:          "web",
		GeneralLimiter:     ratelimit.New(window, maxReqs),
		EligibilityLimiter: ratelimit.New(time.Minute, 10),
	}, sugar)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: handler,
	}

	go func() {
		sugar.Infow("service is running", "addr", srv.Addr, "transferMode", walletSvc.TransferMode())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")

	doneCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	sugar.Info("goodbye")
}

func envDuration(name string, fallback time.Duration) time.Duration {
	ms, err := strconv.Atoi(os.Getenv(name))
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func envInt(name string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(name))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
