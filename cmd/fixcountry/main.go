package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/shardrop/airdrop-registry/internal/airdrop/repo"
	"github.com/shardrop/airdrop-registry/internal/geoip"
	"github.com/shardrop/airdrop-registry/pkg/database"
	"github.com/shardrop/airdrop-registry/pkg/utilities"
)

// Re-resolves countries for users whose stored value is missing or a
// sentinel. Lookups are throttled to stay inside the free-tier limits of the
// geolocation providers; sentinels are never written back over real data.
func main() {
	_ = godotenv.Load()

	lg, err := utilities.InitLogger(utilities.LogConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	sqlDB, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer sqlDB.Close()
	sqlxDB := sqlx.NewDb(sqlDB, "postgres")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	users := repo.NewUserRepo(sqlxDB)
	pending, err := users.UsersNeedingCountry(ctx)
	if err != nil {
		sugar.Fatalf("load users needing country: %v", err)
	}
	sugar.Infow("starting country correction", "pending", len(pending))

	geo := geoip.NewResolver(geoip.DefaultConfig(), sugar)
	var updated, unresolved int
	for i, u := range pending {
		if ctx.Err() != nil {
			sugar.Warnw("interrupted", "processed", i)
			break
		}
		if u.IPAddress == nil {
			continue
		}
		country := geo.Country(ctx, *u.IPAddress)
		if country == geoip.CountryUnknown || country == geoip.CountryPrivate {
			unresolved++
			continue
		}
		if err := users.UpdateCountry(ctx, u.WalletAddress, country); err != nil {
			sugar.Warnw("update failed", "wallet", u.WalletAddress, "err", err)
			continue
		}
		updated++

		// ip-api.com free tier allows 45 req/min
		time.Sleep(1500 * time.Millisecond)
	}
	sugar.Infow("country correction complete", "updated", updated, "unresolved", unresolved)
}
