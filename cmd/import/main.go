package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/shardrop/airdrop-registry/internal/airdrop"
	"github.com/shardrop/airdrop-registry/internal/airdrop/entity"
	"github.com/shardrop/airdrop-registry/internal/airdrop/repo"
	"github.com/shardrop/airdrop-registry/pkg/database"
	"github.com/shardrop/airdrop-registry/pkg/utilities"
)

// Loads a leaderboard CSV into the eligibility table. Expected columns:
// Wallet, XP and optionally Rank (case-insensitive; wallet_address and
// xp_points are accepted as aliases). Without a rank column the row order is
// the rank. Allocations are derived from the rank tiers.
func main() {
	file := flag.String("file", "", "path to the leaderboard CSV")
	flag.Parse()

	_ = godotenv.Load()

	lg, err := utilities.InitLogger(utilities.LogConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	if *file == "" {
		sugar.Fatal("usage: import -file leaderboard.csv")
	}

	f, err := os.Open(*file)
	if err != nil {
		sugar.Fatalf("open leaderboard: %v", err)
	}
	defer f.Close()

	sqlDB, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer sqlDB.Close()
	sqlxDB := sqlx.NewDb(sqlDB, "postgres")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	users := repo.NewUserRepo(sqlxDB)
	if err := users.EnsureTable(ctx); err != nil {
		sugar.Fatalf("ensure eligible_users table: %v", err)
	}

	rows, skipped, err := parseLeaderboard(f)
	if err != nil {
		sugar.Fatalf("parse leaderboard: %v", err)
	}

	inserted, err := users.BulkInsert(ctx, rows)
	if err != nil {
		sugar.Fatalf("import aborted after %d inserts: %v", inserted, err)
	}
	sugar.Infow("import complete",
		"parsed", len(rows),
		"inserted", inserted,
		"duplicates", int64(len(rows))-inserted,
		"skipped", skipped,
	)
}

func findColumn(col map[string]int, names ...string) (int, bool) {
	for _, name := range names {
		if i, ok := col[name]; ok {
			return i, true
		}
	}
	return 0, false
}

func parseLeaderboard(r io.Reader) (rows []*entity.EligibleUser, skipped int, err error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF")))] = i
	}
	addrIdx, ok := findColumn(col, "wallet", "wallet_address")
	if !ok {
		return nil, 0, fmt.Errorf("missing wallet column")
	}
	xpIdx, hasXP := findColumn(col, "xp", "xp_points")
	rankIdx, hasRank := findColumn(col, "rank")

	line := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read row: %w", err)
		}
		line++

		address := strings.TrimSpace(record[addrIdx])
		if !common.IsHexAddress(address) {
			skipped++
			continue
		}

		rank := int64(line)
		if hasRank {
			if v, err := strconv.ParseInt(strings.TrimSpace(record[rankIdx]), 10, 64); err == nil {
				rank = v
			}
		}
		var xp int64
		if hasXP {
			xp, _ = strconv.ParseInt(strings.TrimSpace(record[xpIdx]), 10, 64)
		}

		rows = append(rows, &entity.EligibleUser{
			WalletAddress:   strings.ToLower(common.HexToAddress(address).Hex()),
			AllocatedAmount: airdrop.AllocationForRank(rank).String(),
			XPPoints:        xp,
			Rank:            rank,
		})
	}
	return rows, skipped, nil
}
