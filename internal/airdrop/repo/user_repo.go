package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shardrop/airdrop-registry/internal/airdrop/entity"
)

// UserRepo provides data access for the eligible_users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the eligible_users table if not exists (idempotent).
// Amounts are NUMERIC(78,0): wide enough for any uint256 base-unit value,
// summed exactly by Postgres without float coercion.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS eligible_users (
  wallet_address TEXT PRIMARY KEY,
  allocated_amount NUMERIC(78,0) NOT NULL,
  xp_points BIGINT NOT NULL DEFAULT 0,
  rank BIGINT NOT NULL,
  claimed BOOLEAN NOT NULL DEFAULT false,
  claim_date TIMESTAMPTZ,
  tx_hash TEXT,
  signature TEXT,
  attempts BIGINT NOT NULL DEFAULT 0,
  last_attempt TIMESTAMPTZ,
  ip_address TEXT,
  country TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_eligible_users_claimed ON eligible_users(claimed);
CREATE INDEX IF NOT EXISTS idx_eligible_users_rank ON eligible_users(rank);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

const userColumns = `wallet_address, allocated_amount::text AS allocated_amount, xp_points, rank,
	claimed, claim_date, tx_hash, signature, attempts, last_attempt,
	ip_address, country, created_at, updated_at`

// FindByAddress returns the record for a wallet, matching case-insensitively,
// or sql.ErrNoRows.
func (r *UserRepo) FindByAddress(ctx context.Context, address string) (*entity.EligibleUser, error) {
	q := `SELECT ` + userColumns + ` FROM eligible_users WHERE wallet_address = LOWER($1)`
	var u entity.EligibleUser
	if err := r.db.GetContext(ctx, &u, q, address); err != nil {
		return nil, err
	}
	return &u, nil
}

// StoreConnectionInfo records the client IP and country seen on a first
// eligibility check. Existing non-empty values are kept.
func (r *UserRepo) StoreConnectionInfo(ctx context.Context, address, ip, country string) error {
	const q = `UPDATE eligible_users
		SET ip_address = COALESCE(NULLIF(ip_address, ''), $2),
		    country    = COALESCE(NULLIF(country, ''), $3),
		    updated_at = NOW()
		WHERE wallet_address = LOWER($1)`
	_, err := r.db.ExecContext(ctx, q, address, ip, country)
	return err
}

// MarkClaimed flips the claimed flag with a conditional update: it succeeds
// only while the row is still unclaimed, so of two concurrent claims exactly
// one observes true. txHash stays NULL in registration-only mode.
func (r *UserRepo) MarkClaimed(ctx context.Context, address string, claimDate time.Time, ip, country, signature string, txHash *string) (bool, error) {
	const q = `UPDATE eligible_users
		SET claimed = true,
		    claim_date = $2,
		    ip_address = COALESCE(NULLIF($3, ''), ip_address),
		    country    = COALESCE(NULLIF($4, ''), country),
		    signature  = $5,
		    tx_hash    = $6,
		    updated_at = NOW()
		WHERE wallet_address = LOWER($1) AND claimed = false`
	res, err := r.db.ExecContext(ctx, q, address, claimDate, ip, country, signature, txHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AttachTxHash records the transfer hash on an already-claimed row. The claim
// itself is registered first via MarkClaimed; the transfer follows.
func (r *UserRepo) AttachTxHash(ctx context.Context, address, txHash string) error {
	const q = `UPDATE eligible_users SET tx_hash = $2, updated_at = NOW()
		WHERE wallet_address = LOWER($1) AND claimed = true`
	_, err := r.db.ExecContext(ctx, q, address, txHash)
	return err
}

// IncrementAttempt bumps the abuse counter. Callers treat a failure here as
// log-only; it never fails the surrounding operation.
func (r *UserRepo) IncrementAttempt(ctx context.Context, address string) error {
	const q = `UPDATE eligible_users
		SET attempts = attempts + 1, last_attempt = NOW(), updated_at = NOW()
		WHERE wallet_address = LOWER($1)`
	_, err := r.db.ExecContext(ctx, q, address)
	return err
}

// Stats aggregates counts and exact amount sums over the whole table.
func (r *UserRepo) Stats(ctx context.Context) (*entity.Stats, error) {
	const q = `SELECT
		COUNT(*) AS total_eligible,
		COUNT(*) FILTER (WHERE claimed) AS total_claimed,
		COUNT(*) FILTER (WHERE NOT claimed) AS total_unclaimed,
		COALESCE(SUM(allocated_amount), 0)::text AS total_allocated,
		COALESCE(SUM(allocated_amount) FILTER (WHERE claimed), 0)::text AS total_distributed
	FROM eligible_users`
	var s entity.Stats
	if err := r.db.GetContext(ctx, &s, q); err != nil {
		return nil, err
	}
	return &s, nil
}

// RecentClaims returns the most recently claimed records, newest first.
func (r *UserRepo) RecentClaims(ctx context.Context, limit int) ([]*entity.EligibleUser, error) {
	q := `SELECT ` + userColumns + ` FROM eligible_users
		WHERE claimed ORDER BY claim_date DESC LIMIT $1`
	var users []*entity.EligibleUser
	if err := r.db.SelectContext(ctx, &users, q, limit); err != nil {
		return nil, err
	}
	return users, nil
}

// TopClaimers returns claimed records ordered by allocation size.
func (r *UserRepo) TopClaimers(ctx context.Context, limit int) ([]*entity.EligibleUser, error) {
	q := `SELECT ` + userColumns + ` FROM eligible_users
		WHERE claimed ORDER BY allocated_amount DESC LIMIT $1`
	var users []*entity.EligibleUser
	if err := r.db.SelectContext(ctx, &users, q, limit); err != nil {
		return nil, err
	}
	return users, nil
}

// List returns a rank-ordered page of users, optionally filtered on the
// claimed flag (nil means no filter).
func (r *UserRepo) List(ctx context.Context, claimed *bool, limit, offset int) ([]*entity.EligibleUser, error) {
	q := `SELECT ` + userColumns + ` FROM eligible_users
		WHERE ($1::boolean IS NULL OR claimed = $1)
		ORDER BY rank ASC LIMIT $2 OFFSET $3`
	var users []*entity.EligibleUser
	if err := r.db.SelectContext(ctx, &users, q, claimed, limit, offset); err != nil {
		return nil, err
	}
	return users, nil
}

// Count returns the user count under the same optional claimed filter List uses.
func (r *UserRepo) Count(ctx context.Context, claimed *bool) (int64, error) {
	const q = `SELECT COUNT(*) FROM eligible_users
		WHERE ($1::boolean IS NULL OR claimed = $1)`
	var n int64
	if err := r.db.GetContext(ctx, &n, q, claimed); err != nil {
		return 0, err
	}
	return n, nil
}

// ClaimedUsers returns every claimed record newest-claim-first, for CSV export.
func (r *UserRepo) ClaimedUsers(ctx context.Context) ([]*entity.EligibleUser, error) {
	q := `SELECT ` + userColumns + ` FROM eligible_users
		WHERE claimed ORDER BY claim_date DESC`
	var users []*entity.EligibleUser
	if err := r.db.SelectContext(ctx, &users, q); err != nil {
		return nil, err
	}
	return users, nil
}

// ClaimsByDay buckets claims per calendar day since the given time.
func (r *UserRepo) ClaimsByDay(ctx context.Context, since time.Time) ([]*entity.ClaimsByDay, error) {
	const q = `SELECT to_char(claim_date, 'YYYY-MM-DD') AS day,
		COUNT(*) AS count,
		COALESCE(SUM(allocated_amount), 0)::text AS total_amount
	FROM eligible_users
	WHERE claimed AND claim_date >= $1
	GROUP BY 1 ORDER BY 1`
	var rows []*entity.ClaimsByDay
	if err := r.db.SelectContext(ctx, &rows, q, since); err != nil {
		return nil, err
	}
	return rows, nil
}

// BulkInsert loads imported leaderboard rows, skipping wallets already
// present. Returns the number of rows actually inserted.
func (r *UserRepo) BulkInsert(ctx context.Context, users []*entity.EligibleUser) (int64, error) {
	const q = `INSERT INTO eligible_users (wallet_address, allocated_amount, xp_points, rank, claimed)
		VALUES (LOWER(:wallet_address), CAST(:allocated_amount AS NUMERIC), :xp_points, :rank, false)
		ON CONFLICT (wallet_address) DO NOTHING`
	var inserted int64
	for _, u := range users {
		res, err := r.db.NamedExecContext(ctx, q, u)
		if err != nil {
			return inserted, err
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		}
	}
	return inserted, nil
}

// UsersNeedingCountry returns users that carry an IP but no usable country.
// The corrective batch job uses this as its working set.
func (r *UserRepo) UsersNeedingCountry(ctx context.Context) ([]*entity.EligibleUser, error) {
	q := `SELECT ` + userColumns + ` FROM eligible_users
		WHERE ip_address IS NOT NULL AND ip_address <> ''
		  AND (country IS NULL OR country IN ('', 'Local/Private', 'Unknown'))
		ORDER BY rank ASC`
	var users []*entity.EligibleUser
	if err := r.db.SelectContext(ctx, &users, q); err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateCountry overwrites the country for one wallet (corrective job only).
func (r *UserRepo) UpdateCountry(ctx context.Context, address, country string) error {
	const q = `UPDATE eligible_users SET country = $2, updated_at = NOW()
		WHERE wallet_address = LOWER($1)`
	_, err := r.db.ExecContext(ctx, q, address, country)
	return err
}
