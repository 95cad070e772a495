package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/shardrop/airdrop-registry/internal/airdrop/entity"
	"github.com/shardrop/airdrop-registry/pkg/utilities"
)

// TransactionRepo persists on-chain transfer attempts.
type TransactionRepo struct {
	db *sqlx.DB
}

func NewTransactionRepo(db *sqlx.DB) *TransactionRepo { return &TransactionRepo{db: db} }

// EnsureTable creates the transactions table if not exists (idempotent).
func (r *TransactionRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS transactions (
  id BIGINT PRIMARY KEY,
  wallet_address TEXT NOT NULL,
  tx_hash TEXT NOT NULL UNIQUE,
  amount NUMERIC(78,0) NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  gas_used TEXT NOT NULL DEFAULT '0',
  gas_paid TEXT NOT NULL DEFAULT '0',
  block_number BIGINT,
  error TEXT,
  retry_count BIGINT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_transactions_wallet ON transactions(wallet_address, status);
CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at DESC);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

const txColumns = `id, wallet_address, tx_hash, amount::text AS amount, status,
	gas_used, gas_paid, block_number, error, retry_count, created_at`

// Create inserts a pending transaction row and fills in its generated ID.
func (r *TransactionRepo) Create(ctx context.Context, tx *entity.Transaction) error {
	if tx.ID == 0 {
		tx.ID = utilities.NewRecordID()
	}
	if tx.Status == "" {
		tx.Status = entity.TxStatusPending
	}
	const q = `INSERT INTO transactions (id, wallet_address, tx_hash, amount, status)
		VALUES ($1, LOWER($2), $3, CAST($4 AS NUMERIC), $5)`
	_, err := r.db.ExecContext(ctx, q, tx.ID, tx.WalletAddress, tx.TxHash, tx.Amount, tx.Status)
	return err
}

// MarkConfirmed transitions a pending row to confirmed with its receipt data.
func (r *TransactionRepo) MarkConfirmed(ctx context.Context, txHash string, blockNumber int64, gasUsed, gasPaid string) error {
	const q = `UPDATE transactions
		SET status = 'confirmed', block_number = $2, gas_used = $3, gas_paid = $4
		WHERE tx_hash = $1`
	_, err := r.db.ExecContext(ctx, q, txHash, blockNumber, gasUsed, gasPaid)
	return err
}

// MarkFailed transitions a row to failed, keeping the error text.
func (r *TransactionRepo) MarkFailed(ctx context.Context, txHash, errText string) error {
	const q = `UPDATE transactions SET status = 'failed', error = $2 WHERE tx_hash = $1`
	_, err := r.db.ExecContext(ctx, q, txHash, errText)
	return err
}

// FindByAddress returns a wallet's transfer history, newest first.
func (r *TransactionRepo) FindByAddress(ctx context.Context, address string) ([]*entity.Transaction, error) {
	q := `SELECT ` + txColumns + ` FROM transactions
		WHERE wallet_address = LOWER($1) ORDER BY created_at DESC`
	var txs []*entity.Transaction
	if err := r.db.SelectContext(ctx, &txs, q, address); err != nil {
		return nil, err
	}
	return txs, nil
}

// Recent returns the latest transfer attempts across all wallets.
func (r *TransactionRepo) Recent(ctx context.Context, limit int) ([]*entity.Transaction, error) {
	q := `SELECT ` + txColumns + ` FROM transactions ORDER BY created_at DESC LIMIT $1`
	var txs []*entity.Transaction
	if err := r.db.SelectContext(ctx, &txs, q, limit); err != nil {
		return nil, err
	}
	return txs, nil
}

// RecentFailed returns the latest failed transfers.
func (r *TransactionRepo) RecentFailed(ctx context.Context, limit int) ([]*entity.Transaction, error) {
	q := `SELECT ` + txColumns + ` FROM transactions
		WHERE status = 'failed' ORDER BY created_at DESC LIMIT $1`
	var txs []*entity.Transaction
	if err := r.db.SelectContext(ctx, &txs, q, limit); err != nil {
		return nil, err
	}
	return txs, nil
}
