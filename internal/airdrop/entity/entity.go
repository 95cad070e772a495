package entity

import "time"

// EligibleUser is a row in the eligible_users table. Allocated amounts are
// base-unit (wei) integers carried as decimal strings end to end; they are
// never coerced through a float.
type EligibleUser struct {
	WalletAddress   string     `db:"wallet_address" json:"walletAddress"`
	AllocatedAmount string     `db:"allocated_amount" json:"allocatedAmount"`
	XPPoints        int64      `db:"xp_points" json:"xpPoints"`
	Rank            int64      `db:"rank" json:"rank"`
	Claimed         bool       `db:"claimed" json:"claimed"`
	ClaimDate       *time.Time `db:"claim_date" json:"claimDate"`
	TxHash          *string    `db:"tx_hash" json:"txHash"`
	Signature       *string    `db:"signature" json:"-"`
	Attempts        int64      `db:"attempts" json:"attempts"`
	LastAttempt     *time.Time `db:"last_attempt" json:"lastAttempt"`
	IPAddress       *string    `db:"ip_address" json:"-"`
	Country         *string    `db:"country" json:"-"`
	CreatedAt       time.Time  `db:"created_at" json:"-"`
	UpdatedAt       time.Time  `db:"updated_at" json:"-"`
}

// Transaction states.
const (
	TxStatusPending   = "pending"
	TxStatusConfirmed = "confirmed"
	TxStatusFailed    = "failed"
)

// Transaction records one on-chain transfer attempt. Rows are created as
// pending and move to confirmed or failed; they are never deleted.
type Transaction struct {
	ID            int64     `db:"id" json:"-"`
	WalletAddress string    `db:"wallet_address" json:"walletAddress"`
	TxHash        string    `db:"tx_hash" json:"txHash"`
	Amount        string    `db:"amount" json:"amount"`
	Status        string    `db:"status" json:"status"`
	GasUsed       string    `db:"gas_used" json:"gasUsed"`
	GasPaid       string    `db:"gas_paid" json:"gasPaid"`
	BlockNumber   *int64    `db:"block_number" json:"blockNumber"`
	Error         *string   `db:"error" json:"error,omitempty"`
	RetryCount    int64     `db:"retry_count" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// Stats is the aggregate view over eligible_users. The amount sums are exact
// decimal strings computed in SQL over the NUMERIC column.
type Stats struct {
	TotalEligible    int64  `db:"total_eligible" json:"totalEligible"`
	TotalClaimed     int64  `db:"total_claimed" json:"totalClaimed"`
	TotalUnclaimed   int64  `db:"total_unclaimed" json:"totalUnclaimed"`
	TotalAllocated   string `db:"total_allocated" json:"totalAllocated"`
	TotalDistributed string `db:"total_distributed" json:"totalDistributed"`
}

// ClaimsByDay is one bucket of the admin dashboard's 7-day claim histogram.
type ClaimsByDay struct {
	Day         string `db:"day" json:"day"`
	Count       int64  `db:"count" json:"count"`
	TotalAmount string `db:"total_amount" json:"totalAmount"`
}
