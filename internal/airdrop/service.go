package airdrop

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/shardrop/airdrop-registry/internal/airdrop/entity"
	"github.com/shardrop/airdrop-registry/internal/captcha"
	"github.com/shardrop/airdrop-registry/internal/wallet"
)

// ClaimMessagePrefix is the text wallets sign, followed by the lowercase
// wallet address. Changing it invalidates every outstanding frontend build.
const ClaimMessagePrefix = "Claim airdrop for "

// ClaimMessage builds the exact message a wallet must have signed.
func ClaimMessage(address string) string {
	return ClaimMessagePrefix + address
}

var (
	// ErrNotEligible means the wallet has no row in the eligibility list.
	ErrNotEligible = errors.New("wallet address is not eligible")
	// ErrBadSignature means signature recovery did not yield the claiming wallet.
	ErrBadSignature = errors.New("signature verification failed")
)

// AlreadyClaimedError carries the evidence of the earlier claim so callers can
// echo it back instead of a bare rejection.
type AlreadyClaimedError struct {
	TxHash    *string
	ClaimDate *time.Time
}

func (e *AlreadyClaimedError) Error() string { return "airdrop already claimed" }

// UserStore is the slice of the user repository the claim workflow needs.
type UserStore interface {
	FindByAddress(ctx context.Context, address string) (*entity.EligibleUser, error)
	StoreConnectionInfo(ctx context.Context, address, ip, country string) error
	MarkClaimed(ctx context.Context, address string, claimDate time.Time, ip, country, signature string, txHash *string) (bool, error)
	AttachTxHash(ctx context.Context, address, txHash string) error
	IncrementAttempt(ctx context.Context, address string) error
	Stats(ctx context.Context) (*entity.Stats, error)
	RecentClaims(ctx context.Context, limit int) ([]*entity.EligibleUser, error)
}

// TransactionStore exposes a wallet's transfer history.
type TransactionStore interface {
	FindByAddress(ctx context.Context, address string) ([]*entity.Transaction, error)
}

// WalletGateway is the wallet service surface the claim workflow uses.
type WalletGateway interface {
	VerifySignature(message, signature, expectedAddress string) bool
	Address() string
	TransferMode() string
	FormattedBalance(ctx context.Context) (string, error)
	SendNativeToken(ctx context.Context, toAddress string, amount *big.Int) (*wallet.Receipt, error)
}

// CountryResolver maps a client IP to a country name, never failing.
type CountryResolver interface {
	Country(ctx context.Context, ip string) string
}

// Service implements the claim workflow over its injected collaborators.
type Service struct {
	users   UserStore
	txs     TransactionStore
	wallet  WalletGateway
	captcha captcha.Verifier
	geo     CountryResolver
	logger  *zap.SugaredLogger
}

func NewService(users UserStore, txs TransactionStore, w WalletGateway, cv captcha.Verifier, geo CountryResolver, logger *zap.SugaredLogger) *Service {
	return &Service{users: users, txs: txs, wallet: w, captcha: cv, geo: geo, logger: logger}
}

// Eligibility is the outcome of a lookup against the eligibility list.
type Eligibility struct {
	WalletAddress   string     `json:"walletAddress"`
	AllocatedAmount string     `json:"allocatedAmount"`
	Formatted       string     `json:"allocatedAmountFormatted"`
	XPPoints        int64      `json:"xpPoints"`
	Rank            int64      `json:"rank"`
	Claimed         bool       `json:"claimed"`
	ClaimDate       *time.Time `json:"claimDate,omitempty"`
	TxHash          *string    `json:"txHash,omitempty"`
}

func eligibilityFromUser(u *entity.EligibleUser) *Eligibility {
	return &Eligibility{
		WalletAddress:   u.WalletAddress,
		AllocatedAmount: u.AllocatedAmount,
		Formatted:       formatAmount(u.AllocatedAmount),
		XPPoints:        u.XPPoints,
		Rank:            u.Rank,
		Claimed:         u.Claimed,
		ClaimDate:       u.ClaimDate,
		TxHash:          u.TxHash,
	}
}

// CheckEligibility looks a wallet up and, on its first sighting, records the
// caller's IP and country. Unknown wallets return ErrNotEligible.
func (s *Service) CheckEligibility(ctx context.Context, address, clientIP string) (*Eligibility, error) {
	user, err := s.users.FindByAddress(ctx, address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotEligible
	}
	if err != nil {
		return nil, fmt.Errorf("lookup eligibility: %w", err)
	}

	if user.IPAddress == nil || *user.IPAddress == "" {
		country := s.geo.Country(ctx, clientIP)
		if err := s.users.StoreConnectionInfo(ctx, address, clientIP, country); err != nil {
			s.logger.Warnw("failed to store connection info", "wallet", address, "err", err)
		}
	}
	return eligibilityFromUser(user), nil
}

// ClaimRequest is one validated claim attempt.
type ClaimRequest struct {
	WalletAddress string
	Signature     string
	CaptchaToken  string
	ClientIP      string
}

// ClaimResult reports a registered claim. TransferError is set when the claim
// registered but the follow-up on-chain transfer did not land; the failed
// attempt stays in the transaction log for retry.
type ClaimResult struct {
	WalletAddress   string
	Amount          string
	AmountFormatted string
	ClaimDate       time.Time
	TxHash          *string
	TransferError   *string
}

// Claim runs the full workflow: CAPTCHA, eligibility, duplicate check,
// signature verification, then a conditional claimed-flag update that admits
// exactly one winner per wallet. In on-chain-transfer mode the winner's
// allocation is sent after the claim registers.
func (s *Service) Claim(ctx context.Context, req ClaimRequest) (*ClaimResult, error) {
	if err := s.captcha.Verify(ctx, req.CaptchaToken, req.ClientIP); err != nil {
		s.bumpAttempt(ctx, req.WalletAddress)
		return nil, err
	}

	user, err := s.users.FindByAddress(ctx, req.WalletAddress)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotEligible
	}
	if err != nil {
		return nil, fmt.Errorf("lookup eligibility: %w", err)
	}
	if user.Claimed {
		return nil, &AlreadyClaimedError{TxHash: user.TxHash, ClaimDate: user.ClaimDate}
	}

	if !s.wallet.VerifySignature(ClaimMessage(req.WalletAddress), req.Signature, req.WalletAddress) {
		s.bumpAttempt(ctx, req.WalletAddress)
		return nil, ErrBadSignature
	}

	// reuse connection info stored by an earlier eligibility check; look the
	// country up only when it was never resolved
	ip, country := req.ClientIP, ""
	if user.IPAddress != nil && *user.IPAddress != "" {
		ip = *user.IPAddress
		if user.Country != nil {
			country = *user.Country
		}
	}
	if country == "" {
		country = s.geo.Country(ctx, ip)
	}
	claimDate := time.Now().UTC()

	won, err := s.users.MarkClaimed(ctx, req.WalletAddress, claimDate, ip, country, req.Signature, nil)
	if err != nil {
		s.bumpAttempt(ctx, req.WalletAddress)
		return nil, fmt.Errorf("register claim: %w", err)
	}
	if !won {
		// a concurrent claim got there first; report its evidence
		if cur, err := s.users.FindByAddress(ctx, req.WalletAddress); err == nil {
			return nil, &AlreadyClaimedError{TxHash: cur.TxHash, ClaimDate: cur.ClaimDate}
		}
		return nil, &AlreadyClaimedError{}
	}
	s.logger.Infow("claim registered", "wallet", req.WalletAddress, "amount", user.AllocatedAmount, "country", country)

	result := &ClaimResult{
		WalletAddress:   req.WalletAddress,
		Amount:          user.AllocatedAmount,
		AmountFormatted: formatAmount(user.AllocatedAmount),
		ClaimDate:       claimDate,
	}

	if s.wallet.TransferMode() == wallet.ModeOnChainTransfer {
		s.transfer(ctx, user, result)
	}
	return result, nil
}

// bumpAttempt saturates the abuse counter; its own failure is logged, never
// escalated.
func (s *Service) bumpAttempt(ctx context.Context, address string) {
	if err := s.users.IncrementAttempt(ctx, address); err != nil {
		s.logger.Warnw("failed to record claim attempt", "wallet", address, "err", err)
	}
}

func (s *Service) transfer(ctx context.Context, user *entity.EligibleUser, result *ClaimResult) {
	amount, ok := new(big.Int).SetString(user.AllocatedAmount, 10)
	if !ok {
		msg := "stored allocation is not a valid integer"
		s.logger.Errorw("transfer skipped", "wallet", user.WalletAddress, "amount", user.AllocatedAmount)
		result.TransferError = &msg
		return
	}
	receipt, err := s.wallet.SendNativeToken(ctx, user.WalletAddress, amount)
	if err != nil {
		msg := "token transfer failed"
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			msg = "token transfer deferred: backend wallet needs funding"
		}
		s.logger.Errorw("transfer failed after claim registration", "wallet", user.WalletAddress, "err", err)
		result.TransferError = &msg
		return
	}
	result.TxHash = &receipt.TxHash
	if err := s.users.AttachTxHash(ctx, user.WalletAddress, receipt.TxHash); err != nil {
		s.logger.Errorw("failed to attach tx hash to claim", "wallet", user.WalletAddress, "txHash", receipt.TxHash, "err", err)
	}
}

// Status returns a wallet's claim record with its transfer history.
func (s *Service) Status(ctx context.Context, address string) (*Eligibility, []*entity.Transaction, error) {
	user, err := s.users.FindByAddress(ctx, address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotEligible
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lookup claim status: %w", err)
	}
	txs, err := s.txs.FindByAddress(ctx, address)
	if err != nil {
		s.logger.Warnw("failed to load transfer history", "wallet", address, "err", err)
		txs = nil
	}
	return eligibilityFromUser(user), txs, nil
}

// StatsResult is the public stats payload.
type StatsResult struct {
	*entity.Stats
	ClaimPercentage string `json:"claimPercentage"`
	WalletAddress   string `json:"backendWallet"`
	WalletBalance   string `json:"backendWalletBalance"`
}

// Stats aggregates claim figures and the backend wallet balance.
func (s *Service) Stats(ctx context.Context) (*StatsResult, error) {
	stats, err := s.users.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate stats: %w", err)
	}
	out := &StatsResult{Stats: stats, ClaimPercentage: "0.00", WalletAddress: s.wallet.Address()}
	if stats.TotalEligible > 0 {
		pct := float64(stats.TotalClaimed) / float64(stats.TotalEligible) * 100
		out.ClaimPercentage = strconv.FormatFloat(pct, 'f', 2, 64)
	}
	if bal, err := s.wallet.FormattedBalance(ctx); err != nil {
		s.logger.Warnw("failed to read wallet balance", "err", err)
		out.WalletBalance = "unavailable"
	} else {
		out.WalletBalance = bal
	}
	return out, nil
}

// RecentClaim is one row of the public recent-claims feed. Wallet addresses
// are truncated and IP/country withheld.
type RecentClaim struct {
	WalletAddress string     `json:"walletAddress"`
	Amount        string     `json:"amountFormatted"`
	ClaimDate     *time.Time `json:"claimDate"`
}

// RecentClaims returns the latest claims with addresses shortened for display.
func (s *Service) RecentClaims(ctx context.Context, limit int) ([]*RecentClaim, error) {
	if limit < 1 || limit > 100 {
		limit = 10
	}
	users, err := s.users.RecentClaims(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load recent claims: %w", err)
	}
	out := make([]*RecentClaim, 0, len(users))
	for _, u := range users {
		out = append(out, &RecentClaim{
			WalletAddress: shortenAddress(u.WalletAddress),
			Amount:        formatAmount(u.AllocatedAmount),
			ClaimDate:     u.ClaimDate,
		})
	}
	return out, nil
}

func shortenAddress(address string) string {
	if len(address) < 12 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

func formatAmount(wei string) string {
	n, ok := new(big.Int).SetString(wei, 10)
	if !ok {
		return wei
	}
	return wallet.FormatUnits(n)
}
