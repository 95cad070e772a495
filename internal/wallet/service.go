package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shardrop/airdrop-registry/internal/airdrop/entity"
)

// Transfer modes. Registration-only records claims without moving funds;
// on-chain-transfer additionally sends the allocation from the backend wallet.
const (
	ModeRegistrationOnly = "registration-only"
	ModeOnChainTransfer  = "on-chain-transfer"
)

// ErrInsufficientFunds marks transfer failures the operator fixes by funding
// the backend wallet, as opposed to generic RPC errors.
var ErrInsufficientFunds = errors.New("backend wallet has insufficient balance")

type Config struct {
	RPCURL       string
	ChainID      int64
	PrivateKey   string
	TransferMode string
}

// ConfigFromEnv reads wallet config from environment variables.
func ConfigFromEnv() Config {
	chainID, _ := strconv.ParseInt(os.Getenv("CHAIN_ID"), 10, 64)
	mode := os.Getenv("TRANSFER_MODE")
	if mode == "" {
		mode = ModeRegistrationOnly
	}
	return Config{
		RPCURL:       os.Getenv("RPC_URL"),
		ChainID:      chainID,
		PrivateKey:   os.Getenv("PRIVATE_KEY"),
		TransferMode: mode,
	}
}

// TransactionLog is the slice of the transaction store the wallet service
// writes transfer attempts through.
type TransactionLog interface {
	Create(ctx context.Context, tx *entity.Transaction) error
	MarkConfirmed(ctx context.Context, txHash string, blockNumber int64, gasUsed, gasPaid string) error
	MarkFailed(ctx context.Context, txHash, errText string) error
}

// Service owns the backend signing key and the RPC connection. It is
// constructed once at startup; construction fails when the key or RPC URL is
// absent, and warns (only) on a chain-ID mismatch.
type Service struct {
	client  *ethclient.Client
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	mode    string
	txlog   TransactionLog
	logger  *zap.SugaredLogger
}

func New(ctx context.Context, cfg Config, txlog TransactionLog, logger *zap.SugaredLogger) (*Service, error) {
	if cfg.RPCURL == "" {
		return nil, errors.New("RPC_URL is not configured")
	}
	if cfg.PrivateKey == "" {
		return nil, errors.New("PRIVATE_KEY is not configured")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("query chain id: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		logger.Warnw("chain id mismatch", "expected", cfg.ChainID, "got", chainID.Int64())
	}

	mode := cfg.TransferMode
	if mode == "" {
		mode = ModeRegistrationOnly
	}

	s := &Service{
		client:  client,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		mode:    mode,
		txlog:   txlog,
		logger:  logger,
	}

	if bal, err := s.Balance(ctx); err != nil {
		logger.Warnw("initial balance check failed", "err", err)
	} else {
		logger.Infow("wallet initialized", "address", s.address.Hex(), "balance", FormatUnits(bal), "mode", mode)
		if bal.Sign() == 0 && mode == ModeOnChainTransfer {
			logger.Warn("backend wallet balance is zero; fund it before processing claims")
		}
	}
	return s, nil
}

// Address returns the backend wallet address.
func (s *Service) Address() string { return s.address.Hex() }

// TransferMode reports the configured claim behavior.
func (s *Service) TransferMode() string { return s.mode }

// Balance reads the backend wallet's native balance in base units.
func (s *Service) Balance(ctx context.Context) (*big.Int, error) {
	return s.client.BalanceAt(ctx, s.address, nil)
}

// FormattedBalance returns the balance as an ether-denominated string.
func (s *Service) FormattedBalance(ctx context.Context) (string, error) {
	bal, err := s.Balance(ctx)
	if err != nil {
		return "", err
	}
	return FormatUnits(bal), nil
}

// VerifySignature recovers the EIP-191 personal-message signer and compares
// it case-insensitively against the expected address. Recovery failures are
// reported as false, never as an error.
func (s *Service) VerifySignature(message, signature, expectedAddress string) bool {
	recovered, err := RecoverSigner(message, signature)
	if err != nil {
		if s.logger != nil {
			s.logger.Debugw("signature recovery failed", "err", err)
		}
		return false
	}
	return strings.EqualFold(recovered.Hex(), expectedAddress)
}

// RecoverSigner recovers the address that produced an EIP-191 personal
// signature over message.
func RecoverSigner(message, signature string) (common.Address, error) {
	sig := common.FromHex(signature)
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	// wallets emit V as 27/28; go-ethereum expects 0/1
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// FormatUnits renders a base-unit (wei) integer as a decimal ether string.
func FormatUnits(wei *big.Int) string {
	return decimal.NewFromBigInt(wei, -18).String()
}

// Receipt summarizes one confirmed transfer.
type Receipt struct {
	TxHash      string
	BlockNumber int64
	GasUsed     string
}

// GasEstimate carries the projected cost of a native transfer.
type GasEstimate struct {
	GasLimit uint64
	GasPrice *big.Int
	GasCost  *big.Int
}

// EstimateGas projects the gas needed to send amount to the target address.
func (s *Service) EstimateGas(ctx context.Context, to common.Address, amount *big.Int) (*GasEstimate, error) {
	gasLimit, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  s.address,
		To:    &to,
		Value: amount,
	})
	if err != nil {
		if isInsufficientFunds(err) {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
		}
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	cost := new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), gasPrice)
	return &GasEstimate{GasLimit: gasLimit, GasPrice: gasPrice, GasCost: cost}, nil
}

// SendNativeToken transfers amount base units to the recipient, records the
// attempt in the transaction log, and waits for one confirmation.
func (s *Service) SendNativeToken(ctx context.Context, toAddress string, amount *big.Int) (*Receipt, error) {
	to := common.HexToAddress(toAddress)

	balance, err := s.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	estimate, err := s.EstimateGas(ctx, to, amount)
	if err != nil {
		return nil, err
	}
	required := new(big.Int).Add(amount, estimate.GasCost)
	if balance.Cmp(required) < 0 {
		return nil, fmt.Errorf("%w: required %s, available %s",
			ErrInsufficientFunds, FormatUnits(required), FormatUnits(balance))
	}

	nonce, err := s.client.PendingNonceAt(ctx, s.address)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    amount,
		Gas:      estimate.GasLimit,
		GasPrice: estimate.GasPrice,
	})
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		if isInsufficientFunds(err) {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
		}
		return nil, fmt.Errorf("send tx: %w", err)
	}
	txHash := signedTx.Hash().Hex()
	s.logger.Infow("transaction sent", "txHash", txHash, "to", to.Hex(), "amount", FormatUnits(amount), "nonce", nonce)

	if err := s.txlog.Create(ctx, &entity.Transaction{
		WalletAddress: strings.ToLower(toAddress),
		TxHash:        txHash,
		Amount:        amount.String(),
		Status:        entity.TxStatusPending,
	}); err != nil {
		s.logger.Errorw("failed to record pending transaction", "txHash", txHash, "err", err)
	}

	receipt, err := bind.WaitMined(ctx, s.client, signedTx)
	if err != nil {
		s.markFailed(ctx, txHash, err)
		return nil, fmt.Errorf("await confirmation: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		err := errors.New("transaction reverted")
		s.markFailed(ctx, txHash, err)
		return nil, err
	}

	gasUsed := new(big.Int).SetUint64(receipt.GasUsed)
	gasPaid := new(big.Int).Mul(gasUsed, estimate.GasPrice)
	if err := s.txlog.MarkConfirmed(ctx, txHash, receipt.BlockNumber.Int64(), gasUsed.String(), gasPaid.String()); err != nil {
		s.logger.Errorw("failed to mark transaction confirmed", "txHash", txHash, "err", err)
	}
	s.logger.Infow("transaction confirmed", "txHash", txHash, "block", receipt.BlockNumber.Int64())

	return &Receipt{
		TxHash:      txHash,
		BlockNumber: receipt.BlockNumber.Int64(),
		GasUsed:     gasUsed.String(),
	}, nil
}

// SendERC20Token transfers amount of the given token contract's units to the
// recipient. The calldata is assembled by hand against the standard
// transfer(address,uint256) selector.
func (s *Service) SendERC20Token(ctx context.Context, toAddress string, amount *big.Int, tokenAddress string) (*Receipt, error) {
	token := common.HexToAddress(tokenAddress)
	to := common.HexToAddress(toAddress)

	balance, err := s.erc20Balance(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("read token balance: %w", err)
	}
	if balance.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: token required %s, available %s",
			ErrInsufficientFunds, amount.String(), balance.String())
	}

	data := erc20TransferData(to, amount)
	gasLimit, err := s.client.EstimateGas(ctx, ethereum.CallMsg{From: s.address, To: &token, Data: data})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	nonce, err := s.client.PendingNonceAt(ctx, s.address)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &token,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("send tx: %w", err)
	}
	txHash := signedTx.Hash().Hex()
	s.logger.Infow("erc20 transfer sent", "txHash", txHash, "token", token.Hex(), "to", to.Hex())

	if err := s.txlog.Create(ctx, &entity.Transaction{
		WalletAddress: strings.ToLower(toAddress),
		TxHash:        txHash,
		Amount:        amount.String(),
		Status:        entity.TxStatusPending,
	}); err != nil {
		s.logger.Errorw("failed to record pending transaction", "txHash", txHash, "err", err)
	}

	receipt, err := bind.WaitMined(ctx, s.client, signedTx)
	if err != nil {
		s.markFailed(ctx, txHash, err)
		return nil, fmt.Errorf("await confirmation: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		err := errors.New("erc20 transfer reverted")
		s.markFailed(ctx, txHash, err)
		return nil, err
	}

	gasUsed := new(big.Int).SetUint64(receipt.GasUsed)
	gasPaid := new(big.Int).Mul(gasUsed, gasPrice)
	if err := s.txlog.MarkConfirmed(ctx, txHash, receipt.BlockNumber.Int64(), gasUsed.String(), gasPaid.String()); err != nil {
		s.logger.Errorw("failed to mark transaction confirmed", "txHash", txHash, "err", err)
	}

	return &Receipt{
		TxHash:      txHash,
		BlockNumber: receipt.BlockNumber.Int64(),
		GasUsed:     gasUsed.String(),
	}, nil
}

func (s *Service) erc20Balance(ctx context.Context, token common.Address) (*big.Int, error) {
	selector := crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	data := append(selector, common.LeftPadBytes(s.address.Bytes(), 32)...)
	out, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(out), nil
}

func erc20TransferData(to common.Address, amount *big.Int) []byte {
	selector := crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]
	data := append([]byte(nil), selector...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}

func (s *Service) markFailed(ctx context.Context, txHash string, cause error) {
	if err := s.txlog.MarkFailed(ctx, txHash, cause.Error()); err != nil {
		s.logger.Errorw("failed to mark transaction failed", "txHash", txHash, "err", err)
	}
}

func isInsufficientFunds(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "insufficient funds")
}
