package airdrop

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/shardrop/airdrop-registry/internal/captcha"
	"github.com/shardrop/airdrop-registry/internal/geoip"
	"github.com/shardrop/airdrop-registry/internal/ratelimit"
)

func isCaptchaError(err error) bool {
	return errors.Is(err, captcha.ErrMissingToken) || errors.Is(err, captcha.ErrInvalidToken)
}

const minSignatureLength = 100

// Handler exposes the public claim endpoints. The claim limiter is keyed by
// wallet address, so it runs inside the handler after the body is decoded
// rather than as middleware.
type Handler struct {
	service      *Service
	claimLimiter *ratelimit.Limiter
	logger       *zap.SugaredLogger
	devMode      bool
}

func NewHandler(service *Service, claimLimiter *ratelimit.Limiter, logger *zap.SugaredLogger, devMode bool) *Handler {
	return &Handler{service: service, claimLimiter: claimLimiter, logger: logger, devMode: devMode}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Errorw("failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]any{"success": false, "message": message}
	if err != nil && h.devMode {
		body["error"] = err.Error()
	}
	h.writeJSON(w, status, body)
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// normalizeAddress validates a hex wallet address and lowercases it.
func normalizeAddress(address string) (string, bool) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return "", false
	}
	return strings.ToLower(common.HexToAddress(address).Hex()), true
}

type eligibilityRequest struct {
	WalletAddress string `json:"walletAddress"`
}

// CheckEligibility handles POST /api/check-eligibility.
func (h *Handler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	var req eligibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	address, ok := normalizeAddress(req.WalletAddress)
	if !ok {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "Validation failed",
			"errors":  []fieldError{{Field: "walletAddress", Message: "must be a valid wallet address"}},
		})
		return
	}

	result, err := h.service.CheckEligibility(r.Context(), address, geoip.ClientIP(r))
	if errors.Is(err, ErrNotEligible) {
		h.writeJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"eligible": false,
			"message":  "Wallet address is not eligible for the airdrop",
		})
		return
	}
	if err != nil {
		h.logger.Errorw("eligibility check failed", "wallet", address, "err", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to check eligibility", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"eligible": true,
		"data":     result,
	})
}

type claimRequest struct {
	WalletAddress string `json:"walletAddress"`
	Signature     string `json:"signature"`
	CaptchaToken  string `json:"captchaToken"`
}

// Claim handles POST /api/claim.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var fieldErrors []fieldError
	address, ok := normalizeAddress(req.WalletAddress)
	if !ok {
		fieldErrors = append(fieldErrors, fieldError{Field: "walletAddress", Message: "must be a valid wallet address"})
	}
	if len(req.Signature) < minSignatureLength {
		fieldErrors = append(fieldErrors, fieldError{Field: "signature", Message: "must be a valid signature"})
	}
	if strings.TrimSpace(req.CaptchaToken) == "" {
		fieldErrors = append(fieldErrors, fieldError{Field: "captchaToken", Message: "captcha token is required"})
	}
	if len(fieldErrors) > 0 {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "Validation failed",
			"errors":  fieldErrors,
		})
		return
	}

	if !h.claimLimiter.Allow(address) {
		h.writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"success": false,
			"message": "Too many claim attempts for this wallet, please try again later",
		})
		return
	}

	result, err := h.service.Claim(r.Context(), ClaimRequest{
		WalletAddress: address,
		Signature:     req.Signature,
		CaptchaToken:  req.CaptchaToken,
		ClientIP:      geoip.ClientIP(r),
	})
	if err != nil {
		h.writeClaimError(w, address, err)
		return
	}

	body := map[string]any{
		"success":         true,
		"message":         "Airdrop claim registered successfully",
		"walletAddress":   result.WalletAddress,
		"amount":          result.Amount,
		"amountFormatted": result.AmountFormatted,
		"claimDate":       result.ClaimDate,
		"txHash":          result.TxHash,
	}
	if result.TransferError != nil {
		body["transferError"] = *result.TransferError
	}
	h.writeJSON(w, http.StatusOK, body)
}

func (h *Handler) writeClaimError(w http.ResponseWriter, address string, err error) {
	var already *AlreadyClaimedError
	switch {
	case errors.As(err, &already):
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"success":   false,
			"message":   "Airdrop already claimed",
			"txHash":    already.TxHash,
			"claimDate": already.ClaimDate,
		})
	case errors.Is(err, ErrNotEligible):
		h.writeError(w, http.StatusBadRequest, "Wallet address is not eligible for the airdrop", nil)
	case errors.Is(err, ErrBadSignature):
		h.writeError(w, http.StatusBadRequest, "Signature verification failed", nil)
	case isCaptchaError(err):
		h.writeError(w, http.StatusBadRequest, "Captcha verification failed", err)
	default:
		h.logger.Errorw("claim failed", "wallet", address, "err", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to process claim", err)
	}
}

// ClaimStatus handles GET /api/claim-status/{address}.
func (h *Handler) ClaimStatus(w http.ResponseWriter, r *http.Request) {
	address, ok := normalizeAddress(r.PathValue("address"))
	if !ok {
		h.writeError(w, http.StatusBadRequest, "Invalid wallet address", nil)
		return
	}
	status, txs, err := h.service.Status(r.Context(), address)
	if errors.Is(err, ErrNotEligible) {
		h.writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"found":   false,
			"message": "Address not found in eligible list",
		})
		return
	}
	if err != nil {
		h.logger.Errorw("claim status lookup failed", "wallet", address, "err", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to fetch claim status", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"found":        true,
		"data":         status,
		"transactions": txs,
	})
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.logger.Errorw("stats aggregation failed", "err", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to fetch statistics", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
}

// RecentClaims handles GET /api/recent-claims.
func (h *Handler) RecentClaims(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	claims, err := h.service.RecentClaims(r.Context(), limit)
	if err != nil {
		h.logger.Errorw("recent claims lookup failed", "err", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to fetch recent claims", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "claims": claims})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Airdrop registry is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
