package admin

import (
	"context"
	"crypto/subtle"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/shardrop/airdrop-registry/internal/airdrop/entity"
)

// UserStore is the slice of the user repository the admin surface reads.
type UserStore interface {
	Stats(ctx context.Context) (*entity.Stats, error)
	List(ctx context.Context, claimed *bool, limit, offset int) ([]*entity.EligibleUser, error)
	Count(ctx context.Context, claimed *bool) (int64, error)
	ClaimedUsers(ctx context.Context) ([]*entity.EligibleUser, error)
	TopClaimers(ctx context.Context, limit int) ([]*entity.EligibleUser, error)
	ClaimsByDay(ctx context.Context, since time.Time) ([]*entity.ClaimsByDay, error)
}

// TransactionStore exposes transfer history for the dashboard.
type TransactionStore interface {
	Recent(ctx context.Context, limit int) ([]*entity.Transaction, error)
	RecentFailed(ctx context.Context, limit int) ([]*entity.Transaction, error)
}

// WalletInfo reports the backend wallet for the dashboard.
type WalletInfo interface {
	Address() string
	FormattedBalance(ctx context.Context) (string, error)
}

// Handler serves the admin endpoints. All routes sit behind Auth.
type Handler struct {
	users  UserStore
	txs    TransactionStore
	wallet WalletInfo
	apiKey string
	logger *zap.SugaredLogger
}

func NewHandler(users UserStore, txs TransactionStore, wallet WalletInfo, apiKey string, logger *zap.SugaredLogger) *Handler {
	return &Handler{users: users, txs: txs, wallet: wallet, apiKey: apiKey, logger: logger}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Errorw("failed to encode response", "err", err)
	}
}

// Auth gates admin routes on the x-admin-key header. The comparison is
// constant-time; an unset server key rejects everything.
func (h *Handler) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("x-admin-key")
		if h.apiKey == "" || key == "" ||
			subtle.ConstantTimeCompare([]byte(key), []byte(h.apiKey)) != 1 {
			h.writeJSON(w, http.StatusUnauthorized, map[string]any{
				"success": false,
				"message": "Unauthorized",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Dashboard handles GET /api/admin/dashboard.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.users.Stats(ctx)
	if err != nil {
		h.logger.Errorw("dashboard stats failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Failed to build dashboard"})
		return
	}

	recentTx, err := h.txs.Recent(ctx, 20)
	if err != nil {
		h.logger.Warnw("dashboard recent transactions failed", "err", err)
	}
	failedTx, err := h.txs.RecentFailed(ctx, 10)
	if err != nil {
		h.logger.Warnw("dashboard failed transactions failed", "err", err)
	}
	topClaimers, err := h.users.TopClaimers(ctx, 10)
	if err != nil {
		h.logger.Warnw("dashboard top claimers failed", "err", err)
	}
	claimsByDay, err := h.users.ClaimsByDay(ctx, time.Now().UTC().AddDate(0, 0, -7))
	if err != nil {
		h.logger.Warnw("dashboard claims-by-day failed", "err", err)
	}

	balance := "unavailable"
	if b, err := h.wallet.FormattedBalance(ctx); err == nil {
		balance = b
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats":   stats,
		"wallet": map[string]string{
			"address": h.wallet.Address(),
			"balance": balance,
		},
		"recentTransactions": recentTx,
		"failedTransactions": failedTx,
		"topClaimers":        topClaimers,
		"claimsByDay":        claimsByDay,
	})
}

// Users handles GET /api/admin/users with page/limit/claimed query params.
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 || limit > 500 {
		limit = 50
	}
	var claimed *bool
	if v := q.Get("claimed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "claimed must be true or false"})
			return
		}
		claimed = &b
	}

	total, err := h.users.Count(r.Context(), claimed)
	if err != nil {
		h.logger.Errorw("user count failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Failed to list users"})
		return
	}
	users, err := h.users.List(r.Context(), claimed, limit, (page-1)*limit)
	if err != nil {
		h.logger.Errorw("user list failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Failed to list users"})
		return
	}

	totalPages := total / int64(limit)
	if total%int64(limit) != 0 {
		totalPages++
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"users":   users,
		"pagination": map[string]any{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": totalPages,
		},
	})
}

// Export handles GET /api/admin/export: every claimed record as a CSV
// attachment. The UTF-8 BOM keeps spreadsheet tools from mangling the file.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ClaimedUsers(r.Context())
	if err != nil {
		h.logger.Errorw("export query failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Failed to export claims"})
		return
	}

	filename := fmt.Sprintf("claims-%s.csv", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("\xEF\xBB\xBF")); err != nil {
		return
	}
	cw := csv.NewWriter(w)
	record := []string{"wallet_address", "allocated_amount", "xp_points", "rank", "claim_date", "tx_hash", "ip_address", "country"}
	if err := cw.Write(record); err != nil {
		return
	}
	for _, u := range users {
		record = record[:0]
		record = append(record,
			u.WalletAddress,
			u.AllocatedAmount,
			strconv.FormatInt(u.XPPoints, 10),
			strconv.FormatInt(u.Rank, 10),
			formatTimePtr(u.ClaimDate),
			strPtr(u.TxHash),
			strPtr(u.IPAddress),
			strPtr(u.Country),
		)
		if err := cw.Write(record); err != nil {
			h.logger.Warnw("export aborted mid-stream", "err", err)
			return
		}
	}
	cw.Flush()
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func strPtr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
