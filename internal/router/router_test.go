package router

import (
	"context"
	"database/sql"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shardrop/airdrop-registry/internal/admin"
	"github.com/shardrop/airdrop-registry/internal/airdrop"
	"github.com/shardrop/airdrop-registry/internal/airdrop/entity"
	"github.com/shardrop/airdrop-registry/internal/captcha"
	"github.com/shardrop/airdrop-registry/internal/ratelimit"
	"github.com/shardrop/airdrop-registry/internal/wallet"
)

type emptyUsers struct{}

func (emptyUsers) FindByAddress(context.Context, string) (*entity.EligibleUser, error) {
	return nil, sql.ErrNoRows
}
func (emptyUsers) StoreConnectionInfo(context.Context, string, string, string) error { return nil }
func (emptyUsers) MarkClaimed(context.Context, string, time.Time, string, string, string, *string) (bool, error) {
	return false, nil
}
func (emptyUsers) AttachTxHash(context.Context, string, string) error { return nil }
func (emptyUsers) IncrementAttempt(context.Context, string) error { return nil }
func (emptyUsers) Stats(context.Context) (*entity.Stats, error) {
	return &entity.Stats{TotalAllocated: "0", TotalDistributed: "0"}, nil
}
func (emptyUsers) RecentClaims(context.Context, int) ([]*entity.EligibleUser, error) {
	return nil, nil
}
func (emptyUsers) List(context.Context, *bool, int, int) ([]*entity.EligibleUser, error) {
	return nil, nil
}
func (emptyUsers) Count(context.Context, *bool) (int64, error) { return 0, nil }
func (emptyUsers) ClaimedUsers(context.Context) ([]*entity.EligibleUser, error) { return nil, nil }
func (emptyUsers) TopClaimers(context.Context, int) ([]*entity.EligibleUser, error) {
	return nil, nil
}
func (emptyUsers) ClaimsByDay(context.Context, time.Time) ([]*entity.ClaimsByDay, error) {
	return nil, nil
}

type emptyTxs struct{}

func (emptyTxs) FindByAddress(context.Context, string) ([]*entity.Transaction, error) {
	return nil, nil
}
func (emptyTxs) Recent(context.Context, int) ([]*entity.Transaction, error) { return nil, nil }
func (emptyTxs) RecentFailed(context.Context, int) ([]*entity.Transaction, error) { return nil, nil }

type stubWallet struct{}

func (stubWallet) VerifySignature(string, string, string) bool { return false }
func (stubWallet) Address() string { return "0xbbbb" }
func (stubWallet) TransferMode() string { return wallet.ModeRegistrationOnly }
func (stubWallet) FormattedBalance(context.Context) (string, error) { return "0", nil }
func (stubWallet) SendNativeToken(context.Context, string, *big.Int) (*wallet.Receipt, error) {
	return nil, nil
}

type nullGeo struct{}

func (nullGeo) Country(context.Context, string) string { return "Unknown" }

func newTestRouter(t *testing.T, generalMax int) http.Handler {
	t.Helper()
	logger := zap.NewNop().Sugar()
	svc := airdrop.NewService(emptyUsers{}, emptyTxs{}, stubWallet{}, captcha.LengthVerifier{MinLength: 20}, nullGeo{}, logger)
	ah := airdrop.NewHandler(svc, ratelimit.New(15*time.Minute, 5), logger, false)
	adm := admin.NewHandler(emptyUsers{}, emptyTxs{}, stubWallet{}, "secret", logger)
	return RegisterRoutes(ah, adm, Config{
		FrontendURL:        "https://claim.example.org",
		GeneralLimiter:     ratelimit.New(time.Minute, generalMax),
		EligibilityLimiter: ratelimit.New(time.Minute, 10),
	}, logger)
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "203.0.113.50:4411"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthRoute(t *testing.T) {
	rec := get(newTestRouter(t, 100), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
}

func TestRequestIDAndSecurityHeaders(t *testing.T) {
	rec := get(newTestRouter(t, 100), "/health")
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestCORSHeaders(t *testing.T) {
	rec := get(newTestRouter(t, 100), "/health")
	assert.Equal(t, "https://claim.example.org", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	h := newTestRouter(t, 100)
	req := httptest.NewRequest(http.MethodOptions, "/api/claim", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "x-admin-key")
}

func TestUnknownAPIRouteIsJSON404(t *testing.T) {
	rec := get(newTestRouter(t, 100), "/api/nope")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Not found"}`, rec.Body.String())
}

func TestAdminRoutesRequireKey(t *testing.T) {
	rec := get(newTestRouter(t, 100), "/api/admin/dashboard")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGeneralRateLimit(t *testing.T) {
	h := newTestRouter(t, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 4; i++ {
		last = get(h, "/health")
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
}
