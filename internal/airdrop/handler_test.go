package airdrop

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shardrop/airdrop-registry/internal/ratelimit"
)

func newTestHandler(users *fakeUsers, w *fakeWallet) *Handler {
	return NewHandler(newTestService(users, w), ratelimit.New(15*time.Minute, 5), zap.NewNop().Sugar(), false)
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCheckEligibilityEndpoint(t *testing.T) {
	h := newTestHandler(newFakeUsers(eligibleUser()), &fakeWallet{verifyOK: true})

	// mixed-case input normalizes to the stored lowercase address
	rec := postJSON(t, h.CheckEligibility, "/api/check-eligibility",
		map[string]string{"walletAddress": "0x" + strings.ToUpper(testWallet[2:])})

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["eligible"])
	data := body["data"].(map[string]any)
	assert.Equal(t, testWallet, data["walletAddress"])
	assert.Equal(t, "1000", data["allocatedAmountFormatted"])
}

func TestCheckEligibilityUnknownWalletEndpoint(t *testing.T) {
	h := newTestHandler(newFakeUsers(), &fakeWallet{verifyOK: true})
	rec := postJSON(t, h.CheckEligibility, "/api/check-eligibility",
		map[string]string{"walletAddress": testWallet})

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["eligible"])
}

func TestCheckEligibilityRejectsBadAddress(t *testing.T) {
	h := newTestHandler(newFakeUsers(), &fakeWallet{verifyOK: true})
	rec := postJSON(t, h.CheckEligibility, "/api/check-eligibility",
		map[string]string{"walletAddress": "not-an-address"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	require.Len(t, body["errors"], 1)
}

func validClaimBody() map[string]string {
	return map[string]string{
		"walletAddress": testWallet,
		"signature":     strings.Repeat("ab", 66),
		"captchaToken":  validToken,
	}
}

func TestClaimEndpoint(t *testing.T) {
	users := newFakeUsers(eligibleUser())
	h := newTestHandler(users, &fakeWallet{verifyOK: true})

	rec := postJSON(t, h.Claim, "/api/claim", validClaimBody())
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "1000", body["amountFormatted"])
	assert.Nil(t, body["txHash"])
	assert.True(t, users.users[testWallet].Claimed)
}

func TestClaimEndpointValidation(t *testing.T) {
	h := newTestHandler(newFakeUsers(eligibleUser()), &fakeWallet{verifyOK: true})

	body := validClaimBody()
	body["signature"] = "0xshort"
	body["captchaToken"] = ""
	rec := postJSON(t, h.Claim, "/api/claim", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	out := decodeBody(t, rec)
	assert.Equal(t, false, out["success"])
	assert.Len(t, out["errors"], 2)
}

func TestClaimEndpointAlreadyClaimed(t *testing.T) {
	u := eligibleUser()
	u.Claimed = true
	when := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	u.ClaimDate = &when
	h := newTestHandler(newFakeUsers(u), &fakeWallet{verifyOK: true})

	rec := postJSON(t, h.Claim, "/api/claim", validClaimBody())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Airdrop already claimed", body["message"])
	assert.Contains(t, body, "claimDate")
}

func TestClaimEndpointBadSignature(t *testing.T) {
	users := newFakeUsers(eligibleUser())
	h := newTestHandler(users, &fakeWallet{verifyOK: false})

	rec := postJSON(t, h.Claim, "/api/claim", validClaimBody())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Signature verification failed", decodeBody(t, rec)["message"])
	assert.Equal(t, 1, users.attempts[testWallet])
}

func TestClaimEndpointNotEligible(t *testing.T) {
	h := newTestHandler(newFakeUsers(), &fakeWallet{verifyOK: true})
	rec := postJSON(t, h.Claim, "/api/claim", validClaimBody())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["message"], "not eligible")
}

func TestClaimEndpointPerWalletRateLimit(t *testing.T) {
	h := newTestHandler(newFakeUsers(), &fakeWallet{verifyOK: true})

	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		last = postJSON(t, h.Claim, "/api/claim", validClaimBody())
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Contains(t, decodeBody(t, last)["message"], "Too many claim attempts")
}

func TestClaimStatusEndpoint(t *testing.T) {
	u := eligibleUser()
	u.Claimed = true
	h := newTestHandler(newFakeUsers(u), &fakeWallet{verifyOK: true})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/claim-status/{address}", h.ClaimStatus)
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/claim-status/%s", testWallet), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["found"])
	data := body["data"].(map[string]any)
	assert.Equal(t, true, data["claimed"])
}

func TestClaimStatusEndpointUnknownAddress(t *testing.T) {
	h := newTestHandler(newFakeUsers(), &fakeWallet{verifyOK: true})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/claim-status/{address}", h.ClaimStatus)
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/claim-status/%s", testWallet), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["found"])
	assert.Equal(t, "Address not found in eligible list", body["message"])
}

func TestStatsEndpoint(t *testing.T) {
	u := eligibleUser()
	u.Claimed = true
	h := newTestHandler(newFakeUsers(u), &fakeWallet{verifyOK: true})

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	h.Stats(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody(t, rec)["stats"].(map[string]any)
	assert.Equal(t, "100.00", stats["claimPercentage"])
	assert.Equal(t, "42.5", stats["backendWalletBalance"])
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHandler(newFakeUsers(), &fakeWallet{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["timestamp"])
}
