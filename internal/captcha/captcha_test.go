package captcha

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLengthVerifier(t *testing.T) {
	v := LengthVerifier{}
	ctx := context.Background()

	assert.ErrorIs(t, v.Verify(ctx, "", "1.2.3.4"), ErrMissingToken)
	assert.ErrorIs(t, v.Verify(ctx, "short", "1.2.3.4"), ErrInvalidToken)
	assert.NoError(t, v.Verify(ctx, strings.Repeat("x", 20), "1.2.3.4"))
}

func TestHTTPVerifier_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "s3cret", r.Form.Get("secret"))
		assert.Equal(t, "tok", r.Form.Get("response"))
		assert.Equal(t, "203.0.113.7", r.Form.Get("remoteip"))
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	v := HTTPVerifier{URL: srv.URL, Secret: "s3cret"}
	assert.NoError(t, v.Verify(context.Background(), "tok", "203.0.113.7"))
}

func TestHTTPVerifier_ProviderRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
	}))
	defer srv.Close()

	v := HTTPVerifier{URL: srv.URL, Secret: "s3cret"}
	err := v.Verify(context.Background(), "tok", "")
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Contains(t, err.Error(), "invalid-input-response")
}

func TestHTTPVerifier_MissingToken(t *testing.T) {
	v := HTTPVerifier{URL: "http://unused.invalid", Secret: "s3cret"}
	assert.ErrorIs(t, v.Verify(context.Background(), "", ""), ErrMissingToken)
}
