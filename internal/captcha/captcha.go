package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

var (
	ErrMissingToken = errors.New("captcha token is required")
	ErrInvalidToken = errors.New("captcha verification failed")
)

// Verifier checks a client-supplied CAPTCHA token.
type Verifier interface {
	Verify(ctx context.Context, token, clientIP string) error
}

// LengthVerifier only checks that a token is present and not trivially
// short. It is a development stand-in, not a security control; production
// deployments configure HTTPVerifier instead.
type LengthVerifier struct {
	MinLength int
}

func (v LengthVerifier) Verify(_ context.Context, token, _ string) error {
	if token == "" {
		return ErrMissingToken
	}
	min := v.MinLength
	if min == 0 {
		min = 20
	}
	if len(token) < min {
		return ErrInvalidToken
	}
	return nil
}

// HTTPVerifier validates the token server-side against the provider's
// assertion endpoint (reCAPTCHA/hCaptcha style form POST).
type HTTPVerifier struct {
	URL    string
	Secret string
	Client *http.Client
}

func (v HTTPVerifier) Verify(ctx context.Context, token, clientIP string) error {
	if token == "" {
		return ErrMissingToken
	}
	form := url.Values{
		"secret":   {v.Secret},
		"response": {token},
	}
	if clientIP != "" {
		form.Set("remoteip", clientIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := v.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("captcha provider status %d", resp.StatusCode)
	}

	var body struct {
		Success    bool     `json:"success"`
		ErrorCodes []string `json:"error-codes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}
	if !body.Success {
		return fmt.Errorf("%w: %s", ErrInvalidToken, strings.Join(body.ErrorCodes, ","))
	}
	return nil
}

// FromEnv selects the HTTP verifier when a provider secret is configured and
// the placeholder length check otherwise.
func FromEnv() Verifier {
	secret := os.Getenv("CAPTCHA_SECRET")
	if secret == "" {
		return LengthVerifier{}
	}
	verifyURL := os.Getenv("CAPTCHA_VERIFY_URL")
	if verifyURL == "" {
		verifyURL = "https://www.google.com/recaptcha/api/siteverify"
	}
	return HTTPVerifier{URL: verifyURL, Secret: secret}
}
