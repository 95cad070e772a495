package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Sentinel country values. Private addresses never reach a provider;
// provider failure degrades to Unknown instead of failing the caller.
const (
	CountryPrivate = "Local/Private"
	CountryUnknown = "Unknown"
)

type Config struct {
	// PrimaryURL and FallbackURL are fmt patterns taking the IP as the
	// single %s argument.
	PrimaryURL  string
	FallbackURL string
	Timeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		PrimaryURL:  "http://ip-api.com/json/%s?fields=status,country",
		FallbackURL: "https://ipapi.co/%s/country_name/",
		Timeout:     2 * time.Second,
	}
}

// Resolver derives a best-effort country string from a public IP using a
// primary lookup provider with one fallback.
type Resolver struct {
	cfg    Config
	client *http.Client
	logger *zap.SugaredLogger
}

func NewResolver(cfg Config, logger *zap.SugaredLogger) *Resolver {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Resolver{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

// Country never returns an error: private addresses short-circuit to the
// private sentinel, provider failures degrade to Unknown.
func (r *Resolver) Country(ctx context.Context, ip string) string {
	if ip == "" || ip == CountryUnknown || IsPrivate(ip) {
		return CountryPrivate
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	if country, err := r.lookupPrimary(ctx, ip); err == nil {
		return country
	} else if r.logger != nil {
		r.logger.Warnw("primary geolocation lookup failed", "ip", ip, "err", err)
	}

	if country, err := r.lookupFallback(ctx, ip); err == nil {
		return country
	} else if r.logger != nil {
		r.logger.Warnw("fallback geolocation lookup failed", "ip", ip, "err", err)
	}

	return CountryUnknown
}

func (r *Resolver) lookupPrimary(ctx context.Context, ip string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(r.cfg.PrimaryURL, ip), nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	var body struct {
		Status  string `json:"status"`
		Country string `json:"country"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.Status != "success" || body.Country == "" {
		return "", fmt.Errorf("lookup status %q", body.Status)
	}
	return body.Country, nil
}

func (r *Resolver) lookupFallback(ctx context.Context, ip string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(r.cfg.FallbackURL, ip), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", err
	}
	country := strings.TrimSpace(string(raw))
	if country == "" || strings.Contains(strings.ToLower(country), "error") {
		return "", fmt.Errorf("empty fallback response")
	}
	return country, nil
}

// IsPrivate reports whether an address must not be sent to a lookup
// provider: loopback, RFC1918, IPv6 unique-local/link-local, unspecified,
// or anything unparsable.
func IsPrivate(ip string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return true
	}
	return parsed.IsLoopback() || parsed.IsPrivate() ||
		parsed.IsLinkLocalUnicast() || parsed.IsLinkLocalMulticast() ||
		parsed.IsUnspecified()
}

// ClientIP extracts the best client address from proxy headers, preferring
// the first public hop in X-Forwarded-For, then single-value proxy headers,
// then the transport-level remote address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		for _, part := range parts {
			candidate := normalizeIP(strings.TrimSpace(part))
			if candidate != "" && !IsPrivate(candidate) {
				return candidate
			}
		}
		// all hops private: keep the first one
		if first := normalizeIP(strings.TrimSpace(parts[0])); first != "" {
			return first
		}
	}

	for _, header := range []string{"X-Real-IP", "CF-Connecting-IP", "X-Client-IP"} {
		if v := r.Header.Get(header); v != "" {
			if candidate := normalizeIP(strings.TrimSpace(v)); candidate != "" {
				return candidate
			}
		}
	}

	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	if candidate := normalizeIP(host); candidate != "" {
		return candidate
	}
	return CountryUnknown
}

// normalizeIP strips IPv6-mapped-IPv4 prefixes and bracket notation.
func normalizeIP(ip string) string {
	ip = strings.TrimPrefix(ip, "::ffff:")
	if strings.HasPrefix(ip, "[") && strings.HasSuffix(ip, "]") {
		ip = ip[1 : len(ip)-1]
	}
	return ip
}
