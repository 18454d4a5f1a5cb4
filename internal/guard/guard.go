// Package guard validates target URLs and keeps fetches out of internal network space.
package guard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/webreader/internal/reader"
)

// deniedHostnames are rejected before any DNS lookup.
var deniedHostnames = map[string]struct{}{
	"localhost":                {},
	"localhost.localdomain":    {},
	"127.0.0.1":                {},
	"0.0.0.0":                  {},
	"::1":                      {},
	"[::1]":                    {},
	"metadata.google.internal": {},
	"169.254.169.254":          {},
}

var (
	blockedV4 []*net.IPNet
	blockedV6 []*net.IPNet
)

func init() {
	blockedV4 = mustParseCIDRs(
		"127.0.0.0/8",    // loopback
		"10.0.0.0/8",     // RFC 1918
		"172.16.0.0/12",  // RFC 1918
		"192.168.0.0/16", // RFC 1918
		"169.254.0.0/16", // link-local, cloud metadata
		"0.0.0.0/8",      // "this" network
	)
	blockedV6 = mustParseCIDRs(
		"::1/128",   // loopback
		"fe80::/10", // link-local
		"fc00::/7",  // unique local (fc/fd)
	)
}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in guard ranges: %s", cidr))
		}
		nets = append(nets, ipNet)
	}
	return nets
}

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// Config controls the guard.
type Config struct {
	// BlockedHosts adds exact hosts or "*.suffix" wildcards to the built-in deny-list.
	BlockedHosts []string
	Resolver     Resolver
}

// Guard implements reader.Guard.
type Guard struct {
	resolver Resolver
	extra    *HostPatterns
	dialer   *net.Dialer
	logger   *zap.Logger
}

// New builds a Guard. A nil resolver falls back to net.DefaultResolver.
func New(cfg Config, logger *zap.Logger) *Guard {
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		resolver: resolver,
		extra:    NewHostPatterns(cfg.BlockedHosts),
		dialer: &net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		},
		logger: logger,
	}
}

// ParseHTTPURL parses raw and requires an http or https scheme with a host.
func ParseHTTPURL(raw string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", reader.ErrInvalidURL, "malformed URL")
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: only HTTP and HTTPS are allowed", reader.ErrInvalidURL)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", reader.ErrInvalidURL)
	}
	return parsed, nil
}

// Validate parses rawURL, checks the deny-list, and inspects every resolved IPv4 address.
func (g *Guard) Validate(ctx context.Context, rawURL string) (*url.URL, error) {
	parsed, err := ParseHTTPURL(rawURL)
	if err != nil {
		return nil, err
	}
	host := strings.ToLower(parsed.Hostname())
	if err := g.CheckHostname(host); err != nil {
		return nil, err
	}

	ips, lookupErr := g.resolver.LookupIP(ctx, "ip4", host)
	if lookupErr == nil && len(ips) > 0 {
		for _, ip := range ips {
			if reason, blocked := blockedRange(ip); blocked {
				g.logger.Debug("resolved address blocked",
					zap.String("host", host),
					zap.String("ip", ip.String()),
					zap.String("range", reason))
				return nil, reader.ErrBlockedHost
			}
		}
		return parsed, nil
	}

	if ip := net.ParseIP(host); ip != nil {
		if reason, blocked := blockedRange(ip); blocked {
			g.logger.Debug("literal address blocked", zap.String("host", host), zap.String("range", reason))
			return nil, reader.ErrBlockedHost
		}
	}
	return parsed, nil
}

// CheckHostname applies the deny-list and IP-literal checks without any DNS lookup.
func (g *Guard) CheckHostname(host string) error {
	host = strings.ToLower(strings.TrimSpace(host))
	if _, denied := deniedHostnames[host]; denied {
		return reader.ErrBlockedHost
	}
	if g.extra.Matches(host) {
		return reader.ErrBlockedHost
	}
	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		if _, blocked := blockedRange(ip); blocked {
			return reader.ErrBlockedHost
		}
	}
	return nil
}

// DialContext resolves addr and refuses to connect when any address is internal.
// It re-checks at connect time so a DNS answer that changes after Validate is still caught.
func (g *Guard) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}
	if err := g.CheckHostname(host); err != nil {
		return nil, err
	}
	ips, err := g.resolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}
	for _, ip := range ips {
		if _, blocked := blockedRange(ip); blocked {
			return nil, reader.ErrBlockedHost
		}
	}
	var lastErr error
	for _, ip := range ips {
		conn, dialErr := g.dialer.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
		if dialErr == nil {
			return conn, nil
		}
		lastErr = dialErr
	}
	if lastErr == nil {
		lastErr = errors.New("no addresses resolved")
	}
	return nil, fmt.Errorf("dial %s: %w", host, lastErr)
}

func blockedRange(ip net.IP) (string, bool) {
	if v4 := ip.To4(); v4 != nil {
		for _, ipNet := range blockedV4 {
			if ipNet.Contains(v4) {
				return ipNet.String(), true
			}
		}
		return "", false
	}
	for _, ipNet := range blockedV6 {
		if ipNet.Contains(ip) {
			return ipNet.String(), true
		}
	}
	return "", false
}
