package guard

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/webreader/internal/reader"
)

type mockResolver struct {
	answers map[string][]net.IP
	calls   []string
}

func (m *mockResolver) LookupIP(_ context.Context, network, host string) ([]net.IP, error) {
	m.calls = append(m.calls, network+":"+host)
	ips, ok := m.answers[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return ips, nil
}

func newTestGuard(answers map[string][]net.IP, blocked ...string) (*Guard, *mockResolver) {
	resolver := &mockResolver{answers: answers}
	return New(Config{Resolver: resolver, BlockedHosts: blocked}, nil), resolver
}

func TestValidateRejectsMalformedAndNonHTTP(t *testing.T) {
	t.Parallel()

	g, _ := newTestGuard(nil)
	for _, raw := range []string{
		"ftp://example.com/file",
		"file:///etc/passwd",
		"javascript:alert(1)",
		"https://",
		"://missing-scheme",
		"http://[::1",
	} {
		_, err := g.Validate(context.Background(), raw)
		require.ErrorIs(t, err, reader.ErrInvalidURL, raw)
	}
}

func TestValidateDenyListSkipsResolver(t *testing.T) {
	t.Parallel()

	g, resolver := newTestGuard(nil)
	for _, raw := range []string{
		"http://localhost:8080/",
		"http://LOCALHOST/",
		"http://localhost.localdomain/",
		"http://127.0.0.1/",
		"http://0.0.0.0/",
		"http://[::1]/",
		"http://metadata.google.internal/computeMetadata/v1/",
		"http://169.254.169.254/latest/meta-data",
	} {
		_, err := g.Validate(context.Background(), raw)
		require.ErrorIs(t, err, reader.ErrBlockedHost, raw)
	}
	require.Empty(t, resolver.calls)
}

func TestValidateResolvedPrivateRanges(t *testing.T) {
	t.Parallel()

	g, _ := newTestGuard(map[string][]net.IP{
		"ten.example":      {net.ParseIP("10.1.2.3")},
		"rfc1918.example":  {net.ParseIP("172.20.0.1")},
		"home.example":     {net.ParseIP("192.168.1.10")},
		"loop.example":     {net.ParseIP("127.0.0.53")},
		"metadata.example": {net.ParseIP("169.254.169.254")},
		"zero.example":     {net.ParseIP("0.1.2.3")},
		"mixed.example":    {net.ParseIP("93.184.216.34"), net.ParseIP("10.0.0.1")},
	})
	for _, host := range []string{
		"ten.example", "rfc1918.example", "home.example", "loop.example",
		"metadata.example", "zero.example", "mixed.example",
	} {
		_, err := g.Validate(context.Background(), "https://"+host+"/")
		require.ErrorIs(t, err, reader.ErrBlockedHost, host)
		require.Equal(t, "access to internal resources is not allowed", err.Error())
	}
}

func TestValidateAcceptsPublicHost(t *testing.T) {
	t.Parallel()

	g, resolver := newTestGuard(map[string][]net.IP{
		"example.com": {net.ParseIP("93.184.216.34")},
		"edge.test":   {net.ParseIP("172.32.0.1")},
	})
	u, err := g.Validate(context.Background(), "https://example.com/article?id=1")
	require.NoError(t, err)
	require.Equal(t, "example.com", u.Hostname())
	require.Equal(t, "/article", u.Path)
	require.Contains(t, resolver.calls, "ip4:example.com")

	_, err = g.Validate(context.Background(), "http://edge.test/")
	require.NoError(t, err)
}

func TestValidateIPv6LiteralsWhenResolutionFails(t *testing.T) {
	t.Parallel()

	g, _ := newTestGuard(nil)
	for _, raw := range []string{
		"http://[fe80::1]/",
		"http://[fd00::1234]/",
		"http://[fc00::1]/",
		"http://[0:0:0:0:0:0:0:1]/",
		"http://[::ffff:127.0.0.1]/",
	} {
		_, err := g.Validate(context.Background(), raw)
		require.ErrorIs(t, err, reader.ErrBlockedHost, raw)
	}

	_, err := g.Validate(context.Background(), "http://[2606:4700::1111]/")
	require.NoError(t, err)
}

func TestValidateUnresolvableHostIsAccepted(t *testing.T) {
	t.Parallel()

	g, _ := newTestGuard(nil)
	_, err := g.Validate(context.Background(), "https://does-not-resolve.example/")
	require.NoError(t, err)
}

func TestValidateConfiguredBlockedHosts(t *testing.T) {
	t.Parallel()

	g, _ := newTestGuard(map[string][]net.IP{
		"api.internal.corp": {net.ParseIP("93.184.216.34")},
		"evil.test":         {net.ParseIP("93.184.216.35")},
	}, "*.internal.corp", "evil.test")

	_, err := g.Validate(context.Background(), "https://api.internal.corp/")
	require.ErrorIs(t, err, reader.ErrBlockedHost)
	_, err = g.Validate(context.Background(), "https://EVIL.test/")
	require.ErrorIs(t, err, reader.ErrBlockedHost)
}

func TestCheckHostname(t *testing.T) {
	t.Parallel()

	g, _ := newTestGuard(nil, "tracker.test")
	require.ErrorIs(t, g.CheckHostname("10.0.0.5"), reader.ErrBlockedHost)
	require.ErrorIs(t, g.CheckHostname("[fd12::1]"), reader.ErrBlockedHost)
	require.NoError(t, g.CheckHostname("cdn.tracker.test"))
	require.ErrorIs(t, g.CheckHostname("tracker.test"), reader.ErrBlockedHost)
	require.NoError(t, g.CheckHostname("example.com"))
	require.NoError(t, g.CheckHostname("8.8.8.8"))
}

func TestDialContextRejectsInternalAddresses(t *testing.T) {
	t.Parallel()

	g, _ := newTestGuard(map[string][]net.IP{
		"rebind.example": {net.ParseIP("10.0.0.7")},
	})
	_, err := g.DialContext(context.Background(), "tcp", "rebind.example:80")
	require.ErrorIs(t, err, reader.ErrBlockedHost)

	_, err = g.DialContext(context.Background(), "tcp", "localhost:80")
	require.ErrorIs(t, err, reader.ErrBlockedHost)

	_, err = g.DialContext(context.Background(), "tcp", "no-port")
	require.Error(t, err)
	require.False(t, errors.Is(err, reader.ErrBlockedHost))
}

func TestHostPatternList(t *testing.T) {
	t.Parallel()

	require.Nil(t, NewHostPatterns([]string{"", "  "}))

	list := NewHostPatterns([]string{"*.ads.test", ".metrics.test", "exact.test"})
	require.True(t, list.Matches("ads.test"))
	require.True(t, list.Matches("x.ads.test"))
	require.True(t, list.Matches("a.b.metrics.test"))
	require.True(t, list.Matches("Exact.Test"))
	require.False(t, list.Matches("sub.exact.test"))
	require.False(t, list.Matches("notads.test"))
	require.False(t, list.Matches(""))
}
