package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/deusflow/tickerfeed/internal/cache"
)

// ResolverSpec names a public DNS provider and its server pair.
type ResolverSpec struct {
	Name    string
	Servers []string
}

var DefaultResolvers = []ResolverSpec{
	{Name: "google", Servers: []string{"8.8.8.8", "8.8.4.4"}},
	{Name: "cloudflare", Servers: []string{"1.1.1.1", "1.0.0.1"}},
	{Name: "quad9", Servers: []string{"9.9.9.9", "149.112.112.112"}},
}

// cachingResolver resolves through one fixed provider and remembers answers for ttl.
type cachingResolver struct {
	name     string
	servers  []string
	resolver *net.Resolver
	cache    *cache.Cache[[]string]
	ttl      time.Duration
	dialer   *net.Dialer
}

func newCachingResolver(spec ResolverSpec, ttl time.Duration) *cachingResolver {
	r := &cachingResolver{
		name:    spec.Name,
		servers: spec.Servers,
		cache:   cache.New[[]string](ttl),
		ttl:     ttl,
		dialer:  &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second},
	}
	r.resolver = &net.Resolver{
		PreferGo: true,
		Dial:     r.dialDNS,
	}
	return r
}

// dialDNS ignores the system-configured server and walks this provider's pair.
func (r *cachingResolver) dialDNS(ctx context.Context, network, _ string) (net.Conn, error) {
	d := net.Dialer{Timeout: 5 * time.Second}
	var lastErr error
	for _, server := range r.servers {
		conn, err := d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (r *cachingResolver) lookup(ctx context.Context, host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{host}, nil
	}
	if addrs, ok := r.cache.Get(host); ok {
		return addrs, nil
	}

	ips, err := r.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, &net.DNSError{Err: "no addresses", Name: host, Server: r.name, IsNotFound: true}
	}

	// IPv4 first, IPv6 after.
	addrs := make([]string, 0, len(ips))
	for _, ip := range ips {
		if ip.IP.To4() != nil {
			addrs = append(addrs, ip.IP.String())
		}
	}
	for _, ip := range ips {
		if ip.IP.To4() == nil {
			addrs = append(addrs, ip.IP.String())
		}
	}

	r.cache.Set(host, addrs, r.ttl)
	return addrs, nil
}

func (r *cachingResolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	addrs, err := r.lookup(ctx, host)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, ip := range addrs {
		conn, err := r.dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no dialable address")
	}
	return nil, fmt.Errorf("dial %s via %s: %w", host, r.name, lastErr)
}

func (r *cachingResolver) Close() {
	r.cache.Stop()
}

// newResolverPath builds a client with its own transport bound to one resolver.
func newResolverPath(spec ResolverSpec, opts Options) (Path, func()) {
	res := newCachingResolver(spec, opts.DNSCacheTTL)
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           res.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !opts.VerifyTLS,
			MinVersion:         tls.VersionTLS12,
		},
	}
	client := &http.Client{Transport: tr, Timeout: opts.Timeout}
	closer := func() {
		tr.CloseIdleConnections()
		res.Close()
	}
	return Path{Name: spec.Name, Client: client}, closer
}
