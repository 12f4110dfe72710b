package safety

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// URL validation errors.
var (
	ErrDisallowedScheme = errors.New("disallowed URL scheme")
	ErrDisallowedPort   = errors.New("disallowed URL port")
	ErrPrivateAddress   = errors.New("URL resolves to a private or reserved address")
	ErrDomainNotAllowed = errors.New("domain not in allowlist")
)

// URLOptions tunes SSRF validation. Zero value gives the defaults:
// https only, ports 443 and 8443, no domain restriction, private IPs denied.
type URLOptions struct {
	AllowedSchemes  []string
	AllowedPorts    []int
	AllowedDomains  []string
	AllowPrivateIPs bool

	// LookupIP overrides DNS resolution, mainly for tests.
	LookupIP func(ctx context.Context, host string) ([]net.IP, error)
}

// Private and reserved IPv4 ranges: RFC 1918, loopback, link-local,
// carrier-grade NAT, multicast, reserved, and the zero network.
var privateV4 = mustCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"100.64.0.0/10",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"0.0.0.0/8",
)

var privateV6Prefixes = []string{"::1", "fe80:", "fc00:", "fd00:", "ff00:"}

// ValidateURL rejects URLs that could be used to reach internal services.
// Every resolved address is screened; DNS failure fails closed.
func ValidateURL(ctx context.Context, raw string, opts URLOptions) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: empty URL", ErrInvalidInput)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	schemes := opts.AllowedSchemes
	if len(schemes) == 0 {
		schemes = []string{"https"}
	}
	if !containsFold(schemes, u.Scheme) {
		return fmt.Errorf("%w: %q", ErrDisallowedScheme, u.Scheme)
	}

	ports := opts.AllowedPorts
	if len(ports) == 0 {
		ports = []int{443, 8443}
	}
	port := 443
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidInput, p)
		}
	}
	if !containsInt(ports, port) {
		return fmt.Errorf("%w: %d", ErrDisallowedPort, port)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidInput)
	}
	if len(opts.AllowedDomains) > 0 && !domainAllowed(host, opts.AllowedDomains) {
		return fmt.Errorf("%w: %q", ErrDomainNotAllowed, host)
	}

	lookup := opts.LookupIP
	if lookup == nil {
		lookup = func(ctx context.Context, host string) ([]net.IP, error) {
			addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			ips := make([]net.IP, len(addrs))
			for i, a := range addrs {
				ips[i] = a.IP
			}
			return ips, nil
		}
	}

	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		if ips, err = lookup(ctx, host); err != nil {
			// Fail closed: an unresolvable host is not a safe destination.
			return fmt.Errorf("%w: DNS resolution failed for %q: %v", ErrPrivateAddress, host, err)
		}
		if len(ips) == 0 {
			return fmt.Errorf("%w: no addresses for %q", ErrPrivateAddress, host)
		}
	}

	if opts.AllowPrivateIPs {
		return nil
	}
	for _, ip := range ips {
		if isPrivate(ip) {
			return fmt.Errorf("%w: %s resolves to %s", ErrPrivateAddress, host, ip)
		}
	}
	return nil
}

func isPrivate(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		for _, n := range privateV4 {
			if n.Contains(v4) {
				return true
			}
		}
		return false
	}
	s := strings.ToLower(ip.String())
	for _, prefix := range privateV6Prefixes {
		if s == prefix || strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

func domainAllowed(host string, allowed []string) bool {
	host = strings.ToLower(host)
	for _, d := range allowed {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func containsFold(hay []string, needle string) bool {
	for _, h := range hay {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

func containsInt(hay []int, needle int) bool {
	for _, h := range hay {
		if h == needle {
			return true
		}
	}
	return false
}

func mustCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, len(cidrs))
	for i, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		out[i] = n
	}
	return out
}
