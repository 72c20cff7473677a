package ldap

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// srvService is one DNS SRV name tried during discovery.
type srvService struct {
	name   string
	useTLS bool
}

// SRVResolver is the subset of *net.Resolver used for discovery.
type SRVResolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
}

// SRVDiscovery locates domain controllers through DNS SRV records.
type SRVDiscovery struct {
	resolver SRVResolver
}

// NewSRVDiscovery creates a discovery instance using the default resolver.
func NewSRVDiscovery() *SRVDiscovery {
	return &SRVDiscovery{resolver: net.DefaultResolver}
}

// NewSRVDiscoveryWithResolver creates a discovery instance using resolver.
func NewSRVDiscoveryWithResolver(resolver SRVResolver) *SRVDiscovery {
	return &SRVDiscovery{resolver: resolver}
}

// services returns the SRV names for domain in preference order. The
// dc._msdcs records only list writable domain controllers, so they win
// over the generic domain records; the global catalog is the last resort.
func services(domain string) []srvService {
	return []srvService{
		{"_ldaps._tcp." + domain, true},
		{"_ldap._tcp.dc._msdcs." + domain, false},
		{"_ldap._tcp." + domain, false},
		{"_gc._tcp." + domain, false},
	}
}

// DiscoverServers returns servers for domain ordered by SRV priority and
// weight. Standard ports on the domain name itself are returned when no
// SRV record resolves.
func (d *SRVDiscovery) DiscoverServers(ctx context.Context, domain string) ([]*ServerInfo, error) {
	if domain == "" {
		return nil, fmt.Errorf("domain cannot be empty")
	}

	start := time.Now()
	tflog.SubsystemDebug(ctx, Subsystem, "Starting server discovery", map[string]any{
		"domain": domain,
	})

	var found []*ServerInfo
	for _, svc := range services(domain) {
		servers, err := d.lookupSRV(ctx, svc)
		if err != nil {
			tflog.SubsystemTrace(ctx, Subsystem, "SRV lookup failed, trying next service", map[string]any{
				"service": svc.name,
				"error":   err.Error(),
			})
			continue
		}

		found = append(found, servers...)

		// LDAPS records are preferred outright.
		if svc.useTLS {
			break
		}
	}

	if len(found) == 0 {
		tflog.SubsystemDebug(ctx, Subsystem, "No SRV records found, using fallback servers", map[string]any{
			"domain":      domain,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return fallbackServers(domain), nil
	}

	found = dedupeServers(found)
	sortServersByPriority(found)

	tflog.SubsystemDebug(ctx, Subsystem, "Server discovery completed", map[string]any{
		"domain":       domain,
		"server_count": len(found),
		"duration_ms":  time.Since(start).Milliseconds(),
	})

	return found, nil
}

func (d *SRVDiscovery) lookupSRV(ctx context.Context, svc srvService) ([]*ServerInfo, error) {
	_, records, err := d.resolver.LookupSRV(ctx, "", "", svc.name)
	if err != nil {
		return nil, fmt.Errorf("SRV lookup failed for %s: %w", svc.name, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no SRV records found for %s", svc.name)
	}

	servers := make([]*ServerInfo, 0, len(records))
	for _, srv := range records {
		servers = append(servers, &ServerInfo{
			Host:     strings.TrimSuffix(srv.Target, "."),
			Port:     int(srv.Port),
			UseTLS:   svc.useTLS,
			Priority: int(srv.Priority),
			Weight:   int(srv.Weight),
			Source:   "srv",
		})
	}

	return servers, nil
}

func fallbackServers(domain string) []*ServerInfo {
	return []*ServerInfo{
		{Host: domain, Port: 636, UseTLS: true, Priority: 0, Weight: 100, Source: "fallback"},
		{Host: domain, Port: 389, UseTLS: false, Priority: 1, Weight: 100, Source: "fallback"},
	}
}

// dedupeServers drops repeated host:port pairs, keeping the first seen.
func dedupeServers(servers []*ServerInfo) []*ServerInfo {
	seen := make(map[string]bool, len(servers))
	out := servers[:0]
	for _, s := range servers {
		key := strings.ToLower(net.JoinHostPort(s.Host, strconv.Itoa(s.Port)))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

// sortServersByPriority orders by ascending priority, then descending weight (RFC 2782).
func sortServersByPriority(servers []*ServerInfo) {
	slices.SortStableFunc(servers, func(a, b *ServerInfo) int {
		if a.Priority != b.Priority {
			return a.Priority - b.Priority
		}
		return b.Weight - a.Weight
	})
}

// ValidateServerInfo validates server information.
func ValidateServerInfo(server *ServerInfo) error {
	switch {
	case server == nil:
		return fmt.Errorf("server info cannot be nil")
	case server.Host == "":
		return fmt.Errorf("server host cannot be empty")
	case server.Port <= 0 || server.Port > 65535:
		return fmt.Errorf("invalid port number: %d", server.Port)
	case server.Priority < 0:
		return fmt.Errorf("priority cannot be negative: %d", server.Priority)
	case server.Weight < 0:
		return fmt.Errorf("weight cannot be negative: %d", server.Weight)
	}
	return nil
}

// ServerInfoToURL converts ServerInfo to an LDAP URL.
func ServerInfoToURL(server *ServerInfo) string {
	scheme := "ldap"
	if server.UseTLS {
		scheme = "ldaps"
	}
	return scheme + "://" + net.JoinHostPort(server.Host, strconv.Itoa(server.Port))
}

// ParseLDAPURL parses an ldap:// or ldaps:// URL into ServerInfo.
func ParseLDAPURL(rawURL string) (*ServerInfo, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid LDAP URL %q: %w", rawURL, err)
	}

	server := &ServerInfo{
		Host:   u.Hostname(),
		Weight: 100,
		Source: "config",
	}

	switch strings.ToLower(u.Scheme) {
	case "ldaps":
		server.UseTLS = true
		server.Port = 636
	case "ldap":
		server.Port = 389
	default:
		return nil, fmt.Errorf("unsupported scheme %q, must be ldap:// or ldaps://", u.Scheme)
	}

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port number: %s", p)
		}
		server.Port = port
	}

	return server, ValidateServerInfo(server)
}
