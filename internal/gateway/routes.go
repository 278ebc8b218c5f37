package gateway

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/ayo6706/interbank-transfers/internal/domain"
)

// RoutingTable maps bank codes to the base URL of their inter-bank API.
type RoutingTable struct {
	routes map[string]string
}

func NewRoutingTable(routes map[string]string) *RoutingTable {
	t := &RoutingTable{routes: make(map[string]string, len(routes))}
	for code, base := range routes {
		t.routes[code] = strings.TrimRight(base, "/")
	}
	return t
}

// ParseRoutes reads the "code=url,code=url" form used in configuration.
func ParseRoutes(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		code, base, ok := strings.Cut(entry, "=")
		code = strings.TrimSpace(code)
		base = strings.TrimSpace(base)
		if !ok || code == "" || base == "" {
			return nil, fmt.Errorf("malformed route %q: want code=url", entry)
		}
		if !domain.IsBankCode(code) {
			return nil, fmt.Errorf("malformed route %q: bank code must be four digits", entry)
		}
		u, err := url.Parse(base)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("malformed route %q: invalid base url", entry)
		}
		if _, dup := out[code]; dup {
			return nil, fmt.Errorf("duplicate route for bank %s", code)
		}
		out[code] = base
	}
	return out, nil
}

// Lookup returns the base URL for bankCode.
func (t *RoutingTable) Lookup(bankCode string) (string, bool) {
	if t == nil {
		return "", false
	}
	base, ok := t.routes[bankCode]
	return base, ok
}

// Codes lists the routed bank codes in order.
func (t *RoutingTable) Codes() []string {
	if t == nil {
		return nil
	}
	codes := make([]string, 0, len(t.routes))
	for code := range t.routes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
