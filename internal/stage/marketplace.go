package stage

import (
	"net/url"
	"strings"
)

// MarketplaceFilter recognizes B2B marketplace URLs, which are never accepted
// as a company's own website.
type MarketplaceFilter struct {
	domains []string
}

// NewMarketplaceFilter builds a filter from bare domains such as
// "alibaba.com".
func NewMarketplaceFilter(domains []string) *MarketplaceFilter {
	f := &MarketplaceFilter{}
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		d = strings.TrimPrefix(d, "www.")
		if d != "" {
			f.domains = append(f.domains, d)
		}
	}
	return f
}

// IsMarketplace reports whether rawURL points at a marketplace domain or one
// of its subdomains. Values that do not parse as a URL are matched as text.
func (f *MarketplaceFilter) IsMarketplace(rawURL string) bool {
	s := strings.ToLower(strings.TrimSpace(rawURL))
	if s == "" {
		return false
	}
	host := s
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	if u, err := url.Parse(s); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	for _, d := range f.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Clean returns rawURL trimmed, or "" if it is a marketplace link. The second
// return is true when a marketplace link was dropped.
func (f *MarketplaceFilter) Clean(rawURL string) (string, bool) {
	s := strings.TrimSpace(rawURL)
	if s == "" || isNullish(s) {
		return "", false
	}
	if f.IsMarketplace(s) {
		return "", true
	}
	return s, false
}

func isNullish(s string) bool {
	switch strings.ToLower(s) {
	case "null", "none", "n/a", "unknown", "-":
		return true
	}
	return false
}
