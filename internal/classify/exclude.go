package classify

import (
	"net/url"
	"strings"
)

// internalSchemes are browser-internal URL schemes that never produce a
// citable page.
var internalSchemes = []string{
	"chrome",
	"chrome-extension",
	"edge",
	"about",
	"moz-extension",
	"view-source",
	"devtools",
	"data",
	"blob",
	"file",
}

// newTabURLs are known new-tab-page addresses.
var newTabURLs = map[string]bool{
	"chrome://newtab/":      true,
	"chrome://new-tab-page": true,
	"edge://newtab/":        true,
	"about:newtab":          true,
	"about:blank":           true,
}

// IsExcludedURL is the synchronous exclusion check: browser-internal
// schemes, new-tab pages, and degenerate short URLs. It does not consult
// user configuration; see Excluder for that.
func IsExcludedURL(rawURL string) bool {
	if len(rawURL) < 8 {
		return true
	}
	if newTabURLs[rawURL] {
		return true
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}

	scheme := strings.ToLower(u.Scheme)
	for _, s := range internalSchemes {
		if scheme == s {
			return true
		}
	}

	return u.Hostname() == ""
}

// Excluder answers whether a URL's host falls under a user-configured
// excluded domain. Built from config at daemon start.
type Excluder struct {
	domains []string
}

// NewExcluder builds an Excluder from a domain list. Entries are lowered
// and trimmed; empty entries are dropped.
func NewExcluder(domains []string) *Excluder {
	e := &Excluder{}
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			e.domains = append(e.domains, d)
		}
	}
	return e
}

// IsExcluded reports whether the URL should be excluded, combining the
// synchronous checks with the configured domain list. A host matches if it
// equals an excluded domain or is a subdomain of one.
func (e *Excluder) IsExcluded(rawURL string) bool {
	if IsExcludedURL(rawURL) {
		return true
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	host := strings.ToLower(u.Hostname())

	for _, d := range e.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
