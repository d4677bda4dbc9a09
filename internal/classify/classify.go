// Package classify decides what a navigated-to URL is: a search-engine
// query page, an ordinary content page, or something that should never be
// recorded at all.
package classify

import (
	"net/url"
	"strings"
)

// Classification is the result of matching a URL against the engine table.
type Classification struct {
	IsSearch bool
	Engine   string
	Domain   string
	Query    string
	Params   map[string]string
}

// ClassifySearch matches a URL against the static engine table. Parse
// failures and unknown hosts classify as non-search rather than erroring;
// under-capture is preferred over crashing a capture callback.
func ClassifySearch(rawURL string) Classification {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return Classification{}
	}

	host := strings.ToLower(u.Hostname())

	// Exact hostname match across the whole table first, so that
	// news.google.com never falls through to a fuzzy google.com match.
	for i := range Engines {
		engine := &Engines[i]
		for _, d := range engine.Domains {
			if host == d {
				return classifyPath(engine, d, u)
			}
		}
	}

	// Fuzzy pass for proxy-rewritten hostnames. Table order puts the
	// more specific engines first, so scholar-google-com.* resolves to
	// Scholar rather than plain Google.
	for i := range Engines {
		engine := &Engines[i]
		if domain, ok := matchProxyHost(engine, host); ok {
			return classifyPath(engine, domain, u)
		}
	}

	return Classification{}
}

// matchProxyHost reports whether host is a proxy-rewritten form of one of
// the engine's domains: either the normalized host contains the normalized
// domain, or the host contains the hyphenated variant (EZProxy commonly
// rewrites example.com to example-com.proxy.university.edu).
func matchProxyHost(engine *Engine, host string) (string, bool) {
	normalizedHost := normalizeHost(host)
	for _, d := range engine.Domains {
		if strings.Contains(normalizedHost, normalizeHost(d)) {
			return d, true
		}
		hyphenated := strings.ReplaceAll(d, ".", "-")
		if strings.Contains(host, hyphenated) {
			return d, true
		}
	}
	return "", false
}

// normalizeHost strips separator characters so that proxy-mangled
// hostnames still contain the target domain as a substring.
func normalizeHost(host string) string {
	r := strings.NewReplacer(".", "", "-", "", "_", "")
	return r.Replace(host)
}

// classifyPath applies the engine's path rules and extracts the query.
func classifyPath(engine *Engine, domain string, u *url.URL) Classification {
	path := u.Path
	if path == "" {
		path = "/"
	}

	if engine.RequiredPathSegment != "" && !pathContainsSegment(path, engine.RequiredPathSegment) {
		return Classification{}
	}

	for _, prefix := range engine.DeniedPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return Classification{}
		}
	}

	query := u.Query().Get(engine.QueryParam)
	if query == "" && !engine.AllowEmptyQuery {
		return Classification{}
	}

	if query != "" && engine.DoubleDecode {
		if decoded, err := url.QueryUnescape(query); err == nil {
			query = decoded
		}
	}

	params := make(map[string]string)
	for k, vs := range u.Query() {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}

	return Classification{
		IsSearch: true,
		Engine:   engine.Name,
		Domain:   domain,
		Query:    query,
		Params:   params,
	}
}

// pathContainsSegment reports whether the path has the given segment
// between slashes (so "search" matches /us/search/home but not
// /research/home).
func pathContainsSegment(path, segment string) bool {
	for _, s := range strings.Split(path, "/") {
		if s == segment {
			return true
		}
	}
	return false
}
