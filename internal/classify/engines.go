package classify

// Engine describes one known search engine and how to recognize its
// result pages.
type Engine struct {
	Name       string
	Domains    []string
	QueryParam string

	// RequiredPathSegment, when set, restricts search detection to URLs
	// whose path contains the segment (Lexis serves everything from one
	// domain and only /search/ paths are queries).
	RequiredPathSegment string

	// DeniedPathPrefixes lists known non-search content verticals under
	// the engine's domain. A denied prefix always wins; any other path
	// defaults to "is search" to favor recall over precision.
	DeniedPathPrefixes []string

	// AllowEmptyQuery reports whether a valid search path with no query
	// parameter still counts as a search (bare search homepage).
	AllowEmptyQuery bool

	// DoubleDecode applies a second URL-decode to the extracted query.
	// Lexis double-encodes its query parameter.
	DoubleDecode bool
}

// googleDeniedPaths covers Google's non-search verticals served from the
// main domain. Incomplete by nature; unknown verticals classify as search.
var googleDeniedPaths = []string{
	"/maps",
	"/travel",
	"/flights",
	"/shopping",
	"/finance",
	"/books",
	"/photos",
	"/drive",
	"/mail",
	"/calendar",
	"/earth",
	"/store",
	"/intl",
	"/about",
	"/preferences",
	"/account",
	"/settings",
	"/doodles",
	"/chrome",
	"/forms",
	"/docs",
	"/sheets",
	"/slides",
}

var newsDeniedPaths = []string{
	"/publications",
	"/topics",
	"/stories",
	"/foryou",
	"/showcase",
	"/my",
}

// Engines is the static table of recognized search engines. Specific
// engines come before GOOGLE so the fuzzy proxy-host pass cannot claim
// scholar/news hosts for the general engine.
var Engines = []Engine{
	{
		Name:                "LEXIS",
		Domains:             []string{"advance.lexis.com", "plus.lexis.com", "lexisnexis.com"},
		QueryParam:          "q",
		RequiredPathSegment: "search",
		DoubleDecode:        true,
	},
	{
		Name:       "GOOGLE_SCHOLAR",
		Domains:    []string{"scholar.google.com"},
		QueryParam: "q",
	},
	{
		Name:               "GOOGLE_NEWS",
		Domains:            []string{"news.google.com"},
		QueryParam:         "q",
		DeniedPathPrefixes: newsDeniedPaths,
		AllowEmptyQuery:    true,
	},
	{
		Name:       "BING",
		Domains:    []string{"bing.com", "www.bing.com"},
		QueryParam: "q",
	},
	{
		Name:       "DUCKDUCKGO",
		Domains:    []string{"duckduckgo.com"},
		QueryParam: "q",
	},
	{
		Name:               "GOOGLE",
		Domains:            []string{"google.com", "www.google.com"},
		QueryParam:         "q",
		DeniedPathPrefixes: googleDeniedPaths,
		AllowEmptyQuery:    true,
	},
}
