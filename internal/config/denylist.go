package config

// DefaultExcludedDomains returns the built-in list of domains whose page
// visits should never be recorded. These are aggregator and shadow-library
// sites that produce no citable metadata, so logging them only pollutes a
// session's timeline.
func DefaultExcludedDomains() []string {
	return []string{
		// Shadow libraries / piracy mirrors
		"sci-hub.se",
		"sci-hub.st",
		"sci-hub.ru",
		"libgen.is",
		"libgen.rs",
		"annas-archive.org",
		"z-lib.org",

		// Link aggregators with no original content
		"news.ycombinator.com",
		"reddit.com",

		// URL shorteners (the resolved target gets logged instead)
		"bit.ly",
		"t.co",
		"tinyurl.com",
		"goo.gl",
	}
}
