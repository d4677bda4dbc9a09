// Package citation renders bibliography entries from the page metadata a
// session accumulates. The metadata bag is opaque and scraped from
// arbitrary pages, so every field is optional and rendering degrades to
// whatever is present.
package citation

import (
	"fmt"
	"strings"
	"time"

	"github.com/ant981228/research-tracker/internal/session"
)

// Style selects the citation format.
type Style string

const (
	StyleMLA9    Style = "mla9"
	StyleAPA7    Style = "apa7"
	StyleChicago Style = "chicago"
)

// Source is the normalized input for one citation.
type Source struct {
	Authors   []string
	Title     string
	SiteName  string
	Published time.Time
	URL       string
	Accessed  time.Time
}

// publish-date layouts observed in scraped metadata, most specific first.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"January 2, 2006",
	"2 January 2006",
	"2006",
}

// FromMetadata normalizes a metadata bag into a Source. Recognized keys:
// author (string or list), title, siteName, publisher, publishDate, date,
// url. Unrecognized keys are ignored.
func FromMetadata(url string, md session.Metadata, accessed time.Time) Source {
	src := Source{URL: url, Accessed: accessed}

	switch v := md["author"].(type) {
	case string:
		if v != "" {
			src.Authors = []string{v}
		}
	case []interface{}:
		for _, a := range v {
			if s, ok := a.(string); ok && s != "" {
				src.Authors = append(src.Authors, s)
			}
		}
	}

	src.Title = stringKey(md, "title")
	src.SiteName = stringKey(md, "siteName")
	if src.SiteName == "" {
		src.SiteName = stringKey(md, "publisher")
	}
	if u := stringKey(md, "url"); u != "" {
		src.URL = u
	}

	raw := stringKey(md, "publishDate")
	if raw == "" {
		raw = stringKey(md, "date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			src.Published = t
			break
		}
	}

	return src
}

func stringKey(md session.Metadata, key string) string {
	s, _ := md[key].(string)
	return strings.TrimSpace(s)
}

// Render produces the citation string for the given style.
func (s Source) Render(style Style) (string, error) {
	switch style {
	case StyleMLA9:
		return s.renderMLA(), nil
	case StyleAPA7:
		return s.renderAPA(), nil
	case StyleChicago:
		return s.renderChicago(), nil
	default:
		return "", fmt.Errorf("unknown citation style %q", style)
	}
}

// invert turns "First Middle Last" into "Last, First Middle". Single-token
// and already-inverted names pass through unchanged.
func invert(name string) string {
	if strings.Contains(name, ",") {
		return name
	}
	parts := strings.Fields(name)
	if len(parts) < 2 {
		return name
	}
	last := parts[len(parts)-1]
	return last + ", " + strings.Join(parts[:len(parts)-1], " ")
}

// initials turns "First Middle Last" into "Last, F. M." for APA.
func initials(name string) string {
	if strings.Contains(name, ",") {
		return name
	}
	parts := strings.Fields(name)
	if len(parts) < 2 {
		return name
	}
	last := parts[len(parts)-1]
	var b strings.Builder
	b.WriteString(last)
	b.WriteString(",")
	for _, p := range parts[:len(parts)-1] {
		fmt.Fprintf(&b, " %c.", []rune(p)[0])
	}
	return b.String()
}

func (s Source) mlaAuthors() string {
	switch len(s.Authors) {
	case 0:
		return ""
	case 1:
		return invert(s.Authors[0])
	case 2:
		return invert(s.Authors[0]) + ", and " + s.Authors[1]
	default:
		return invert(s.Authors[0]) + ", et al"
	}
}

func (s Source) apaAuthors() string {
	switch len(s.Authors) {
	case 0:
		return ""
	case 1:
		return initials(s.Authors[0])
	default:
		names := make([]string, len(s.Authors))
		for i, a := range s.Authors {
			names[i] = initials(a)
		}
		return strings.Join(names[:len(names)-1], ", ") + ", & " + names[len(names)-1]
	}
}

func (s Source) renderMLA() string {
	var parts []string
	if a := s.mlaAuthors(); a != "" {
		parts = append(parts, a+".")
	}
	if s.Title != "" {
		parts = append(parts, fmt.Sprintf("%q", s.Title))
	}
	if s.SiteName != "" {
		parts = append(parts, s.SiteName+",")
	}
	if !s.Published.IsZero() {
		parts = append(parts, s.Published.Format("2 Jan. 2006")+",")
	}
	if s.URL != "" {
		parts = append(parts, s.URL+".")
	}
	if !s.Accessed.IsZero() {
		parts = append(parts, "Accessed "+s.Accessed.Format("2 Jan. 2006")+".")
	}
	return strings.Join(parts, " ")
}

func (s Source) renderAPA() string {
	var parts []string
	if a := s.apaAuthors(); a != "" {
		parts = append(parts, a)
	}
	if !s.Published.IsZero() {
		parts = append(parts, "("+s.Published.Format("2006, January 2")+").")
	} else {
		parts = append(parts, "(n.d.).")
	}
	if s.Title != "" {
		parts = append(parts, s.Title+".")
	}
	if s.SiteName != "" {
		parts = append(parts, s.SiteName+".")
	}
	if s.URL != "" {
		parts = append(parts, s.URL)
	}
	return strings.Join(parts, " ")
}

func (s Source) renderChicago() string {
	var parts []string
	if len(s.Authors) > 0 {
		parts = append(parts, invert(s.Authors[0])+".")
	}
	if s.Title != "" {
		parts = append(parts, fmt.Sprintf("%q", s.Title))
	}
	if s.SiteName != "" {
		parts = append(parts, s.SiteName+".")
	}
	if !s.Published.IsZero() {
		parts = append(parts, s.Published.Format("January 2, 2006")+".")
	}
	if s.URL != "" {
		parts = append(parts, s.URL+".")
	}
	return strings.Join(parts, " ")
}
