package mapurl

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	reAt = regexp.MustCompile(`@(-?\d+(?:\.\d+)?),(-?\d+(?:\.\d+)?)`)
	reQ  = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*$`)
)

// SearchURL returns a Google Maps search link for a free-form place name.
func SearchURL(location string) string {
	return "https://www.google.com/maps/search/?api=1&query=" + url.QueryEscape(location)
}

// PlaceFromURL pulls a usable place query out of a pasted Google Maps URL,
// so a maps link works anywhere a location name is expected. Returns ""
// when the input is not a maps link or names no place.
func PlaceFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Host)
	if !strings.Contains(host, "google.") && !strings.HasSuffix(host, "goo.gl") {
		return ""
	}

	// Pattern A: /maps/place/<name>/...
	if i := strings.Index(u.Path, "/maps/place/"); i >= 0 {
		rest := u.Path[i+len("/maps/place/"):]
		if j := strings.Index(rest, "/"); j >= 0 {
			rest = rest[:j]
		}
		if rest != "" {
			if dec, err := url.PathUnescape(rest); err == nil {
				rest = dec
			}
			return strings.ReplaceAll(rest, "+", " ")
		}
	}

	// Pattern B: query params like ?q=... or ?query=...
	for _, key := range []string{"q", "query"} {
		if v := u.Query().Get(key); v != "" {
			return v
		}
	}

	// Pattern C: .../@lat,lng,zoom...
	if m := reAt.FindStringSubmatch(raw); len(m) == 3 {
		return m[1] + "," + m[2]
	}

	return ""
}

// IsCoordinates reports whether a place query is a bare "lat,lng" pair.
func IsCoordinates(query string) bool {
	return reQ.MatchString(query)
}
