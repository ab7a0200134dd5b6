package gafscrape

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reviewCountRe = regexp.MustCompile(`\((\d+)\)`)
	distanceRe    = regexp.MustCompile(`([\d.]+)\s*mi`)
)

// parseLocation splits a card location label like "Wayne, NJ - 17.3 mi" into
// the city/state part and the numeric distance. Labels without the distance
// suffix return a nil distance.
func parseLocation(label string) (string, *float64) {
	label = strings.TrimSpace(label)
	city, rest, found := strings.Cut(label, " - ")
	if !found {
		return label, nil
	}
	city = strings.TrimSpace(city)
	if m := distanceRe.FindStringSubmatch(rest); m != nil {
		if d, err := strconv.ParseFloat(m[1], 64); err == nil {
			return city, &d
		}
	}
	return city, nil
}

// parseReviewCount extracts the number from a "(437)" review total label.
func parseReviewCount(label string) *int {
	m := reviewCountRe.FindStringSubmatch(strings.TrimSpace(label))
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

// parseRating parses the "5.0" rating average label.
func parseRating(label string) *float64 {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil
	}
	r, err := strconv.ParseFloat(label, 64)
	if err != nil || r < 0 || r > 5 {
		return nil
	}
	return &r
}

// parsePhone strips the tel: scheme from a phone link href.
func parsePhone(href string) *string {
	href = strings.TrimSpace(href)
	if !strings.HasPrefix(href, "tel:") {
		return nil
	}
	p := strings.TrimSpace(strings.TrimPrefix(href, "tel:"))
	if p == "" {
		return nil
	}
	return &p
}

// absoluteURL resolves a profile href against the site base URL.
func absoluteURL(baseURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base := strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return base + href
}

// sourceIDFromURL derives a stable identifier from the profile URL's final
// path segment.
func sourceIDFromURL(profileURL string) string {
	trimmed := strings.TrimRight(profileURL, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || idx == len(trimmed)-1 {
		return ""
	}
	return trimmed[idx+1:]
}
