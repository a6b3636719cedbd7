package scholar

import (
	"fmt"
	"net/url"
	"strings"
)

const resultsBaseURL = "https://scholar.google.com/scholar"

// BuildQuery turns the keyword lists into a search expression. Multi-word
// include terms are quoted; exclude terms get a minus prefix.
func BuildQuery(include, exclude []string) string {
	parts := make([]string, 0, len(include)+len(exclude))
	for _, kw := range include {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.ContainsRune(kw, ' ') {
			kw = fmt.Sprintf("%q", kw)
		}
		parts = append(parts, kw)
	}
	for _, kw := range exclude {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.ContainsRune(kw, ' ') {
			kw = fmt.Sprintf("%q", kw)
		}
		parts = append(parts, "-"+kw)
	}
	return strings.Join(parts, " ")
}

// SearchPageURL builds the result-page URL for one offset of one year
// partition. Zero year bounds omit the year restriction.
func SearchPageURL(q PageQuery) string {
	v := url.Values{}
	v.Set("q", q.Query)
	v.Set("hl", "en")
	if q.Offset > 0 {
		v.Set("start", fmt.Sprintf("%d", q.Offset))
	}
	if q.YearLow > 0 {
		v.Set("as_ylo", fmt.Sprintf("%d", q.YearLow))
	}
	if q.YearHigh > 0 {
		v.Set("as_yhi", fmt.Sprintf("%d", q.YearHigh))
	}
	return resultsBaseURL + "?" + v.Encode()
}
