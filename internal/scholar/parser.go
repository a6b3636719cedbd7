package scholar

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	yearRe     = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	citedByRe  = regexp.MustCompile(`Cited by (\d+)`)
	captchaRe  = regexp.MustCompile(`(?i)captcha`)
	blockIPRe  = regexp.MustCompile(`(?i)unusual traffic`)
	whitespace = regexp.MustCompile(`\s+`)
)

// ParseResults extracts paper records from a raw result page. Entries
// without a title are skipped. A nil error with zero records means the page
// genuinely held no results.
func ParseResults(page []byte) ([]PaperRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}

	var records []PaperRecord
	doc.Find("div.gs_r.gs_or.gs_scl").Each(func(_ int, s *goquery.Selection) {
		rec := parseEntry(s)
		if rec.Title == "" {
			return
		}
		records = append(records, rec)
	})
	return records, nil
}

func parseEntry(s *goquery.Selection) PaperRecord {
	var rec PaperRecord

	title := s.Find("h3.gs_rt a").First()
	rec.Title = cleanText(title.Text())
	if rec.Title == "" {
		// Some entries (citations, books) render the title without a
		// link.
		rec.Title = cleanText(stripMarkers(s.Find("h3.gs_rt").First().Text()))
	}
	rec.URL, _ = title.Attr("href")

	meta := cleanText(s.Find("div.gs_a").First().Text())
	rec.Authors, rec.Source, rec.Publisher = splitMeta(meta)
	if m := yearRe.FindString(meta); m != "" {
		rec.Year, _ = strconv.Atoi(m)
	}

	rec.Abstract = cleanText(s.Find("div.gs_rs").First().Text())

	s.Find("div.gs_fl a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if m := citedByRe.FindStringSubmatch(a.Text()); m != nil {
			rec.Citations, _ = strconv.Atoi(m[1])
			return false
		}
		return true
	})
	return rec
}

// splitMeta breaks the byline "authors - source, year - publisher" into its
// three segments. Absent segments stay empty.
func splitMeta(meta string) (authors, source, publisher string) {
	parts := strings.Split(meta, " - ")
	if len(parts) > 0 {
		authors = cleanText(parts[0])
	}
	if len(parts) > 1 {
		source = cleanText(yearRe.ReplaceAllString(parts[1], ""))
		source = strings.Trim(source, " ,")
	}
	if len(parts) > 2 {
		publisher = cleanText(parts[2])
	}
	return authors, source, publisher
}

// stripMarkers removes entry-type prefixes like "[PDF]" or "[CITATION]".
func stripMarkers(title string) string {
	for {
		title = strings.TrimSpace(title)
		if !strings.HasPrefix(title, "[") {
			return title
		}
		end := strings.IndexRune(title, ']')
		if end < 0 {
			return title
		}
		title = title[end+1:]
	}
}

func cleanText(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// BlockDetected reports whether the response indicates a captcha or rate
// limit block rather than a result page.
func BlockDetected(finalURL string, page []byte) bool {
	if strings.Contains(strings.ToLower(finalURL), "sorry") {
		return true
	}
	return captchaRe.Match(page) || blockIPRe.Match(page)
}
