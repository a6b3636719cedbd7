// Package export renders completed harvests into review-ready artifacts.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/litrev/harvester/internal/scholar"
)

var csvHeader = []string{"Title", "Authors", "Year", "Source", "Publisher", "Citations", "Abstract", "URL"}

// CSV renders records as a spreadsheet with a fixed column order. An empty
// record set still yields the header row. A Semantic_Score column is
// appended only when at least one record carries a score.
func CSV(records []scholar.PaperRecord) ([]byte, error) {
	withScores := false
	for _, r := range records {
		if r.SemanticScore != nil {
			withScores = true
			break
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := csvHeader
	if withScores {
		header = append(append([]string(nil), csvHeader...), "Semantic_Score")
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, r := range records {
		row := []string{
			r.Title,
			r.Authors,
			yearString(r.Year),
			r.Source,
			r.Publisher,
			fmt.Sprintf("%d", r.Citations),
			r.Abstract,
			r.URL,
		}
		if withScores {
			score := ""
			if r.SemanticScore != nil {
				score = fmt.Sprintf("%d", *r.SemanticScore)
			}
			row = append(row, score)
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func yearString(year int) string {
	if year == 0 {
		return ""
	}
	return fmt.Sprintf("%d", year)
}
