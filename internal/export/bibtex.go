package export

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/litrev/harvester/internal/scholar"
)

var citeKeyClean = regexp.MustCompile(`[^a-z0-9]+`)

// BibTeX renders records as @misc entries with stable citation keys. Keys
// collide when two records share a first-author surname and year; a numeric
// suffix disambiguates.
func BibTeX(records []scholar.PaperRecord) []byte {
	var buf bytes.Buffer
	seen := make(map[string]int)
	for _, r := range records {
		key := citeKey(r)
		if n := seen[key]; n > 0 {
			seen[key] = n + 1
			key = fmt.Sprintf("%s%d", key, n+1)
		} else {
			seen[key] = 1
		}

		fmt.Fprintf(&buf, "@misc{%s,\n", key)
		writeField(&buf, "title", r.Title)
		writeField(&buf, "author", r.Authors)
		if r.Year != 0 {
			fmt.Fprintf(&buf, "  year = {%d},\n", r.Year)
		}
		writeField(&buf, "journal", r.Source)
		writeField(&buf, "publisher", r.Publisher)
		writeField(&buf, "abstract", r.Abstract)
		writeField(&buf, "url", r.URL)
		fmt.Fprintf(&buf, "  note = {Cited by %d}\n}\n\n", r.Citations)
	}
	return buf.Bytes()
}

func citeKey(r scholar.PaperRecord) string {
	surname := "anon"
	if fields := strings.Fields(r.Authors); len(fields) > 0 {
		first := strings.Split(r.Authors, ",")[0]
		parts := strings.Fields(first)
		surname = strings.ToLower(parts[len(parts)-1])
	}
	surname = citeKeyClean.ReplaceAllString(surname, "")
	if surname == "" {
		surname = "anon"
	}
	if r.Year != 0 {
		return fmt.Sprintf("%s%d", surname, r.Year)
	}
	return surname
}

func writeField(buf *bytes.Buffer, name, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	value = strings.NewReplacer("{", "\\{", "}", "\\}").Replace(value)
	fmt.Fprintf(buf, "  %s = {%s},\n", name, value)
}
