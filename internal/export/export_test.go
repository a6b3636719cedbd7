package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/litrev/harvester/internal/scholar"
)

func TestCSVEmptySetKeepsHeader(t *testing.T) {
	t.Parallel()

	data, err := CSV(nil)
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, []string{"Title", "Authors", "Year", "Source", "Publisher", "Citations", "Abstract", "URL"}, rows[0])
}

func TestCSVRendersRecords(t *testing.T) {
	t.Parallel()

	data, err := CSV([]scholar.PaperRecord{
		{
			Title:     `Reefs, "resilience" and recovery`,
			Authors:   "J Smith, A Jones",
			Year:      2020,
			Source:    "Nature",
			Publisher: "nature.com",
			Citations: 42,
			Abstract:  "Multi-line\nabstract text",
			URL:       "https://example.org/reefs",
		},
		{Title: "No Year Entry"},
	})
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, `Reefs, "resilience" and recovery`, rows[1][0])
	require.Equal(t, "2020", rows[1][2])
	require.Equal(t, "42", rows[1][5])
	require.Equal(t, "Multi-line\nabstract text", rows[1][6])
	require.Equal(t, "", rows[2][2])
	require.Equal(t, "0", rows[2][5])
}

func TestCSVScoreColumnOnlyWhenScored(t *testing.T) {
	t.Parallel()

	score := 8
	data, err := CSV([]scholar.PaperRecord{
		{Title: "scored", SemanticScore: &score},
		{Title: "unscored"},
	})
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Equal(t, "Semantic_Score", rows[0][len(rows[0])-1])
	require.Equal(t, "8", rows[1][8])
	require.Equal(t, "", rows[2][8])

	plain, err := CSV([]scholar.PaperRecord{{Title: "unscored"}})
	require.NoError(t, err)
	require.NotContains(t, string(plain), "Semantic_Score")
}

func TestBibTeXKeysAndEscaping(t *testing.T) {
	t.Parallel()

	out := string(BibTeX([]scholar.PaperRecord{
		{Title: "First Paper", Authors: "J Smith, A Jones", Year: 2020},
		{Title: "Second Paper", Authors: "B Smith", Year: 2020},
		{Title: "Braces {inside} title", Year: 2021, Citations: 7},
		{Title: "Keyless"},
	}))

	require.Contains(t, out, "@misc{smith2020,")
	require.Contains(t, out, "@misc{smith20202,")
	require.Contains(t, out, "@misc{anon2021,")
	require.Contains(t, out, "@misc{anon,")
	require.Contains(t, out, `title = {Braces \{inside\} title}`)
	require.Contains(t, out, "note = {Cited by 7}")
	require.NotContains(t, out, "author = {}")
}

func TestPRISMADiagramCounts(t *testing.T) {
	t.Parallel()

	svg := string(PRISMADiagram(scholar.PRISMAMetrics{
		RecordsIdentified: 120,
		DuplicatesRemoved: 20,
		RecordsScreened:   100,
		ExcludedSemantic:  30,
		StudiesIncluded:   70,
	}))

	require.True(t, strings.HasPrefix(svg, "<svg "))
	require.Contains(t, svg, "Records identified")
	require.Contains(t, svg, "n = 120")
	require.Contains(t, svg, "Records after duplicates removed")
	require.Contains(t, svg, "n = 100")
	require.Contains(t, svg, "Duplicates removed")
	require.Contains(t, svg, "n = 20")
	require.Contains(t, svg, "Excluded by semantic screening")
	require.Contains(t, svg, "n = 30")
	require.Contains(t, svg, "n = 70")
	require.Contains(t, svg, "</svg>")
}

func TestLaTeXEscapesSpecials(t *testing.T) {
	t.Parallel()

	data, err := LaTeX("Coral & Reef 100% Review", "2025-06-01", scholar.PRISMAMetrics{
		RecordsIdentified: 10,
		StudiesIncluded:   4,
	}, []scholar.PaperRecord{
		{Title: "CO_2 effects on $growth$", Authors: "L Chen", Year: 2019, Citations: 3},
	})
	require.NoError(t, err)

	doc := string(data)
	require.Contains(t, doc, `Coral \& Reef 100\% Review`)
	require.Contains(t, doc, `CO\_2 effects on \$growth\$`)
	require.Contains(t, doc, "Records identified: 10")
	require.Contains(t, doc, "Studies included: 4")
	require.Contains(t, doc, `\begin{document}`)
	require.Contains(t, doc, `\end{document}`)
}
