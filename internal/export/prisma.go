package export

import (
	"bytes"
	"fmt"

	"github.com/litrev/harvester/internal/scholar"
)

// PRISMADiagram renders the screening flow as a standalone SVG with four
// stacked stage boxes and the per-stage exclusion counts alongside.
func PRISMADiagram(m scholar.PRISMAMetrics) []byte {
	stages := []struct {
		label string
		count int
	}{
		{"Records identified", m.RecordsIdentified},
		{"Records after duplicates removed", m.RecordsIdentified - m.DuplicatesRemoved},
		{"Records screened", m.RecordsScreened},
		{"Studies included", m.StudiesIncluded},
	}
	side := []struct {
		label string
		count int
	}{
		{"", 0},
		{"Duplicates removed", m.DuplicatesRemoved},
		{"", 0},
		{"Excluded by semantic screening", m.ExcludedSemantic},
	}

	const (
		boxW, boxH = 320, 64
		boxX       = 40
		gap        = 48
		sideX      = 420
	)
	height := len(stages)*(boxH+gap) + gap

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" width="760" height="%d" font-family="Helvetica, Arial, sans-serif" font-size="14">`+"\n", height)
	fmt.Fprintln(&buf, `<rect width="100%" height="100%" fill="white"/>`)

	for i, st := range stages {
		y := gap + i*(boxH+gap)
		fmt.Fprintf(&buf, `<rect x="%d" y="%d" width="%d" height="%d" rx="6" fill="#eef3fb" stroke="#27418f" stroke-width="1.5"/>`+"\n", boxX, y, boxW, boxH)
		fmt.Fprintf(&buf, `<text x="%d" y="%d" text-anchor="middle">%s</text>`+"\n", boxX+boxW/2, y+26, st.label)
		fmt.Fprintf(&buf, `<text x="%d" y="%d" text-anchor="middle" font-weight="bold">n = %d</text>`+"\n", boxX+boxW/2, y+48, st.count)

		if i < len(stages)-1 {
			midX := boxX + boxW/2
			fmt.Fprintf(&buf, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#27418f" stroke-width="1.5"/>`+"\n", midX, y+boxH, midX, y+boxH+gap)
			fmt.Fprintf(&buf, `<polygon points="%d,%d %d,%d %d,%d" fill="#27418f"/>`+"\n",
				midX-5, y+boxH+gap-8, midX+5, y+boxH+gap-8, midX, y+boxH+gap)
		}
		if side[i].label != "" {
			fmt.Fprintf(&buf, `<rect x="%d" y="%d" width="280" height="%d" rx="6" fill="#fdf2f0" stroke="#a33c2e" stroke-width="1.5"/>`+"\n", sideX, y, boxH)
			fmt.Fprintf(&buf, `<text x="%d" y="%d" text-anchor="middle">%s</text>`+"\n", sideX+140, y+26, side[i].label)
			fmt.Fprintf(&buf, `<text x="%d" y="%d" text-anchor="middle" font-weight="bold">n = %d</text>`+"\n", sideX+140, y+48, side[i].count)
			fmt.Fprintf(&buf, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#a33c2e" stroke-width="1.5"/>`+"\n", boxX+boxW, y+boxH/2, sideX, y+boxH/2)
		}
	}
	fmt.Fprintln(&buf, `</svg>`)
	return buf.Bytes()
}
