package export

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/litrev/harvester/internal/scholar"
)

var latexTmpl = template.Must(template.New("summary").Funcs(template.FuncMap{
	"esc": escapeLaTeX,
}).Parse(`\documentclass{article}
\usepackage[margin=1in]{geometry}
\usepackage{longtable}
\title{ {{- esc .Name -}} }
\date{ {{- .Date -}} }
\begin{document}
\maketitle

\section*{Search Summary}
\begin{itemize}
  \item Records identified: {{.PRISMA.RecordsIdentified}}
  \item Duplicates removed: {{.PRISMA.DuplicatesRemoved}}
  \item Records screened: {{.PRISMA.RecordsScreened}}
  \item Excluded by semantic screening: {{.PRISMA.ExcludedSemantic}}
  \item Studies included: {{.PRISMA.StudiesIncluded}}
\end{itemize}

\section*{Included Studies}
\begin{longtable}{p{6cm} p{3.5cm} l r}
\textbf{Title} & \textbf{Authors} & \textbf{Year} & \textbf{Citations} \\
\hline
\endhead
{{range .Records}}{{esc .Title}} & {{esc .Authors}} & {{if .Year}}{{.Year}}{{end}} & {{.Citations}} \\
{{end}}\end{longtable}
\end{document}
`))

type latexData struct {
	Name    string
	Date    string
	PRISMA  scholar.PRISMAMetrics
	Records []scholar.PaperRecord
}

// LaTeX renders a compilable summary document for the completed job.
func LaTeX(name, date string, prisma scholar.PRISMAMetrics, records []scholar.PaperRecord) ([]byte, error) {
	var buf bytes.Buffer
	err := latexTmpl.Execute(&buf, latexData{
		Name:    name,
		Date:    date,
		PRISMA:  prisma,
		Records: records,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var latexEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`&`, `\&`,
	`%`, `\%`,
	`$`, `\$`,
	`#`, `\#`,
	`_`, `\_`,
	`{`, `\{`,
	`}`, `\}`,
	`~`, `\textasciitilde{}`,
	`^`, `\textasciicircum{}`,
)

func escapeLaTeX(s string) string {
	return latexEscaper.Replace(s)
}
