package extraction

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// rowTolerance is how far apart, in points, two lines may sit and still share a row
const rowTolerance = 2.0

var (
	reTop  = regexp.MustCompile(`(?:^|;)\s*top:\s*(-?[\d.]+)pt`)
	reLeft = regexp.MustCompile(`(?:^|;)\s*left:\s*(-?[\d.]+)pt`)
)

type layoutLine struct {
	top  float64
	left float64
	text string
}

// detectTables finds tabular regions in MuPDF's positioned HTML output. A table is two
// or more consecutive rows that each have at least two horizontally separated cells.
func detectTables(html string) ([][][]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing page layout: %w", err)
	}

	var lines []layoutLine
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		style, ok := sel.Attr("style")
		if !ok {
			return
		}
		top, okTop := styleValue(reTop, style)
		left, okLeft := styleValue(reLeft, style)
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if !okTop || !okLeft || text == "" {
			return
		}
		lines = append(lines, layoutLine{top: top, left: left, text: text})
	})

	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].top != lines[j].top {
			return lines[i].top < lines[j].top
		}
		return lines[i].left < lines[j].left
	})

	var tables [][][]string
	var current [][]string
	flush := func() {
		if len(current) >= 2 {
			tables = append(tables, current)
		}
		current = nil
	}

	for _, row := range groupRows(lines) {
		if len(row) < 2 {
			flush()
			continue
		}
		current = append(current, row)
	}
	flush()

	return tables, nil
}

// groupRows merges lines sitting at the same height into rows of cells ordered left to right
func groupRows(lines []layoutLine) [][]string {
	var rows [][]string
	var row []layoutLine
	emit := func() {
		if len(row) == 0 {
			return
		}
		sort.SliceStable(row, func(i, j int) bool { return row[i].left < row[j].left })
		cells := make([]string, len(row))
		for i, l := range row {
			cells[i] = l.text
		}
		rows = append(rows, cells)
		row = nil
	}

	for _, l := range lines {
		if len(row) > 0 && math.Abs(l.top-row[0].top) > rowTolerance {
			emit()
		}
		row = append(row, l)
	}
	emit()

	return rows
}

func styleValue(re *regexp.Regexp, style string) (float64, bool) {
	m := re.FindStringSubmatch(style)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// formatTables serializes tables as pipe-delimited rows under a TABLES marker
func formatTables(tables [][][]string) string {
	if len(tables) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n--- TABLES ---\n\n")
	for _, table := range tables {
		for _, row := range table {
			b.WriteString(strings.Join(row, " | "))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}
