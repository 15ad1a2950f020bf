package pipeline

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"specmatch/internal"
	"specmatch/internal/util"
)

// Requisites-table classification and product-table scoring are defined by
// calibration; the lists and thresholds below are data, not derivable
// rules.
var (
	bankTableKeywords = []string{"бик", "к/с", "р/с", "корсчет", "кор/счет", "банк", "инн", "кпп", "огрн", "расчетный счет"}
	productKeywords   = []string{"наименование", "товар", "артикул", "кол-во", "количество", "цена", "сумма", "ед.", "шт"}
)

const bankKeywordThreshold = 3

// pdf glyph clustering tolerances, in points
const (
	pdfLineTolerance = 2.0
	pdfCellGap       = 10.0
)

// ExtractXLSX reads the first sheet of a workbook into a normalized grid.
func ExtractXLSX(content []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return [][]string{}, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	return NormalizeGrid(rows), nil
}

// PDFExtraction carries both views of a PDF: the flattened text for
// metadata cascades and candidate tables reconstructed from glyph
// positions.
type PDFExtraction struct {
	Text   string
	Tables [][][]string
}

func ExtractPDF(content []byte) (PDFExtraction, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return PDFExtraction{}, err
	}

	var textBuf strings.Builder
	tables := [][][]string{}

	for pageNo := 1; pageNo <= r.NumPage(); pageNo++ {
		p := r.Page(pageNo)
		if p.V.IsNull() {
			continue
		}
		if text, err := p.GetPlainText(nil); err == nil {
			textBuf.WriteString(text)
			textBuf.WriteString("\n")
		}
		lines := clusterPageLines(p.Content().Text)
		tables = append(tables, tablesFromLines(lines)...)
	}

	return PDFExtraction{Text: textBuf.String(), Tables: tables}, nil
}

// clusterPageLines groups positioned glyph fragments into visual lines
// (by Y) and cells (by X gaps).
func clusterPageLines(fragments []pdf.Text) [][]string {
	if len(fragments) == 0 {
		return nil
	}

	sorted := make([]pdf.Text, len(fragments))
	copy(sorted, fragments)
	sort.SliceStable(sorted, func(i, j int) bool {
		if diff := sorted[i].Y - sorted[j].Y; diff > pdfLineTolerance || diff < -pdfLineTolerance {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	lines := [][]string{}
	var cells []string
	var cellBuf strings.Builder
	prevY := sorted[0].Y
	prevEnd := sorted[0].X

	flushCell := func() {
		if cell := util.NormalizeSpaces(cellBuf.String()); cell != "" {
			cells = append(cells, cell)
		}
		cellBuf.Reset()
	}
	flushLine := func() {
		flushCell()
		if len(cells) > 0 {
			lines = append(lines, cells)
		}
		cells = nil
	}

	for i, frag := range sorted {
		if i > 0 {
			dy := prevY - frag.Y
			if dy > pdfLineTolerance || dy < -pdfLineTolerance {
				flushLine()
				prevEnd = frag.X
			} else if frag.X-prevEnd > pdfCellGap {
				flushCell()
			}
		}
		cellBuf.WriteString(frag.S)
		prevY = frag.Y
		prevEnd = frag.X + frag.W
	}
	flushLine()

	return lines
}

// tablesFromLines turns consecutive runs of multi-cell lines into candidate
// tables, padded to each run's dominant column count.
func tablesFromLines(lines [][]string) [][][]string {
	tables := [][][]string{}
	var run [][]string

	flush := func() {
		if len(run) >= 2 {
			tables = append(tables, NormalizeGrid(run))
		}
		run = nil
	}

	for _, line := range lines {
		if len(line) >= 2 {
			run = append(run, line)
			continue
		}
		flush()
	}
	flush()

	return tables
}

// SelectProductTable picks the candidate most likely to be the line-item
// table: requisites tables are excluded outright, the rest are ranked by
// product-keyword density with a size tie-break. Nil when nothing
// qualifies.
func SelectProductTable(tables [][][]string) [][]string {
	var best [][]string
	bestScore := -1.0

	for _, table := range tables {
		if isRequisitesTable(table) {
			continue
		}
		score := productKeywordDensity(table)
		if score > bestScore || (score == bestScore && len(table) > len(best)) {
			best = table
			bestScore = score
		}
	}
	return best
}

func isRequisitesTable(table [][]string) bool {
	hits := 0
	for _, row := range table {
		for _, cell := range row {
			lower := strings.ToLower(cell)
			for _, kw := range bankTableKeywords {
				if strings.Contains(lower, kw) {
					hits++
				}
			}
		}
	}
	return hits >= bankKeywordThreshold
}

func productKeywordDensity(table [][]string) float64 {
	cellCount := 0
	hits := 0
	for _, row := range table {
		for _, cell := range row {
			cellCount++
			lower := strings.ToLower(cell)
			for _, kw := range productKeywords {
				if strings.Contains(lower, kw) {
					hits++
				}
			}
		}
	}
	if cellCount == 0 {
		return 0
	}
	return float64(hits) / float64(cellCount)
}

// ExtractDocument turns raw file bytes into the uniform (grid, text) pair
// the parsers run on. PDF and HTML sources go through product-table
// selection; spreadsheets are taken as-is, first sheet only.
func ExtractDocument(kind internal.DocumentKind, content []byte) ([][]string, string, error) {
	switch kind {
	case internal.DocXLSX:
		grid, err := ExtractXLSX(content)
		if err != nil {
			return nil, "", err
		}
		return grid, FlattenGrid(grid), nil
	case internal.DocPDF:
		extraction, err := ExtractPDF(content)
		if err != nil {
			return nil, "", err
		}
		grid := SelectProductTable(extraction.Tables)
		return grid, extraction.Text, nil
	case internal.DocEmailHTML:
		tables, err := ExtractHTMLTables(string(content))
		if err != nil {
			return nil, "", err
		}
		grid := SelectProductTable(tables)
		return grid, FlattenGrid(grid), nil
	default:
		return nil, "", fmt.Errorf("unsupported document kind: %s", kind)
	}
}

// ExtractHTMLTables reads every <table> in an HTML document into a grid.
// Supplier emails routinely hold the line items in an HTML table body.
func ExtractHTMLTables(html string) ([][][]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	tables := [][][]string{}
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		grid := [][]string{}
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := []string{}
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, util.NormalizeSpaces(cell.Text()))
			})
			if len(cells) > 0 {
				grid = append(grid, cells)
			}
		})
		if len(grid) >= 2 {
			tables = append(tables, NormalizeGrid(grid))
		}
	})

	return tables, nil
}
