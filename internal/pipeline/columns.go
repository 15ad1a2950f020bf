package pipeline

import (
	"strings"

	"specmatch/internal"
)

// Ordered keyword lists per logical field. Order inside a list is priority
// order; order across fields decides which field claims a cell that matches
// several lists. The lists are calibration data: extend them, do not
// restructure them.
type fieldKeywords struct {
	field    string
	keywords []string
}

var invoiceFields = []fieldKeywords{
	{internal.FieldArticle, []string{"артикул", "арт.", "арт", "код товара", "article", "sku"}},
	{internal.FieldName, []string{"наименование", "название", "товар", "номенклатура", "позиция", "name", "product"}},
	{internal.FieldQuantity, []string{"кол-во", "кол.", "количество", "кол", "qty", "quantity"}},
	// Price before unit: "цена за ед." must land on price, not unit.
	{internal.FieldPrice, []string{"цена", "price"}},
	{internal.FieldAmount, []string{"сумма", "стоимость", "amount"}},
	{internal.FieldUnit, []string{"ед. изм", "ед.изм", "ед изм", "единица", "ед.", "ед", "изм", "unit"}},
}

var specificationFields = []fieldKeywords{
	{internal.FieldPositionNumber, []string{"№ п/п", "№п/п", "п/п", "поз.", "поз", "№"}},
	{internal.FieldName, []string{"наименование", "название", "оборудование", "изделие", "name"}},
	{internal.FieldCharacteristics, []string{"характеристик", "технические", "параметр", "описание"}},
	{internal.FieldEquipmentCode, []string{"код оборудования", "код изделия", "артикул", "тип, марка", "код"}},
	{internal.FieldManufacturer, []string{"производитель", "изготовитель", "завод"}},
	{internal.FieldQuantity, []string{"кол-во", "кол.", "количество", "кол", "qty"}},
	{internal.FieldUnit, []string{"ед. изм", "ед.изм", "ед изм", "единица", "ед.", "ед", "изм"}},
}

const (
	invoiceHeaderScanRows = 10
	// Specification sheets carry title blocks and stamps above the table.
	specHeaderScanRows = 30
)

// DetectInvoiceColumns locates the header row of an invoice-style table and
// maps fields to column indexes. Returns nil when no row within the scan
// window qualifies; callers fall back to a saved or manual mapping.
func DetectInvoiceColumns(grid [][]string) *internal.ColumnMapping {
	return detectColumns(grid, invoiceFields, invoiceHeaderScanRows)
}

// DetectSpecificationColumns is DetectInvoiceColumns for customer
// equipment specifications, with a deeper scan window.
func DetectSpecificationColumns(grid [][]string) *internal.ColumnMapping {
	return detectColumns(grid, specificationFields, specHeaderScanRows)
}

func detectColumns(grid [][]string, fields []fieldKeywords, maxRows int) *internal.ColumnMapping {
	limit := len(grid)
	if limit > maxRows {
		limit = maxRows
	}

	for rowIdx := 0; rowIdx < limit; rowIdx++ {
		cols := matchHeaderRow(grid[rowIdx], fields)
		if _, hasName := cols[internal.FieldName]; hasName && len(cols) >= 2 {
			return &internal.ColumnMapping{HeaderRow: rowIdx, Columns: cols}
		}
	}
	return nil
}

func matchHeaderRow(row []string, fields []fieldKeywords) map[string]int {
	cols := map[string]int{}
	claimed := map[int]bool{}

	for colIdx, cell := range row {
		norm := strings.ToLower(strings.TrimSpace(cell))
		if norm == "" || claimed[colIdx] {
			continue
		}
		for _, fk := range fields {
			if _, taken := cols[fk.field]; taken {
				continue
			}
			if matchesAny(norm, fk.keywords) {
				cols[fk.field] = colIdx
				claimed[colIdx] = true
				break
			}
		}
	}
	return cols
}

func matchesAny(cell string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(cell, kw) {
			return true
		}
	}
	return false
}
