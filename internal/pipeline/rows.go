package pipeline

import (
	"fmt"
	"strings"

	"specmatch/internal"
	"specmatch/internal/util"
)

// ParseInvoiceRows converts grid rows below the header into invoice items.
// Returns the items, human-readable warnings, the skipped-row count and the
// total data-row count. Subtotal rows are dropped silently; rows without a
// name are counted and reported.
func ParseInvoiceRows(grid [][]string, mapping *internal.ColumnMapping) ([]internal.InvoiceItem, []string, int, int) {
	items := []internal.InvoiceItem{}
	warnings := []string{}
	skipped := 0

	start := mapping.HeaderRow + 1
	totalRows := len(grid) - start
	if totalRows < 0 {
		totalRows = 0
	}

	for rowIdx := start; rowIdx < len(grid); rowIdx++ {
		row := grid[rowIdx]
		if rowIsBlank(row) {
			continue
		}

		name := mappedCell(row, mapping, internal.FieldName)
		if name == "" {
			skipped++
			warnings = append(warnings, fmt.Sprintf("строка %d: пустое наименование, позиция пропущена", rowIdx+1))
			continue
		}
		if isSubtotalName(name) {
			continue
		}

		item := internal.InvoiceItem{
			RowIndex: rowIdx,
			Name:     name,
			Article:  optionalText(row, mapping, internal.FieldArticle),
			Unit:     optionalText(row, mapping, internal.FieldUnit),
			Quantity: optionalNumber(row, mapping, internal.FieldQuantity),
			Price:    optionalNumber(row, mapping, internal.FieldPrice),
			Amount:   optionalNumber(row, mapping, internal.FieldAmount),
		}
		items = append(items, item)
	}

	return items, warnings, skipped, totalRows
}

// ParseSpecificationRows is the specification-table counterpart of
// ParseInvoiceRows.
func ParseSpecificationRows(grid [][]string, mapping *internal.ColumnMapping) ([]internal.SpecificationItem, []string, int, int) {
	items := []internal.SpecificationItem{}
	warnings := []string{}
	skipped := 0

	start := mapping.HeaderRow + 1
	totalRows := len(grid) - start
	if totalRows < 0 {
		totalRows = 0
	}

	for rowIdx := start; rowIdx < len(grid); rowIdx++ {
		row := grid[rowIdx]
		if rowIsBlank(row) {
			continue
		}

		name := mappedCell(row, mapping, internal.FieldName)
		if name == "" {
			skipped++
			warnings = append(warnings, fmt.Sprintf("строка %d: пустое наименование, позиция пропущена", rowIdx+1))
			continue
		}
		if isSubtotalName(name) {
			continue
		}

		item := internal.SpecificationItem{
			Name:            name,
			Characteristics: optionalText(row, mapping, internal.FieldCharacteristics),
			EquipmentCode:   optionalText(row, mapping, internal.FieldEquipmentCode),
			Manufacturer:    optionalText(row, mapping, internal.FieldManufacturer),
			Unit:            optionalText(row, mapping, internal.FieldUnit),
			Quantity:        optionalNumber(row, mapping, internal.FieldQuantity),
		}
		items = append(items, item)
	}

	return items, warnings, skipped, totalRows
}

// isSubtotalName recognizes subtotal and grand-total rows, which are
// dropped without a warning.
func isSubtotalName(name string) bool {
	folded := strings.ToLower(strings.TrimSpace(name))
	return strings.HasPrefix(folded, "итого") || strings.HasPrefix(folded, "всего") || folded == "total"
}

func mappedCell(row []string, mapping *internal.ColumnMapping, field string) string {
	idx, ok := mapping.Col(field)
	if !ok || idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func optionalText(row []string, mapping *internal.ColumnMapping, field string) *string {
	v := mappedCell(row, mapping, field)
	if v == "" {
		return nil
	}
	return util.StringPtr(v)
}

func optionalNumber(row []string, mapping *internal.ColumnMapping, field string) *float64 {
	return util.ParsePrice(mappedCell(row, mapping, field))
}
