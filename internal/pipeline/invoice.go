package pipeline

import (
	"fmt"
	"strings"

	"specmatch/internal"
)

// ParseInvoice runs the full ingestion chain over an already-extracted
// grid and text blob: column detection (saved mapping first), metadata
// cascades, row parsing, quality classification. It never returns an
// error; every failure mode is represented in the result.
func ParseInvoice(grid [][]string, text string, saved *internal.ColumnMapping, garbageThreshold float64) internal.InvoiceParseResult {
	result := internal.InvoiceParseResult{Items: []internal.InvoiceItem{}, Errors: []string{}}

	grid = NormalizeGrid(grid)
	if len(grid) < 2 {
		result.Errors = append(result.Errors, "документ пуст: таблица содержит меньше двух строк")
		result.Quality = internal.ParseQuality{Category: internal.QualityC, Reason: "документ пуст"}
		return result
	}

	meta := ExtractInvoiceMetadata(text, grid, garbageThreshold)
	result.InvoiceNumber = meta.Number
	result.InvoiceDate = meta.Date
	result.SupplierName = meta.Supplier
	result.TotalAmount = meta.Total

	mapping := saved
	if !mapping.Valid() {
		mapping = DetectInvoiceColumns(grid)
	}
	if !mapping.Valid() {
		result.Errors = append(result.Errors, "не удалось определить колонки таблицы, требуется ручная разметка")
		result.Quality = classifyQuality(text, false, 0, garbageThreshold)
		return result
	}

	items, warnings, skipped, totalRows := ParseInvoiceRows(grid, mapping)
	result.Items = items
	result.Errors = append(result.Errors, warnings...)
	result.SkippedRows = skipped
	result.TotalRows = totalRows
	result.Quality = classifyQuality(text, true, len(items), garbageThreshold)
	return result
}

// ParseSpecification is the customer-specification counterpart: no header
// metadata, deeper column scan, engineering-section inference.
func ParseSpecification(grid [][]string, saved *internal.ColumnMapping) internal.SpecParseResult {
	result := internal.SpecParseResult{Items: []internal.SpecificationItem{}, Errors: []string{}}

	grid = NormalizeGrid(grid)
	if len(grid) < 2 {
		result.Errors = append(result.Errors, "документ пуст: таблица содержит меньше двух строк")
		result.Quality = internal.ParseQuality{Category: internal.QualityC, Reason: "документ пуст"}
		return result
	}

	mapping := saved
	if !mapping.Valid() {
		mapping = DetectSpecificationColumns(grid)
	}
	if !mapping.Valid() {
		result.Errors = append(result.Errors, "не удалось определить колонки таблицы, требуется ручная разметка")
		result.Quality = internal.ParseQuality{Category: internal.QualityB, Reason: "структура таблицы не распознана"}
		return result
	}

	items, warnings, skipped, totalRows := ParseSpecificationRows(grid, mapping)
	result.Items = inferSections(items)
	result.Errors = append(result.Errors, warnings...)
	result.SkippedRows = skipped
	result.TotalRows = totalRows
	if len(result.Items) > 0 {
		result.Quality = internal.ParseQuality{Category: internal.QualityA, Reason: fmt.Sprintf("распознано позиций: %d", len(result.Items))}
	} else {
		result.Quality = internal.ParseQuality{Category: internal.QualityB, Reason: "таблица найдена, но позиции не распознаны"}
	}
	return result
}

// classifyQuality decides between normal preview (A), a re-parse flow (B)
// and a request-clean-source flow (C).
func classifyQuality(text string, mappingFound bool, itemCount int, garbageThreshold float64) internal.ParseQuality {
	if mappingFound && itemCount > 0 {
		return internal.ParseQuality{Category: internal.QualityA, Reason: fmt.Sprintf("распознано позиций: %d", itemCount)}
	}
	if TextGarbageRatio(text) > garbageThreshold {
		return internal.ParseQuality{Category: internal.QualityC, Reason: "текст документа не читается, нужен исходный файл лучшего качества"}
	}
	return internal.ParseQuality{Category: internal.QualityB, Reason: "текст извлечён, но структура таблицы не распознана"}
}

// inferSections folds heading rows ("Раздел ...") into a section attribute
// on the items that follow them. A heading row is an item with a bare name:
// no quantity, unit or code.
func inferSections(items []internal.SpecificationItem) []internal.SpecificationItem {
	out := make([]internal.SpecificationItem, 0, len(items))
	var current *string

	for _, item := range items {
		bare := item.Quantity == nil && item.Unit == nil && item.EquipmentCode == nil
		folded := strings.ToLower(strings.TrimSpace(item.Name))
		if bare && strings.HasPrefix(folded, "раздел") {
			name := strings.TrimSpace(item.Name)
			current = &name
			continue
		}
		if item.Section == nil {
			item.Section = current
		}
		out = append(out, item)
	}
	return out
}

// FlattenGrid joins grid cells into a text blob for sources that have no
// native free-text form (spreadsheets, HTML tables).
func FlattenGrid(grid [][]string) string {
	var b strings.Builder
	for _, row := range grid {
		for i, cell := range row {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString(cell)
		}
		b.WriteString("\n")
	}
	return b.String()
}
