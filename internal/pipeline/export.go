package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"specmatch/internal"
)

var exportHeader = []string{
	"Раздел",
	"Наименование по спецификации",
	"Ед. изм.",
	"Кол-во",
	"Наименование по счёту",
	"Артикул",
	"Поставщик",
	"Цена",
	"Сумма",
	"Уверенность",
	"Тип совпадения",
	"Подтверждено",
}

var matchTypeLabels = map[internal.MatchType]string{
	internal.MatchExactArticle:   "артикул",
	internal.MatchLearnedRule:    "правило",
	internal.MatchNameSimilarity: "наименование",
	internal.MatchNameCharacts:   "наименование+характеристики",
}

// ExportReconciliation writes the reconciliation report to an XLSX file:
// rows grouped by specification section, a subtotal per section and a
// grand total at the bottom. Line amounts are recomputed as price times
// quantity rounded to kopecks; stored invoice amounts are not trusted.
func ExportReconciliation(rows []internal.ReconciliationRow, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	rowIdx := 1
	set := func(col int, value interface{}) {
		cell, _ := excelize.CoordinatesToCellName(col, rowIdx)
		_ = f.SetCellValue(sheet, cell, value)
	}

	for col, title := range exportHeader {
		set(col+1, title)
	}
	rowIdx++

	grandTotal := decimal.Zero
	sectionTotal := decimal.Zero
	var currentSection *string
	sectionOpen := false
	started := false

	flushSection := func() {
		if !sectionOpen {
			return
		}
		set(2, fmt.Sprintf("Итого по разделу: %s", sectionLabel(currentSection)))
		set(9, sectionTotal.InexactFloat64())
		rowIdx++
		sectionOpen = false
	}

	for _, row := range rows {
		// The started flag gives the first group a heading even when its
		// section is nil, which sameSection cannot distinguish from the
		// initial state.
		if !started || !sameSection(currentSection, row.Section) {
			flushSection()
			currentSection = row.Section
			sectionTotal = decimal.Zero
			set(1, sectionLabel(currentSection))
			rowIdx++
			started = true
		}
		sectionOpen = true

		set(2, row.SpecName)
		if row.SpecUnit != nil {
			set(3, *row.SpecUnit)
		}
		if row.SpecQuantity != nil {
			set(4, *row.SpecQuantity)
		}
		if row.InvoiceName != nil {
			set(5, *row.InvoiceName)
		} else {
			set(5, "нет совпадения")
		}
		if row.InvoiceArticle != nil {
			set(6, *row.InvoiceArticle)
		}
		if row.SupplierName != nil {
			set(7, *row.SupplierName)
		}
		if row.Price != nil {
			set(8, *row.Price)
		}
		if amount := lineAmount(row); amount != nil {
			set(9, amount.InexactFloat64())
			sectionTotal = sectionTotal.Add(*amount)
			grandTotal = grandTotal.Add(*amount)
		}
		if row.Confidence != nil {
			set(10, *row.Confidence)
		}
		if row.MatchType != "" {
			label, ok := matchTypeLabels[row.MatchType]
			if !ok {
				label = string(row.MatchType)
			}
			set(11, label)
		}
		if row.Confirmed {
			set(12, "да")
		}
		rowIdx++
	}
	flushSection()

	set(2, "ИТОГО")
	set(9, grandTotal.InexactFloat64())

	return f.SaveAs(outPath)
}

// lineAmount is price * quantity rounded to 2 decimal places, nil when
// either side is missing.
func lineAmount(row internal.ReconciliationRow) *decimal.Decimal {
	if row.Price == nil || row.SpecQuantity == nil {
		return nil
	}
	amount := decimal.NewFromFloat(*row.Price).
		Mul(decimal.NewFromFloat(*row.SpecQuantity)).
		Round(2)
	return &amount
}

func sectionLabel(section *string) string {
	if section == nil || *section == "" {
		return "Без раздела"
	}
	return *section
}

func sameSection(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
