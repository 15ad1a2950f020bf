package pipeline

import (
	"strings"
	"testing"

	"specmatch/internal"
)

func TestParseInvoiceEndToEnd(t *testing.T) {
	grid := [][]string{
		{"Счет на оплату № 105 от 12.03.2024", "", "", "", "", ""},
		{"Поставщик: ООО ТехноСнаб", "", "", "", "", ""},
		{"Артикул", "Наименование", "Кол-во", "Ед.", "Цена", "Сумма"},
		{"ABC-1", "Кабель ВВГ 3х2.5", "100", "м", "45,50", "4550"},
		{"", "Итого", "", "", "", "4550"},
	}

	result := ParseInvoice(grid, FlattenGrid(grid), nil, 0.3)

	if result.InvoiceNumber == nil || *result.InvoiceNumber != "105" {
		t.Fatalf("number = %v", result.InvoiceNumber)
	}
	if result.InvoiceDate == nil || *result.InvoiceDate != "12.03.2024" {
		t.Fatalf("date = %v", result.InvoiceDate)
	}
	if result.SupplierName == nil || *result.SupplierName != "ООО ТехноСнаб" {
		t.Fatalf("supplier = %v", result.SupplierName)
	}
	if result.TotalAmount == nil || *result.TotalAmount != 4550 {
		t.Fatalf("total = %v", result.TotalAmount)
	}

	if len(result.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(result.Items))
	}
	item := result.Items[0]
	if item.Article == nil || *item.Article != "ABC-1" {
		t.Fatalf("article = %v", item.Article)
	}
	if item.Price == nil || *item.Price != 45.5 {
		t.Fatalf("price = %v", item.Price)
	}
	if result.Quality.Category != internal.QualityA {
		t.Fatalf("quality = %s (%s)", result.Quality.Category, result.Quality.Reason)
	}
}

func TestParseInvoiceSavedMappingWins(t *testing.T) {
	// Columns deliberately disagree with what detection would find.
	saved := &internal.ColumnMapping{
		HeaderRow: 0,
		Columns: map[string]int{
			internal.FieldName:     0,
			internal.FieldQuantity: 1,
		},
	}
	grid := [][]string{
		{"Наименование", "Кол-во", "Цена"},
		{"Кабель", "5", "100"},
	}

	result := ParseInvoice(grid, FlattenGrid(grid), saved, 0.3)
	if len(result.Items) != 1 {
		t.Fatalf("items = %d", len(result.Items))
	}
	if result.Items[0].Price != nil {
		t.Fatalf("saved mapping has no price column, got %v", *result.Items[0].Price)
	}
}

func TestParseInvoiceEmptyDocument(t *testing.T) {
	result := ParseInvoice([][]string{{"одна строка"}}, "одна строка", nil, 0.3)
	if result.Quality.Category != internal.QualityC {
		t.Fatalf("quality = %s", result.Quality.Category)
	}
	if len(result.Errors) == 0 {
		t.Fatalf("expected an error message")
	}
}

func TestParseInvoiceNoColumns(t *testing.T) {
	grid := [][]string{
		{"письмо без таблицы", ""},
		{"просто текст", ""},
	}
	result := ParseInvoice(grid, FlattenGrid(grid), nil, 0.3)
	if len(result.Items) != 0 {
		t.Fatalf("items = %d", len(result.Items))
	}
	if result.Quality.Category != internal.QualityB {
		t.Fatalf("quality = %s (%s)", result.Quality.Category, result.Quality.Reason)
	}
}

func TestParseInvoiceGarbageTextQuality(t *testing.T) {
	garbage := strings.Repeat("\x01", 100)
	grid := [][]string{
		{"мусор", ""},
		{"мусор", ""},
	}
	result := ParseInvoice(grid, garbage, nil, 0.3)
	if result.Quality.Category != internal.QualityC {
		t.Fatalf("quality = %s (%s)", result.Quality.Category, result.Quality.Reason)
	}
}

func TestParseSpecificationSections(t *testing.T) {
	grid := [][]string{
		{"№ п/п", "Наименование", "Характеристики", "Код оборудования", "Ед. изм.", "Кол-во"},
		{"", "Раздел 1. Электроснабжение", "", "", "", ""},
		{"1", "Кабель ВВГ", "3х2.5", "К-001", "м", "100"},
		{"2", "Автомат защиты", "16А", "", "шт", "4"},
		{"", "Раздел 2. Освещение", "", "", "", ""},
		{"3", "Светильник LED", "36Вт", "", "шт", "12"},
	}

	result := ParseSpecification(grid, nil)
	if len(result.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(result.Items))
	}
	for i, wantSection := range []string{"Раздел 1. Электроснабжение", "Раздел 1. Электроснабжение", "Раздел 2. Освещение"} {
		item := result.Items[i]
		if item.Section == nil || *item.Section != wantSection {
			t.Fatalf("item %d section = %v, want %q", i, item.Section, wantSection)
		}
	}
	if result.Quality.Category != internal.QualityA {
		t.Fatalf("quality = %s", result.Quality.Category)
	}
}
