package pipeline

import (
	"testing"

	"specmatch/internal"
)

func TestDetectInvoiceColumns(t *testing.T) {
	grid := [][]string{
		{"Счет на оплату № 105 от 12.03.2024", "", "", "", "", "", ""},
		{"№", "Артикул", "Наименование товара", "Кол-во", "Ед.", "Цена за ед.", "Сумма"},
		{"1", "ABC-1", "Кабель ВВГ 3х2.5", "100", "м", "45,50", "4550"},
	}

	mapping := DetectInvoiceColumns(grid)
	if mapping == nil {
		t.Fatalf("mapping is nil")
	}
	if mapping.HeaderRow != 1 {
		t.Fatalf("header row = %d, want 1", mapping.HeaderRow)
	}

	want := map[string]int{
		internal.FieldArticle:  1,
		internal.FieldName:     2,
		internal.FieldQuantity: 3,
		internal.FieldUnit:     4,
		internal.FieldPrice:    5,
		internal.FieldAmount:   6,
	}
	for field, col := range want {
		got, ok := mapping.Col(field)
		if !ok || got != col {
			t.Fatalf("field %s: got col %d (found=%v), want %d", field, got, ok, col)
		}
	}
}

// "Цена за ед." mentions a unit but must bind to the price column.
func TestDetectInvoiceColumnsPriceOverUnit(t *testing.T) {
	grid := [][]string{
		{"Наименование", "Цена за ед."},
		{"Кабель", "10"},
	}
	mapping := DetectInvoiceColumns(grid)
	if mapping == nil {
		t.Fatalf("mapping is nil")
	}
	if col, ok := mapping.Col(internal.FieldPrice); !ok || col != 1 {
		t.Fatalf("price col = %d (found=%v), want 1", col, ok)
	}
	if _, ok := mapping.Col(internal.FieldUnit); ok {
		t.Fatalf("unit should not claim the price column")
	}
}

func TestDetectSpecificationColumns(t *testing.T) {
	grid := make([][]string, 0, 15)
	for i := 0; i < 12; i++ {
		grid = append(grid, []string{"Спецификация оборудования", "", "", "", "", "", ""})
	}
	grid = append(grid, []string{"№ п/п", "Наименование", "Технические характеристики", "Код оборудования", "Завод изготовитель", "Ед. изм.", "Кол-во"})
	grid = append(grid, []string{"1", "Кабель ВВГ", "3х2.5", "К-001", "Камкабель", "м", "100"})

	mapping := DetectSpecificationColumns(grid)
	if mapping == nil {
		t.Fatalf("mapping is nil")
	}
	if mapping.HeaderRow != 12 {
		t.Fatalf("header row = %d, want 12", mapping.HeaderRow)
	}

	want := map[string]int{
		internal.FieldPositionNumber:  0,
		internal.FieldName:            1,
		internal.FieldCharacteristics: 2,
		internal.FieldEquipmentCode:   3,
		internal.FieldManufacturer:    4,
		internal.FieldUnit:            5,
		internal.FieldQuantity:        6,
	}
	for field, col := range want {
		got, ok := mapping.Col(field)
		if !ok || got != col {
			t.Fatalf("field %s: got col %d (found=%v), want %d", field, got, ok, col)
		}
	}
}

func TestDetectColumnsNoHeader(t *testing.T) {
	grid := [][]string{
		{"Просто текст", "без таблицы"},
		{"еще строка", "данных"},
	}
	if mapping := DetectInvoiceColumns(grid); mapping != nil {
		t.Fatalf("expected nil mapping, got %+v", mapping)
	}
}

// A header outside the scan window is not found; invoices scan 10 rows.
func TestDetectInvoiceColumnsScanWindow(t *testing.T) {
	grid := make([][]string, 0, 13)
	for i := 0; i < 11; i++ {
		grid = append(grid, []string{"шапка документа", ""})
	}
	grid = append(grid, []string{"Наименование", "Кол-во"})
	if mapping := DetectInvoiceColumns(grid); mapping != nil {
		t.Fatalf("header beyond scan window should not be found, got row %d", mapping.HeaderRow)
	}
}
