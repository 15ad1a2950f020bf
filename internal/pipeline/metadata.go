package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"specmatch/internal/util"
)

// InvoiceMetadata is what the header block of an invoice yields. Every
// field is optional; an unmatched field is nil, not an error.
type InvoiceMetadata struct {
	Number      *string
	Date        *string
	Supplier    *string
	Total       *float64
	BIK         *string
	CorrAccount *string
}

// A strategy extracts one field from free text, nil on no match. Each
// metadata field owns an ordered strategy list; the first non-nil result
// wins and lower-priority strategies are never consulted.
type strategy func(text string) *string

var (
	reInvoiceLabeled = regexp.MustCompile(`(?i)(?:счёт|счет|invoice)(?:\s+на\s+оплату)?\s*[№#:]\s*([A-Za-zА-Яа-я0-9][A-Za-zА-Яа-я0-9\-/]*)`)
	reOrderLabeled   = regexp.MustCompile(`(?i)(?:заказ|заявка|кп|коммерческое\s+предложение)\s*[№#]\s*([A-Za-zА-Яа-я0-9][A-Za-zА-Яа-я0-9\-/]*)`)
	reBareNumber     = regexp.MustCompile(`№\s*([A-Za-zА-Яа-я0-9][A-Za-zА-Яа-я0-9\-/]+)`)

	reDateLabeled = regexp.MustCompile(`(?i)(?:от|дата|date)[:\s]\s*(\d{1,2})[./-](\d{1,2})[./-](\d{4})`)
	reDateWritten = regexp.MustCompile(`(?i)(\d{1,2})\s+(января|февраля|марта|апреля|мая|июня|июля|августа|сентября|октября|ноября|декабря)\s+(\d{4})`)
	reDateBare    = regexp.MustCompile(`(\d{1,2})[./-](\d{1,2})[./-](\d{4})`)

	reSupplierLabeled = regexp.MustCompile(`(?i)(?:поставщик|продавец|исполнитель)[:\s]\s*([^\n]{1,60})`)
	reSupplierLegal   = regexp.MustCompile(`(?:^|[^\p{L}])(ФГУП|ООО|ОАО|ЗАО|ПАО|НАО|ИП|АО)[\s«"']*([^\n]{2,80})`)

	reBIK         = regexp.MustCompile(`(?i)бик[:\s]*(\d{9})`)
	reCorrAccount = regexp.MustCompile(`(?i)(?:к/с|к/сч|корр\.?\s*счет|корсчет)[:\s]*(\d{20})`)

	reTotalLabeled = regexp.MustCompile(`(?i)(?:итого|всего|total)[^\d\n]{0,20}(\d[\d\s\x{00A0}]*(?:[.,]\d+)?)`)
)

var ruMonths = map[string]string{
	"января": "01", "февраля": "02", "марта": "03", "апреля": "04",
	"мая": "05", "июня": "06", "июля": "07", "августа": "08",
	"сентября": "09", "октября": "10", "ноября": "11", "декабря": "12",
}

// Banking markers that disqualify a legal-form supplier candidate: a bank's
// or the buyer's requisites share the same legal-form prefixes.
var bankMarkers = []string{"банк", "бик", "р/с", "к/с", "расчетный счет", "расчётный счет", "корсчет"}

// Trailing boilerplate stripped from supplier candidates.
var supplierBoilerplate = []string{
	"условия поставки", "условия оплаты", "срок поставки", "срок оплаты",
	"гарантия", "доставка", "оплата", "самовывоз",
}

// Conditions text that disqualifies a supplier candidate outright.
var supplierStoplist = []string{
	"предоплата", "безналичный расчет", "счет действителен", "в течение",
}

var invoiceNumberStrategies = []strategy{
	func(text string) *string { return firstGroup(reInvoiceLabeled, text) },
	func(text string) *string { return firstGroup(reOrderLabeled, text) },
	func(text string) *string {
		m := reBareNumber.FindStringSubmatch(text)
		if m == nil {
			return nil
		}
		if alnumCount(m[1]) < 2 {
			return nil
		}
		return util.StringPtr(m[1])
	},
}

var invoiceDateStrategies = []strategy{
	func(text string) *string { return dateFromMatch(reDateLabeled.FindStringSubmatch(text)) },
	func(text string) *string {
		m := reDateWritten.FindStringSubmatch(text)
		if m == nil {
			return nil
		}
		month, ok := ruMonths[strings.ToLower(m[2])]
		if !ok {
			return nil
		}
		return util.StringPtr(fmt.Sprintf("%s.%s.%s", pad2(m[1]), month, m[3]))
	},
	func(text string) *string { return dateFromMatch(reDateBare.FindStringSubmatch(text)) },
}

var supplierStrategies = []strategy{
	func(text string) *string {
		m := reSupplierLabeled.FindStringSubmatch(text)
		if m == nil {
			return nil
		}
		return cleanSupplier(m[1])
	},
	func(text string) *string {
		m := reSupplierLegal.FindStringSubmatch(text)
		if m == nil {
			return nil
		}
		candidate := m[1] + " " + m[2]
		lower := strings.ToLower(candidate)
		for _, marker := range bankMarkers {
			if strings.Contains(lower, marker) {
				return nil
			}
		}
		return cleanSupplier(candidate)
	},
}

var bikStrategies = []strategy{
	func(text string) *string { return firstGroup(reBIK, text) },
}

var corrAccountStrategies = []strategy{
	func(text string) *string { return firstGroup(reCorrAccount, text) },
}

var totalStrategies = []strategy{
	func(text string) *string { return firstGroup(reTotalLabeled, text) },
}

// ExtractInvoiceMetadata resolves header metadata from the flattened
// document text. When the text fails the garbage-ratio gate the grid
// becomes the source instead: the same cascades run over the first 30 rows
// cell by cell, preserving strategy priority over cell position.
func ExtractInvoiceMetadata(text string, grid [][]string, garbageThreshold float64) InvoiceMetadata {
	sources := []string{text}
	if TextGarbageRatio(text) > garbageThreshold {
		sources = gridCells(grid, 30)
	}

	meta := InvoiceMetadata{
		Number:      resolve(invoiceNumberStrategies, sources),
		Date:        resolve(invoiceDateStrategies, sources),
		Supplier:    resolve(supplierStrategies, sources),
		BIK:         resolve(bikStrategies, sources),
		CorrAccount: resolve(corrAccountStrategies, sources),
	}
	if raw := resolve(totalStrategies, sources); raw != nil {
		meta.Total = util.ParsePrice(*raw)
	}
	return meta
}

// TextGarbageRatio is the fraction of runes that are extraction garbage:
// the replacement rune, control characters other than \n \r \t, private-use
// code points, and surrogate halves.
func TextGarbageRatio(text string) float64 {
	if text == "" {
		return 0
	}
	total := 0
	garbage := 0
	for _, r := range text {
		total++
		switch {
		case r == utf8.RuneError:
			garbage++
		case r == '\n' || r == '\r' || r == '\t':
		case unicode.IsControl(r):
			garbage++
		case unicode.In(r, unicode.Co):
			garbage++
		case r >= 0xD800 && r <= 0xDFFF:
			garbage++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(garbage) / float64(total)
}

func resolve(strategies []strategy, sources []string) *string {
	for _, strat := range strategies {
		for _, src := range sources {
			if v := strat(src); v != nil {
				return v
			}
		}
	}
	return nil
}

func gridCells(grid [][]string, maxRows int) []string {
	limit := len(grid)
	if limit > maxRows {
		limit = maxRows
	}
	out := make([]string, 0, limit*4)
	for i := 0; i < limit; i++ {
		for _, cell := range grid[i] {
			if strings.TrimSpace(cell) != "" {
				out = append(out, cell)
			}
		}
	}
	return out
}

func firstGroup(re *regexp.Regexp, text string) *string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v := strings.TrimSpace(m[1])
	if v == "" {
		return nil
	}
	return util.StringPtr(v)
}

func dateFromMatch(m []string) *string {
	if m == nil {
		return nil
	}
	return util.StringPtr(fmt.Sprintf("%s.%s.%s", pad2(m[1]), pad2(m[2]), m[3]))
}

func pad2(v string) string {
	if len(v) == 1 {
		return "0" + v
	}
	return v
}

func cleanSupplier(raw string) *string {
	s := strings.TrimSpace(raw)
	if idx := strings.Index(s, ","); idx >= 0 {
		s = s[:idx]
	}

	lower := strings.ToLower(s)
	for _, frag := range supplierBoilerplate {
		if idx := strings.Index(lower, frag); idx >= 0 {
			s = s[:idx]
			lower = lower[:idx]
		}
	}

	s = strings.TrimRight(strings.TrimSpace(s), `.;:«»"'-`)
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	lower = strings.ToLower(s)
	for _, frag := range supplierStoplist {
		if strings.Contains(lower, frag) {
			return nil
		}
	}
	return util.StringPtr(s)
}

func alnumCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
