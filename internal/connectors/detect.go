package connectors

import "strings"

type DetectResult struct {
	IsInvoice bool
	Score     float64
	Reason    string
}

// Keyword stems scored against subject and body. Invoice mail from
// Russian suppliers almost always carries one of these.
var invoiceKeywords = []string{"счет", "счёт", "оплат", "упд", "накладн", "invoice", "итого", "ндс"}

// DetectInvoiceEmail scores a message as a supplier invoice by keyword
// hits, money patterns in the body and attachment types. Threshold 0.45
// keeps newsletters and order confirmations out without dropping real
// invoices that arrive with a bare subject.
func DetectInvoiceEmail(subject, text, html string, attachmentNames []string) DetectResult {
	subject = strings.ToLower(subject)
	text = strings.ToLower(text)
	html = strings.ToLower(html)

	score := 0.0
	for _, kw := range invoiceKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
		}
		if strings.Contains(text, kw) || strings.Contains(html, kw) {
			score += 0.1
		}
	}

	moneyHits := countMoneyPatterns(text)
	if moneyHits >= 2 {
		score += 0.4
	} else if moneyHits == 1 {
		score += 0.2
	}

	for _, name := range attachmentNames {
		ln := strings.ToLower(name)
		if strings.HasSuffix(ln, ".xlsx") || strings.HasSuffix(ln, ".xls") || strings.HasSuffix(ln, ".pdf") {
			score += 0.25
			break
		}
	}

	if strings.Contains(html, "<table") {
		score += 0.25
	}
	if score > 1 {
		score = 1
	}

	isInvoice := score >= 0.45
	reason := "rules_negative"
	if isInvoice {
		reason = "rules_positive"
	}

	return DetectResult{IsInvoice: isInvoice, Score: score, Reason: reason}
}

// countMoneyPatterns counts amounts written with a ruble marker, like
// "1 234,56 руб." or "500 ₽".
func countMoneyPatterns(text string) int {
	count := 0
	rest := text
	for {
		idx := indexAnyMarker(rest)
		if idx < 0 {
			break
		}
		if hasDigitBefore(rest, idx) {
			count++
		}
		rest = rest[idx+1:]
	}
	return count
}

func indexAnyMarker(text string) int {
	best := -1
	for _, marker := range []string{"руб", "₽", "р."} {
		if idx := strings.Index(text, marker); idx >= 0 && (best < 0 || idx < best) {
			best = idx
		}
	}
	return best
}

func hasDigitBefore(text string, idx int) bool {
	for i := idx - 1; i >= 0 && i >= idx-12; i-- {
		c := text[i]
		if c >= '0' && c <= '9' {
			return true
		}
		// Bytes >= 0x80 cover multibyte spaces like NBSP.
		if c != ' ' && c != ',' && c != '.' && c < 0x80 {
			return false
		}
	}
	return false
}
