package util

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reCurrency    = regexp.MustCompile(`(?i)(руб\.?|₽|р\.\s*$|р\s*$)`)
	reUnitSuffix  = regexp.MustCompile(`(?i)\s(шт|штук|уп|упак|компл|м|мм|кг|г|т|л)\.?\s*$`)
	reNumeric    = regexp.MustCompile(`^-?\d+(?:\.\d+)?$`)
	reDotGrouped = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
)

// ParsePrice converts a tolerant money/number cell into a float: strips
// currency suffixes and grouping whitespace, folds a comma decimal
// separator to a dot. Returns nil when the cell does not hold a number.
// Shared by the quantity, price and amount columns.
func ParsePrice(input string) *float64 {
	s := strings.TrimSpace(input)
	if s == "" {
		return nil
	}

	s = strings.ReplaceAll(s, " ", " ")
	s = strings.ReplaceAll(s, " ", " ")
	s = reCurrency.ReplaceAllString(s, "")
	s = reUnitSuffix.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return nil
	}

	switch {
	case reDotGrouped.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		// "1.234,56" style: dots group thousands, comma is the decimal.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case strings.Contains(s, ","):
		// Comma is always the decimal separator; thousands are grouped
		// with spaces in these documents, never with commas.
		s = strings.Replace(s, ",", ".", 1)
	}

	if !reNumeric.MatchString(s) {
		return nil
	}
	parsed, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return FloatPtr(parsed)
}

// Round3 rounds match confidences to three decimal places.
func Round3(v float64) float64 {
	scaled, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 3, 64), 64)
	if err != nil {
		return v
	}
	return scaled
}
