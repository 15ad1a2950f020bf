package util

import "testing"

func TestParsePrice(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  float64
	}{
		{name: "grouped with currency", input: "1 234,56 руб.", want: 1234.56},
		{name: "ruble sign", input: "500 ₽", want: 500},
		{name: "comma decimal", input: "45,50", want: 45.5},
		{name: "dot decimal", input: "45.50", want: 45.5},
		{name: "dot grouped thousands", input: "1.000", want: 1000},
		{name: "comma always decimal", input: "1,000", want: 1},
		{name: "three decimal comma", input: "45,000", want: 45},
		{name: "mixed grouping", input: "1.234,56", want: 1234.56},
		{name: "space grouped", input: "2 000", want: 2000},
		{name: "unit suffix", input: "100 шт", want: 100},
		{name: "plain integer", input: "42", want: 42},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParsePrice(tc.input)
			if got == nil {
				t.Fatalf("got nil, want %v", tc.want)
			}
			if *got != tc.want {
				t.Fatalf("got %v want %v", *got, tc.want)
			}
		})
	}
}

func TestParsePriceRejects(t *testing.T) {
	for _, input := range []string{"", "  ", "abc", "Итого", "12-34"} {
		if got := ParsePrice(input); got != nil {
			t.Fatalf("ParsePrice(%q) = %v, want nil", input, *got)
		}
	}
}

func TestRound3(t *testing.T) {
	cases := []struct {
		input float64
		want  float64
	}{
		{0.123456, 0.123},
		{0.8919, 0.892},
		{1, 1},
		{0.4, 0.4},
	}
	for _, tc := range cases {
		if got := Round3(tc.input); got != tc.want {
			t.Fatalf("Round3(%v) = %v, want %v", tc.input, got, tc.want)
		}
	}
}
