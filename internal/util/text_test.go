package util

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "lowercase and punctuation", input: "Кабель ВВГ-П, медный", want: "кабель ввг п медный"},
		{name: "unit stopwords dropped", input: "Труба 25 мм стальная", want: "труба 25 стальная"},
		{name: "connectives dropped", input: "Выключатель для щита с защитой", want: "выключатель щита защитой"},
		{name: "whitespace collapsed", input: "  Автомат   защиты  ", want: "автомат защиты"},
		{name: "empty", input: "", want: ""},
		{name: "only stopwords", input: "шт и в", want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.input)
			if got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
			if again := Normalize(got); again != got {
				t.Fatalf("not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestNormalizeCode(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{" abc-123 ", "ABC-123"},
		{"3х2.5", "3X2.5"},
		{"3×2.5", "3X2.5"},
		{"ВВГ 3*2.5", "ВВГ3X2.5"},
		{"К-001/2", "К-001/2"},
	}

	for _, tc := range cases {
		if got := NormalizeCode(tc.input); got != tc.want {
			t.Fatalf("NormalizeCode(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestDiceCoefficient(t *testing.T) {
	if got := DiceCoefficient("кабель ввг", "кабель ввг"); got != 1 {
		t.Fatalf("identical strings: got %v", got)
	}
	if got := DiceCoefficient("", "кабель"); got != 0 {
		t.Fatalf("empty side: got %v", got)
	}
	if got := DiceCoefficient("а", "б"); got != 0 {
		t.Fatalf("single runes: got %v", got)
	}

	ab := DiceCoefficient("кабель ввг 3х2 5", "кабель ввг п 3х2 5")
	ba := DiceCoefficient("кабель ввг п 3х2 5", "кабель ввг 3х2 5")
	if ab != ba {
		t.Fatalf("not symmetric: %v vs %v", ab, ba)
	}
	if ab <= 0.5 || ab >= 1 {
		t.Fatalf("similar strings out of expected band: %v", ab)
	}

	far := DiceCoefficient("кабель ввг", "труба стальная")
	if far >= ab {
		t.Fatalf("dissimilar %v should score below similar %v", far, ab)
	}
}
