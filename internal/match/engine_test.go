package match

import (
	"testing"

	"specmatch/internal"
	"specmatch/internal/config"
	"specmatch/internal/util"
)

func sp(v string) *string { return &v }

func testEngine(t *testing.T) *Engine {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return NewEngine(cfg)
}

func TestEngineExactArticle(t *testing.T) {
	e := testEngine(t)
	spec := []internal.SpecificationItem{{ID: 1, Name: "Кабель силовой", EquipmentCode: sp("ABC-1")}}
	inv := []internal.InvoiceItem{{ID: 10, Name: "Кабель", Article: sp("abc-1 ")}}

	got := e.Match(spec, inv, nil)
	if len(got) != 1 {
		t.Fatalf("candidates = %d, want 1", len(got))
	}
	if got[0].Confidence != 0.95 || got[0].MatchType != internal.MatchExactArticle {
		t.Fatalf("got %+v", got[0])
	}
}

// Dimension codes written with Cyrillic х, × or * compare equal to the
// Latin-x spelling.
func TestEngineExactArticleCodeVariants(t *testing.T) {
	e := testEngine(t)
	cases := []struct {
		name     string
		specCode string
		article  string
	}{
		{name: "cyrillic х vs latin x", specCode: "ВВГ 3х2.5", article: "ВВГ 3x2.5"},
		{name: "multiplication sign", specCode: "3×2.5", article: "3x2.5"},
		{name: "asterisk", specCode: "3*2.5", article: "3х2.5"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := []internal.SpecificationItem{{ID: 1, Name: "Кабель силовой", EquipmentCode: sp(tc.specCode)}}
			inv := []internal.InvoiceItem{{ID: 10, Name: "Кабель", Article: sp(tc.article)}}

			got := e.Match(spec, inv, nil)
			if len(got) != 1 {
				t.Fatalf("candidates = %d, want 1", len(got))
			}
			if got[0].Confidence != 0.95 || got[0].MatchType != internal.MatchExactArticle {
				t.Fatalf("got %+v", got[0])
			}
		})
	}
}

// On equal confidence the earlier strategy keeps the match type.
func TestEngineLearnedRulePriority(t *testing.T) {
	e := testEngine(t)
	spec := []internal.SpecificationItem{{ID: 1, Name: "Кабель ВВГ 3х2.5"}}
	inv := []internal.InvoiceItem{{ID: 10, Name: "Кабель ВВГ 3х2.5"}}
	rules := []internal.MatchingRule{{
		ID:             1,
		SpecPattern:    util.Normalize("Кабель ВВГ 3х2.5"),
		InvoicePattern: util.Normalize("Кабель ВВГ 3х2.5"),
		Confidence:     0.9,
	}}

	got := e.Match(spec, inv, rules)
	if len(got) != 1 {
		t.Fatalf("candidates = %d, want 1", len(got))
	}
	if got[0].MatchType != internal.MatchLearnedRule {
		t.Fatalf("type = %s, want %s", got[0].MatchType, internal.MatchLearnedRule)
	}
	if got[0].Confidence != 0.9 {
		t.Fatalf("confidence = %v, want 0.9", got[0].Confidence)
	}
}

// Rule confidence above the exact ceiling is clamped to it.
func TestEngineRuleConfidenceCeiling(t *testing.T) {
	e := testEngine(t)
	spec := []internal.SpecificationItem{{ID: 1, Name: "Автомат защиты 16А"}}
	inv := []internal.InvoiceItem{{ID: 10, Name: "Автомат защиты 16А"}}
	rules := []internal.MatchingRule{{
		ID:             1,
		SpecPattern:    util.Normalize("Автомат защиты 16А"),
		InvoicePattern: util.Normalize("Автомат защиты 16А"),
		Confidence:     1.0,
	}}

	got := e.Match(spec, inv, rules)
	if len(got) != 1 || got[0].Confidence != 0.95 {
		t.Fatalf("got %+v", got)
	}
}

func TestEngineNameSimilarity(t *testing.T) {
	e := testEngine(t)
	spec := []internal.SpecificationItem{{ID: 1, Name: "Кабель ВВГ 3х2,5", Unit: sp("м")}}
	inv := []internal.InvoiceItem{{ID: 10, Name: "Кабель ВВГ-П 3х2.5мм", Unit: sp("м")}}

	got := e.Match(spec, inv, nil)
	if len(got) != 1 {
		t.Fatalf("candidates = %d, want 1", len(got))
	}
	c := got[0]
	if c.MatchType != internal.MatchNameSimilarity {
		t.Fatalf("type = %s", c.MatchType)
	}
	if c.Confidence < 0.4 || c.Confidence > 0.94 {
		t.Fatalf("confidence %v out of fuzzy band", c.Confidence)
	}
}

func TestEngineCharacteristicsTier(t *testing.T) {
	e := testEngine(t)
	spec := []internal.SpecificationItem{{
		ID:              1,
		Name:            "Выключатель",
		Characteristics: sp("автоматический 16А однополюсный"),
	}}
	inv := []internal.InvoiceItem{{ID: 10, Name: "Выключатель автоматический 16А однополюсный"}}

	got := e.Match(spec, inv, nil)
	if len(got) != 1 {
		t.Fatalf("candidates = %d, want 1", len(got))
	}
	if got[0].MatchType != internal.MatchNameCharacts {
		t.Fatalf("type = %s", got[0].MatchType)
	}
	if got[0].Confidence != 0.8 {
		t.Fatalf("confidence = %v, want 0.8", got[0].Confidence)
	}
}

func TestEngineFloorDropsWeakPairs(t *testing.T) {
	e := testEngine(t)
	spec := []internal.SpecificationItem{{ID: 1, Name: "Кабель силовой медный"}}
	inv := []internal.InvoiceItem{{ID: 10, Name: "Труба стальная оцинкованная"}}

	if got := e.Match(spec, inv, nil); len(got) != 0 {
		t.Fatalf("expected no candidates, got %+v", got)
	}
}

func TestEngineTopCandidatesPerItem(t *testing.T) {
	e := testEngine(t)
	spec := []internal.SpecificationItem{{ID: 1, Name: "Кабель ВВГ 3х2.5"}}
	inv := []internal.InvoiceItem{
		{ID: 10, Name: "Кабель ВВГ 3х2.5"},
		{ID: 11, Name: "Кабель ВВГ 3х2.5 ГОСТ"},
		{ID: 12, Name: "Кабель ВВГ 3х4"},
		{ID: 13, Name: "Кабель ВВГ 4х2.5"},
	}

	got := e.Match(spec, inv, nil)
	if len(got) != 3 {
		t.Fatalf("candidates = %d, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Confidence > got[i-1].Confidence {
			t.Fatalf("candidates not sorted: %v before %v", got[i-1].Confidence, got[i].Confidence)
		}
	}
}

func TestEngineConfidenceBounds(t *testing.T) {
	e := testEngine(t)
	spec := []internal.SpecificationItem{
		{ID: 1, Name: "Кабель ВВГ 3х2.5", EquipmentCode: sp("К-1"), Unit: sp("м")},
		{ID: 2, Name: "Автомат защиты 16А"},
	}
	inv := []internal.InvoiceItem{
		{ID: 10, Name: "Кабель ВВГ 3х2.5", Article: sp("К-1"), Unit: sp("м")},
		{ID: 11, Name: "Автомат защиты 16А тип С"},
	}

	for _, c := range e.Match(spec, inv, nil) {
		if c.Confidence < 0.4 || c.Confidence > 1.0 {
			t.Fatalf("confidence %v out of [0.4, 1.0]", c.Confidence)
		}
		if c.Confidence != util.Round3(c.Confidence) {
			t.Fatalf("confidence %v not rounded to 3 decimals", c.Confidence)
		}
	}
}
