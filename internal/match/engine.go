package match

import (
	"sort"
	"strings"

	"specmatch/internal"
	"specmatch/internal/config"
	"specmatch/internal/util"
)

// Engine scores specification items against invoice items across four
// strategies in priority order. It is a pure batch computation: no store
// access, no side effects. O(spec × invoice × rules).
type Engine struct {
	candidateFloor  float64
	fuzzyCap        float64
	exactConfidence float64
	ruleSimilarity  float64
	topK            int
}

func NewEngine(cfg config.Config) *Engine {
	return &Engine{
		candidateFloor:  cfg.MatchCandidateFloor,
		fuzzyCap:        cfg.MatchFuzzyCap,
		exactConfidence: cfg.MatchExactConfidence,
		ruleSimilarity:  cfg.MatchRuleSimilarity,
		topK:            cfg.MatchTopCandidates,
	}
}

const (
	nameSimilarityFloor  = 0.6
	nameCharactsFloor    = 0.5
	nameSimilarityWeight = 0.9
	nameCharactsWeight   = 0.8
	unitBonus            = 0.05
)

// Match scores every pair and keeps the strongest candidates: floor 0.4,
// confidence rounded to 3 decimals, top candidates per specification item
// in stable order.
func (e *Engine) Match(specItems []internal.SpecificationItem, invoiceItems []internal.InvoiceItem, rules []internal.MatchingRule) []internal.MatchCandidate {
	return e.SelectTop(e.Score(specItems, invoiceItems, rules))
}

// Score produces every retained candidate without per-item pruning.
func (e *Engine) Score(specItems []internal.SpecificationItem, invoiceItems []internal.InvoiceItem, rules []internal.MatchingRule) []internal.MatchCandidate {
	normInvoiceNames := make([]string, len(invoiceItems))
	for i, inv := range invoiceItems {
		normInvoiceNames[i] = util.Normalize(inv.Name)
	}

	out := []internal.MatchCandidate{}
	for _, spec := range specItems {
		normSpec := util.Normalize(spec.Name)
		normSpecWithCharacts := normSpec
		if spec.Characteristics != nil {
			normSpecWithCharacts = util.Normalize(spec.Name + " " + *spec.Characteristics)
		}

		for i, inv := range invoiceItems {
			confidence, matchType := e.scorePair(spec, inv, normSpec, normSpecWithCharacts, normInvoiceNames[i], rules)
			if confidence < e.candidateFloor {
				continue
			}
			out = append(out, internal.MatchCandidate{
				SpecItemID:    spec.ID,
				InvoiceItemID: inv.ID,
				Confidence:    util.Round3(confidence),
				MatchType:     matchType,
			})
		}
	}
	return out
}

// SelectTop keeps the strongest topK candidates per specification item,
// ties resolved by evaluation order (stable sort).
func (e *Engine) SelectTop(candidates []internal.MatchCandidate) []internal.MatchCandidate {
	bySpec := map[int][]internal.MatchCandidate{}
	order := []int{}
	for _, c := range candidates {
		if _, seen := bySpec[c.SpecItemID]; !seen {
			order = append(order, c.SpecItemID)
		}
		bySpec[c.SpecItemID] = append(bySpec[c.SpecItemID], c)
	}

	out := make([]internal.MatchCandidate, 0, len(candidates))
	for _, specID := range order {
		group := bySpec[specID]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Confidence > group[j].Confidence })
		if len(group) > e.topK {
			group = group[:e.topK]
		}
		out = append(out, group...)
	}
	return out
}

// scorePair evaluates the four strategies in priority order, stopping once
// a strategy reaches the exact-match ceiling.
func (e *Engine) scorePair(spec internal.SpecificationItem, inv internal.InvoiceItem, normSpec, normSpecWithCharacts, normInv string, rules []internal.MatchingRule) (float64, internal.MatchType) {
	best := 0.0
	bestType := internal.MatchType("")

	consider := func(confidence float64, matchType internal.MatchType) {
		if confidence > best {
			best = confidence
			bestType = matchType
		}
	}

	if spec.EquipmentCode != nil && inv.Article != nil {
		specCode := util.NormalizeCode(*spec.EquipmentCode)
		if specCode != "" && specCode == util.NormalizeCode(*inv.Article) {
			consider(e.exactConfidence, internal.MatchExactArticle)
		}
	}
	if best >= e.exactConfidence {
		return best, bestType
	}

	for _, rule := range rules {
		specSim := util.DiceCoefficient(normSpec, rule.SpecPattern)
		invSim := util.DiceCoefficient(normInv, rule.InvoicePattern)
		if specSim >= e.ruleSimilarity && invSim >= e.ruleSimilarity {
			confidence := rule.Confidence
			if confidence > e.exactConfidence {
				confidence = e.exactConfidence
			}
			consider(confidence, internal.MatchLearnedRule)
		}
	}
	if best >= e.exactConfidence {
		return best, bestType
	}

	if sim := util.DiceCoefficient(normSpec, normInv); sim >= nameSimilarityFloor {
		consider(e.capFuzzy(sim*nameSimilarityWeight+e.unitBonus(spec.Unit, inv.Unit)), internal.MatchNameSimilarity)
	}

	if sim := util.DiceCoefficient(normSpecWithCharacts, normInv); sim >= nameCharactsFloor {
		consider(e.capFuzzy(sim*nameCharactsWeight+e.unitBonus(spec.Unit, inv.Unit)), internal.MatchNameCharacts)
	}

	return best, bestType
}

func (e *Engine) capFuzzy(confidence float64) float64 {
	if confidence > e.fuzzyCap {
		return e.fuzzyCap
	}
	return confidence
}

func (e *Engine) unitBonus(specUnit, invUnit *string) float64 {
	if specUnit == nil || invUnit == nil {
		return 0
	}
	if strings.EqualFold(strings.TrimSpace(*specUnit), strings.TrimSpace(*invUnit)) {
		return unitBonus
	}
	return 0
}
