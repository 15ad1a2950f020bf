package match

import (
	"specmatch/internal"
	"specmatch/internal/util"
)

// Confirmation learning constants. Confidence only grows through this
// path, capped at 1.0.
const (
	initialExactConfidence  = 0.9
	initialAnalogConfidence = 0.75
	manualConfidence        = 0.95
	exactConfidenceStep     = 0.02
	maxRuleConfidence       = 1.0
)

// Learner folds human confirmations into the rule store.
type Learner struct {
	store RuleStore
}

func NewLearner(store RuleStore) *Learner {
	return &Learner{store: store}
}

// Confirm records one human-validated (spec name, invoice name) pairing.
// Repeat exact confirmations raise confidence by a fixed step; analog
// confirmations only bump the usage counter.
func (l *Learner) Confirm(specName, invoiceName string, supplierID *int, kind internal.ConfirmKind) (internal.MatchingRule, error) {
	initial := initialAnalogConfidence
	if kind == internal.ConfirmExact {
		initial = initialExactConfidence
	}
	return l.learn(specName, invoiceName, supplierID, kind, initial)
}

// ConfirmManual records a pairing a human built by hand, outside the
// candidate list. Same learning path, higher starting confidence.
func (l *Learner) ConfirmManual(specName, invoiceName string, supplierID *int) (internal.MatchingRule, error) {
	return l.learn(specName, invoiceName, supplierID, internal.ConfirmExact, manualConfidence)
}

func (l *Learner) learn(specName, invoiceName string, supplierID *int, kind internal.ConfirmKind, initial float64) (internal.MatchingRule, error) {
	specPattern := util.Normalize(specName)
	invoicePattern := util.Normalize(invoiceName)

	existing, err := l.store.FindRule(specPattern, invoicePattern, supplierID)
	if err != nil {
		return internal.MatchingRule{}, err
	}

	if existing == nil {
		return l.store.InsertRule(internal.MatchingRule{
			SpecPattern:    specPattern,
			InvoicePattern: invoicePattern,
			Confidence:     initial,
			TimesUsed:      1,
			SupplierID:     supplierID,
		})
	}

	confidence := existing.Confidence
	if kind == internal.ConfirmExact {
		confidence += exactConfidenceStep
		if confidence > maxRuleConfidence {
			confidence = maxRuleConfidence
		}
	}
	timesUsed := existing.TimesUsed + 1

	if err := l.store.UpdateRule(existing.ID, confidence, timesUsed); err != nil {
		return internal.MatchingRule{}, err
	}

	updated := *existing
	updated.Confidence = confidence
	updated.TimesUsed = timesUsed
	return updated, nil
}
