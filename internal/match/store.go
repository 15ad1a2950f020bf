package match

import (
	"sync"

	"specmatch/internal"
)

// RuleStore is the persistence boundary of the learner and the matching
// run. Supplier scope is part of rule identity: nil scope is its own
// bucket, never a wildcard on exact lookup.
type RuleStore interface {
	// RulesForScope returns rules applicable when matching against a
	// supplier: rules scoped to that supplier plus unscoped rules. A nil
	// scope returns unscoped rules only.
	RulesForScope(supplierID *int) ([]internal.MatchingRule, error)
	FindRule(specPattern, invoicePattern string, supplierID *int) (*internal.MatchingRule, error)
	InsertRule(rule internal.MatchingRule) (internal.MatchingRule, error)
	UpdateRule(id int, confidence float64, timesUsed int) error
}

// MemoryRuleStore is the in-memory RuleStore used by tests and one-shot
// CLI runs without a database.
type MemoryRuleStore struct {
	mu     sync.Mutex
	nextID int
	rules  []internal.MatchingRule
}

func NewMemoryRuleStore() *MemoryRuleStore {
	return &MemoryRuleStore{nextID: 1}
}

func (s *MemoryRuleStore) RulesForScope(supplierID *int) ([]internal.MatchingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []internal.MatchingRule{}
	for _, r := range s.rules {
		if r.SupplierID == nil || (supplierID != nil && *r.SupplierID == *supplierID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryRuleStore) FindRule(specPattern, invoicePattern string, supplierID *int) (*internal.MatchingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rules {
		if r.SpecPattern == specPattern && r.InvoicePattern == invoicePattern && sameScope(r.SupplierID, supplierID) {
			rule := r
			return &rule, nil
		}
	}
	return nil, nil
}

func (s *MemoryRuleStore) InsertRule(rule internal.MatchingRule) (internal.MatchingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule.ID = s.nextID
	s.nextID++
	s.rules = append(s.rules, rule)
	return rule, nil
}

func (s *MemoryRuleStore) UpdateRule(id int, confidence float64, timesUsed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rules {
		if s.rules[i].ID == id {
			s.rules[i].Confidence = confidence
			s.rules[i].TimesUsed = timesUsed
			return nil
		}
	}
	return nil
}

func sameScope(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
