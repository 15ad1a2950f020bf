package match

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"specmatch/internal"
	"specmatch/internal/storage"
)

// RunStats summarizes a matching run for the CLI and the runs log.
type RunStats struct {
	TraceID      string
	SpecItems    int
	InvoiceItems int
	Candidates   int
	SkippedSpec  int
	Elapsed      time.Duration
}

// Service runs the full matching pass for a project: load items and
// rules, score every pair, keep the top candidates and persist them.
type Service struct {
	db     *storage.DB
	engine *Engine
	log    *slog.Logger
}

func NewService(db *storage.DB, engine *Engine, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{db: db, engine: engine, log: log}
}

// Run scores the project's specification items against all its invoice
// items. Items that already carry a confirmed candidate are left alone.
// Learned rules are looked up per invoice supplier scope, so two
// invoices from different suppliers see different rule sets within the
// same run.
func (s *Service) Run(projectID int) (RunStats, error) {
	start := time.Now()
	stats := RunStats{TraceID: uuid.NewString()}
	log := s.log.With("traceId", stats.TraceID, "projectId", projectID)

	if _, err := s.db.MustProject(projectID); err != nil {
		return stats, err
	}

	specItems, err := s.db.ListSpecItems(projectID)
	if err != nil {
		return stats, fmt.Errorf("load spec items: %w", err)
	}
	invoiceItems, err := s.db.ListInvoiceItems(projectID)
	if err != nil {
		return stats, fmt.Errorf("load invoice items: %w", err)
	}
	confirmed, err := s.db.ConfirmedSpecItemIDs(projectID)
	if err != nil {
		return stats, fmt.Errorf("load confirmed items: %w", err)
	}
	supplierByInvoice, err := s.db.InvoiceSuppliers(projectID)
	if err != nil {
		return stats, fmt.Errorf("load invoice suppliers: %w", err)
	}

	stats.SpecItems = len(specItems)
	stats.InvoiceItems = len(invoiceItems)

	pending := specItems[:0:0]
	for _, item := range specItems {
		if confirmed[item.ID] {
			stats.SkippedSpec++
			continue
		}
		pending = append(pending, item)
	}

	log.Info("matching run started",
		"specItems", len(pending),
		"invoiceItems", len(invoiceItems),
		"skippedConfirmed", stats.SkippedSpec)

	// Invoices from the same supplier share a rule set; group items so
	// each scope's rules are loaded once. Groups are scored in first-seen
	// invoice-item order so tied candidates rank the same way every run.
	groups := map[string][]internal.InvoiceItem{}
	groupScope := map[string]*int{}
	var groupOrder []string
	for _, item := range invoiceItems {
		scope := supplierByInvoice[item.InvoiceID]
		key := scopeKey(scope)
		if _, seen := groups[key]; !seen {
			groupOrder = append(groupOrder, key)
			groupScope[key] = scope
		}
		groups[key] = append(groups[key], item)
	}

	var scored []internal.MatchCandidate
	for _, key := range groupOrder {
		rules, err := s.db.RulesForScope(groupScope[key])
		if err != nil {
			return stats, fmt.Errorf("load rules: %w", err)
		}
		scored = append(scored, s.engine.Score(pending, groups[key], rules)...)
	}

	candidates := s.engine.SelectTop(scored)
	stats.Candidates = len(candidates)

	if err := s.db.ReplaceCandidates(projectID, candidates); err != nil {
		return stats, fmt.Errorf("persist candidates: %w", err)
	}

	stats.Elapsed = time.Since(start)
	log.Info("matching run finished",
		"candidates", stats.Candidates,
		"elapsedMs", stats.Elapsed.Milliseconds())

	if err := s.db.InsertRun(stats.TraceID, projectID,
		map[string]float64{"totalMs": float64(stats.Elapsed.Milliseconds())},
		map[string]int{
			"specItems":    stats.SpecItems,
			"invoiceItems": stats.InvoiceItems,
			"candidates":   stats.Candidates,
			"skippedSpec":  stats.SkippedSpec,
		}); err != nil {
		log.Warn("failed to record run", "error", err)
	}

	return stats, nil
}

// Confirm marks a candidate as validated and feeds the pair to the
// learner so the next run recognizes it.
func (s *Service) Confirm(candidateID int, kind internal.ConfirmKind) (internal.MatchingRule, error) {
	ctx, err := s.db.GetCandidateContext(candidateID)
	if err != nil {
		return internal.MatchingRule{}, err
	}
	if ctx == nil {
		return internal.MatchingRule{}, fmt.Errorf("candidate not found: id=%d", candidateID)
	}

	if err := s.db.MarkCandidateConfirmed(candidateID); err != nil {
		return internal.MatchingRule{}, err
	}

	learner := NewLearner(s.db)
	rule, err := learner.Confirm(ctx.SpecName, ctx.InvoiceName, ctx.SupplierID, kind)
	if err != nil {
		return internal.MatchingRule{}, fmt.Errorf("learn rule: %w", err)
	}

	s.log.Info("candidate confirmed",
		"candidateId", candidateID,
		"kind", string(kind),
		"ruleId", rule.ID,
		"ruleConfidence", rule.Confidence)
	return rule, nil
}

func scopeKey(supplierID *int) string {
	if supplierID == nil {
		return "-"
	}
	return fmt.Sprintf("s%d", *supplierID)
}
