package match

import (
	"path/filepath"
	"testing"

	"specmatch/internal"
	"specmatch/internal/config"
	"specmatch/internal/storage"
)

func seedMatchProject(t *testing.T) (*storage.DB, internal.Project) {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	project, err := db.CreateProject("Объект Юг")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	specItems := []internal.SpecificationItem{
		{Name: "Кабель ВВГ 3х2.5", EquipmentCode: sp("К-001"), Unit: sp("м")},
		{Name: "Светильник LED 36Вт", Unit: sp("шт")},
	}
	if _, err := db.InsertSpecification(project.ID, nil, "spec.xlsx", specItems); err != nil {
		t.Fatalf("insert specification: %v", err)
	}

	invItems := []internal.InvoiceItem{
		{RowIndex: 1, Name: "Кабель ВВГ 3х2.5", Article: sp("К-001"), Unit: sp("м")},
		{RowIndex: 2, Name: "Светильник светодиодный LED 36Вт", Unit: sp("шт")},
	}
	inv := internal.Invoice{ProjectID: project.ID, SourceRef: "invoice.xlsx", Quality: internal.QualityA}
	if _, err := db.InsertInvoice(inv, invItems); err != nil {
		t.Fatalf("insert invoice: %v", err)
	}

	return db, project
}

func TestServiceRun(t *testing.T) {
	db, project := seedMatchProject(t)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	svc := NewService(db, NewEngine(cfg), nil)
	stats, err := svc.Run(project.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if stats.SpecItems != 2 || stats.InvoiceItems != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.Candidates == 0 {
		t.Fatalf("no candidates produced")
	}

	specItems, err := db.ListSpecItems(project.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	exact, err := db.ListCandidates(specItems[0].ID)
	if err != nil || len(exact) == 0 {
		t.Fatalf("candidates for exact item: %v %d", err, len(exact))
	}
	if exact[0].Confidence != 0.95 || exact[0].MatchType != internal.MatchExactArticle {
		t.Fatalf("best candidate = %+v", exact[0])
	}
	if !exact[0].Selected {
		t.Fatalf("best candidate not selected")
	}
}

func TestServiceRunTiedSuppliersStableSelection(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	project, err := db.CreateProject("Объект Север")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	supplierA, err := db.CreateSupplier("ООО Альфа", nil)
	if err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	supplierB, err := db.CreateSupplier("ООО Бета", nil)
	if err != nil {
		t.Fatalf("create supplier: %v", err)
	}

	specItems := []internal.SpecificationItem{
		{Name: "Автомат ВА47-29", EquipmentCode: sp("К-100"), Unit: sp("шт")},
	}
	if _, err := db.InsertSpecification(project.ID, nil, "spec.xlsx", specItems); err != nil {
		t.Fatalf("insert specification: %v", err)
	}

	// Both suppliers offer the same article, so both candidates score the
	// exact-article 0.95 and only evaluation order breaks the tie.
	for _, inv := range []internal.Invoice{
		{ProjectID: project.ID, SupplierID: &supplierA.ID, SourceRef: "alpha.xlsx", Quality: internal.QualityA},
		{ProjectID: project.ID, SupplierID: &supplierB.ID, SourceRef: "beta.xlsx", Quality: internal.QualityA},
	} {
		items := []internal.InvoiceItem{
			{RowIndex: 1, Name: "Автомат ВА47-29", Article: sp("К-100"), Unit: sp("шт")},
		}
		if _, err := db.InsertInvoice(inv, items); err != nil {
			t.Fatalf("insert invoice: %v", err)
		}
	}

	invItems, err := db.ListInvoiceItems(project.ID)
	if err != nil || len(invItems) != 2 {
		t.Fatalf("list invoice items: %v %d", err, len(invItems))
	}
	firstItemID := invItems[0].ID

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	svc := NewService(db, NewEngine(cfg), nil)

	loaded, err := db.ListSpecItems(project.ID)
	if err != nil {
		t.Fatalf("list spec items: %v", err)
	}

	for run := 0; run < 5; run++ {
		if _, err := svc.Run(project.ID); err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		candidates, err := db.ListCandidates(loaded[0].ID)
		if err != nil || len(candidates) != 2 {
			t.Fatalf("run %d candidates: %v %d", run, err, len(candidates))
		}
		for _, c := range candidates {
			if c.Selected && c.InvoiceItemID != firstItemID {
				t.Fatalf("run %d selected invoice item %d, want first-seen %d",
					run, c.InvoiceItemID, firstItemID)
			}
		}
	}
}

func TestServiceConfirmLearnsRule(t *testing.T) {
	db, project := seedMatchProject(t)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	svc := NewService(db, NewEngine(cfg), nil)

	if _, err := svc.Run(project.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	specItems, _ := db.ListSpecItems(project.ID)
	candidates, _ := db.ListCandidates(specItems[1].ID)
	if len(candidates) == 0 {
		t.Fatalf("no candidates for fuzzy item")
	}

	rule, err := svc.Confirm(candidates[0].ID, internal.ConfirmExact)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if rule.Confidence != 0.9 {
		t.Fatalf("rule confidence = %v, want 0.9", rule.Confidence)
	}

	// The confirmed item is untouched by the next run.
	stats, err := svc.Run(project.ID)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if stats.SkippedSpec != 1 {
		t.Fatalf("skippedSpec = %d, want 1", stats.SkippedSpec)
	}

	after, _ := db.ListCandidates(specItems[1].ID)
	if len(after) != 1 || !after[0].Confirmed {
		t.Fatalf("confirmed candidate not preserved: %+v", after)
	}
}
