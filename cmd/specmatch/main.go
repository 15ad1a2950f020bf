package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"specmatch/internal"
	"specmatch/internal/config"
	"specmatch/internal/connectors"
	gmailconnector "specmatch/internal/connectors/gmail"
	imapconnector "specmatch/internal/connectors/imap"
	"specmatch/internal/listener"
	"specmatch/internal/match"
	"specmatch/internal/pipeline"
	"specmatch/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	cmd := os.Args[1]
	switch cmd {
	case "project:create":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		name := fs.String("name", "", "project name")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*name) == "" {
			must(fmt.Errorf("--name is required"))
		}
		project, err := db.CreateProject(*name)
		must(err)
		fmt.Printf("project created id=%d name=%s\n", project.ID, project.Name)
	case "supplier:create":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		name := fs.String("name", "", "supplier name")
		inn := fs.String("inn", "", "supplier INN")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*name) == "" {
			must(fmt.Errorf("--name is required"))
		}
		var innPtr *string
		if strings.TrimSpace(*inn) != "" {
			innPtr = inn
		}
		supplier, err := db.CreateSupplier(*name, innPtr)
		must(err)
		fmt.Printf("supplier created id=%d name=%s\n", supplier.ID, supplier.Name)
	case "spec:upload":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		projectID := fs.Int("project", 0, "project id")
		file := fs.String("file", "", "specification file (xlsx or pdf)")
		section := fs.String("section", "", "default section name")
		_ = fs.Parse(os.Args[2:])
		if *projectID == 0 || strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--project and --file are required"))
		}
		grid, err := loadGrid(*file)
		must(err)

		result := pipeline.ParseSpecification(grid, nil)
		for _, msg := range result.Errors {
			fmt.Fprintf(os.Stderr, "warning: %s\n", msg)
		}
		if len(result.Items) == 0 {
			must(fmt.Errorf("no items parsed from %s", *file))
		}

		var sectionPtr *string
		if strings.TrimSpace(*section) != "" {
			sectionPtr = section
		}
		specID, err := db.InsertSpecification(*projectID, sectionPtr, *file, result.Items)
		must(err)
		fmt.Printf("specification uploaded id=%d items=%d skipped=%d quality=%s\n",
			specID, len(result.Items), result.SkippedRows, result.Quality.Category)
	case "invoice:upload":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		projectID := fs.Int("project", 0, "project id")
		file := fs.String("file", "", "invoice file (xlsx or pdf)")
		supplierID := fs.Int("supplier", 0, "supplier id")
		_ = fs.Parse(os.Args[2:])
		if *projectID == 0 || strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--project and --file are required"))
		}

		kind, err := documentKind(*file)
		must(err)
		content, err := os.ReadFile(*file)
		must(err)
		grid, text, err := pipeline.ExtractDocument(kind, content)
		must(err)

		var saved *internal.ColumnMapping
		var supplierPtr *int
		if *supplierID != 0 {
			supplierPtr = supplierID
			saved, err = db.GetSavedMapping(*supplierID)
			must(err)
		}

		result := pipeline.ParseInvoice(grid, text, saved, cfg.GarbageTextRatio)
		for _, msg := range result.Errors {
			fmt.Fprintf(os.Stderr, "warning: %s\n", msg)
		}
		if len(result.Items) == 0 {
			must(fmt.Errorf("no items parsed from %s", *file))
		}

		inv := internal.Invoice{
			ProjectID:    *projectID,
			SupplierID:   supplierPtr,
			Number:       result.InvoiceNumber,
			Date:         result.InvoiceDate,
			SupplierName: result.SupplierName,
			TotalAmount:  result.TotalAmount,
			SourceRef:    *file,
			Quality:      result.Quality.Category,
		}
		invoiceID, err := db.InsertInvoice(inv, result.Items)
		must(err)
		fmt.Printf("invoice uploaded id=%d items=%d skipped=%d quality=%s\n",
			invoiceID, len(result.Items), result.SkippedRows, result.Quality.Category)
	case "match:run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		projectID := fs.Int("project", 0, "project id")
		_ = fs.Parse(os.Args[2:])
		if *projectID == 0 {
			must(fmt.Errorf("--project is required"))
		}
		svc := match.NewService(db, match.NewEngine(cfg), log)
		stats, err := svc.Run(*projectID)
		must(err)
		fmt.Printf("match run done trace=%s specItems=%d invoiceItems=%d candidates=%d skippedConfirmed=%d\n",
			stats.TraceID, stats.SpecItems, stats.InvoiceItems, stats.Candidates, stats.SkippedSpec)
	case "match:candidates":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		specItemID := fs.Int("specItem", 0, "specification item id")
		_ = fs.Parse(os.Args[2:])
		if *specItemID == 0 {
			must(fmt.Errorf("--specItem is required"))
		}
		candidates, err := db.ListCandidates(*specItemID)
		must(err)
		for _, c := range candidates {
			marks := ""
			if c.Selected {
				marks += " selected"
			}
			if c.Confirmed {
				marks += " confirmed"
			}
			fmt.Printf("candidate id=%d invoiceItem=%d confidence=%.3f type=%s%s\n",
				c.ID, c.InvoiceItemID, c.Confidence, c.MatchType, marks)
		}
	case "match:confirm":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		candidateID := fs.Int("candidate", 0, "candidate id")
		kind := fs.String("kind", "exact", "exact|analog")
		_ = fs.Parse(os.Args[2:])
		if *candidateID == 0 {
			must(fmt.Errorf("--candidate is required"))
		}
		confirmKind := internal.ConfirmKind(strings.ToLower(*kind))
		if confirmKind != internal.ConfirmExact && confirmKind != internal.ConfirmAnalog {
			must(fmt.Errorf("unsupported kind: %s", *kind))
		}
		svc := match.NewService(db, match.NewEngine(cfg), log)
		rule, err := svc.Confirm(*candidateID, confirmKind)
		must(err)
		fmt.Printf("candidate confirmed, rule id=%d confidence=%.3f timesUsed=%d\n",
			rule.ID, rule.Confidence, rule.TimesUsed)
	case "match:select":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		candidateID := fs.Int("candidate", 0, "candidate id")
		_ = fs.Parse(os.Args[2:])
		if *candidateID == 0 {
			must(fmt.Errorf("--candidate is required"))
		}
		must(db.MarkCandidateSelected(*candidateID))
		fmt.Printf("candidate selected id=%d\n", *candidateID)
	case "rule:add":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		specName := fs.String("spec", "", "specification item name")
		invoiceName := fs.String("invoice", "", "invoice item name")
		supplierID := fs.Int("supplier", 0, "supplier scope")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*specName) == "" || strings.TrimSpace(*invoiceName) == "" {
			must(fmt.Errorf("--spec and --invoice are required"))
		}
		var supplierPtr *int
		if *supplierID != 0 {
			supplierPtr = supplierID
		}
		learner := match.NewLearner(db)
		rule, err := learner.ConfirmManual(*specName, *invoiceName, supplierPtr)
		must(err)
		fmt.Printf("rule saved id=%d confidence=%.3f\n", rule.ID, rule.Confidence)
	case "mapping:save":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		supplierID := fs.Int("supplier", 0, "supplier id")
		mappingJSON := fs.String("json", "", `mapping as {"headerRow":N,"columns":{"name":idx,...}}`)
		_ = fs.Parse(os.Args[2:])
		if *supplierID == 0 || strings.TrimSpace(*mappingJSON) == "" {
			must(fmt.Errorf("--supplier and --json are required"))
		}
		var mapping internal.ColumnMapping
		must(json.Unmarshal([]byte(*mappingJSON), &mapping))
		if !mapping.Valid() {
			must(fmt.Errorf(`mapping must bind the "name" column`))
		}
		must(db.SaveMapping(*supplierID, mapping))
		fmt.Printf("mapping saved supplier=%d columns=%d\n", *supplierID, len(mapping.Columns))
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		projectID := fs.Int("project", 0, "project id")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if *projectID == 0 || strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--project and --out are required"))
		}
		rows, err := db.GetReconciliationRows(*projectID)
		must(err)
		if len(rows) == 0 {
			must(fmt.Errorf("no reconciliation rows for project=%d", *projectID))
		}
		must(pipeline.ExportReconciliation(rows, *out))
		fmt.Printf("exported %d rows to %s\n", len(rows), *out)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "imap", "gmail|imap")
		label := fs.String("label", "INBOX", "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(os.Args[2:])
		conn, err := makeConnector(cfg, *provider)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn, log)
		result, err := fetch.FetchAndStore(*label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d\n", *provider, result.Fetched, result.Stored)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		projectID := fs.Int("project", 0, "project id")
		provider := fs.String("provider", "", "gmail|imap, empty for all")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(os.Args[2:])
		if *projectID == 0 {
			must(fmt.Errorf("--project is required"))
		}
		processor := pipeline.NewProcessingService(db, cfg, *projectID, log)
		processedEmails, createdInvoices, err := processor.ProcessPending(*batch, *provider)
		must(err)
		fmt.Printf("processed emails=%d invoices=%d\n", processedEmails, createdInvoices)
	case "mail:listen":
		svc := listener.NewService(db, cfg, log)
		must(svc.Run(context.Background()))
	default:
		usage()
		os.Exit(1)
	}
}

func loadGrid(file string) ([][]string, error) {
	kind, err := documentKind(file)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	grid, _, err := pipeline.ExtractDocument(kind, content)
	return grid, err
}

func documentKind(file string) (internal.DocumentKind, error) {
	name, ok := pipeline.AttachmentKind(file)
	if !ok {
		return "", fmt.Errorf("unsupported file type: %s", file)
	}
	return internal.DocumentKind(name), nil
}

func makeConnector(cfg config.Config, provider string) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func usage() {
	fmt.Println("usage: specmatch <command>")
	fmt.Println("commands:")
	fmt.Println("  project:create --name=...")
	fmt.Println("  supplier:create --name=... [--inn=...]")
	fmt.Println("  spec:upload --project=1 --file=spec.xlsx [--section=...]")
	fmt.Println("  invoice:upload --project=1 --file=invoice.xlsx [--supplier=1]")
	fmt.Println("  match:run --project=1")
	fmt.Println("  match:candidates --specItem=1")
	fmt.Println("  match:confirm --candidate=1 --kind=exact|analog")
	fmt.Println("  match:select --candidate=1")
	fmt.Println("  rule:add --spec=... --invoice=... [--supplier=1]")
	fmt.Println("  mapping:save --supplier=1 --json=...")
	fmt.Println("  export:xlsx --project=1 --out=./out/report.xlsx")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  mail:process --project=1 [--provider=...] [--batch=20]")
	fmt.Println("  mail:listen")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
