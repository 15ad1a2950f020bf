package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"specmatch/internal"
	"specmatch/internal/config"
	"specmatch/internal/connectors"
	"specmatch/internal/storage"
)

// ProcessingService turns stored supplier emails into invoices for a
// project. It reads the raw message, decides whether it looks like an
// invoice, parses each document attachment and persists the result.
type ProcessingService struct {
	db        *storage.DB
	cfg       config.Config
	projectID int
	log       *slog.Logger
}

func NewProcessingService(db *storage.DB, cfg config.Config, projectID int, log *slog.Logger) *ProcessingService {
	if log == nil {
		log = slog.Default()
	}
	return &ProcessingService{db: db, cfg: cfg, projectID: projectID, log: log}
}

type ProcessResult struct {
	EmailID  int
	Invoices int
	Items    int
	Skipped  bool
}

func (s *ProcessingService) ProcessPending(limit int, provider string) (int, int, error) {
	pending, err := s.db.ListEmailsByStatus("fetched", limit)
	if err != nil {
		return 0, 0, err
	}

	processedEmails := 0
	createdInvoices := 0
	for _, email := range pending {
		if provider != "" && email.Provider != provider {
			continue
		}
		res, err := s.ProcessEmail(email)
		if err != nil {
			return processedEmails, createdInvoices, err
		}
		processedEmails++
		createdInvoices += res.Invoices
	}
	return processedEmails, createdInvoices, nil
}

func (s *ProcessingService) ProcessEmail(email internal.EmailRow) (ProcessResult, error) {
	start := time.Now()
	trace := uuid.NewString()
	log := s.log.With("traceId", trace, "emailId", email.ID)

	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("read raw email: %w", err)
	}

	parsed, err := ReadEmail(raw)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("parse email: %w", err)
	}

	attachmentNames := make([]string, 0, len(parsed.Attachments))
	for _, att := range parsed.Attachments {
		attachmentNames = append(attachmentNames, att.Name)
	}

	subject := parsed.Subject
	if strings.TrimSpace(subject) == "" {
		subject = email.Subject
	}
	detect := connectors.DetectInvoiceEmail(subject, parsed.Text, parsed.HTML, attachmentNames)
	if !detect.IsInvoice {
		log.Info("email skipped", "score", detect.Score)
		_ = s.db.UpdateEmailStatus(email.ID, "skipped")
		_ = s.db.InsertRun(trace, s.projectID,
			map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())},
			map[string]int{"invoices": 0, "items": 0})
		return ProcessResult{EmailID: email.ID, Skipped: true}, nil
	}

	result := ProcessResult{EmailID: email.ID}
	for _, att := range parsed.Attachments {
		kindName, ok := AttachmentKind(att.Name)
		if !ok {
			continue
		}
		items, err := s.storeInvoice(internal.DocumentKind(kindName), att.Content,
			fmt.Sprintf("email:%d/%s", email.ID, att.Name))
		if err != nil {
			log.Warn("attachment failed", "name", att.Name, "error", err)
			continue
		}
		result.Invoices++
		result.Items += items
	}

	// No parseable attachment: the invoice table may live in the HTML
	// body itself.
	if result.Invoices == 0 && parsed.HTML != "" {
		items, err := s.storeInvoice(internal.DocEmailHTML, []byte(parsed.HTML),
			fmt.Sprintf("email:%d/body", email.ID))
		if err == nil {
			result.Invoices++
			result.Items += items
		} else {
			log.Warn("html body failed", "error", err)
		}
	}

	status := "processed"
	if result.Invoices == 0 {
		status = "failed"
	}
	if err := s.db.UpdateEmailStatus(email.ID, status); err != nil {
		return result, err
	}
	_ = s.db.InsertRun(trace, s.projectID,
		map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())},
		map[string]int{"invoices": result.Invoices, "items": result.Items})

	log.Info("email processed", "invoices", result.Invoices, "items", result.Items)
	return result, nil
}

func (s *ProcessingService) storeInvoice(kind internal.DocumentKind, content []byte, sourceRef string) (int, error) {
	grid, text, err := ExtractDocument(kind, content)
	if err != nil {
		return 0, err
	}

	parse := ParseInvoice(grid, text, nil, s.cfg.GarbageTextRatio)
	if len(parse.Items) == 0 {
		if len(parse.Errors) > 0 {
			return 0, fmt.Errorf("%s", parse.Errors[0])
		}
		return 0, fmt.Errorf("позиции не найдены")
	}

	var supplierID *int
	if parse.SupplierName != nil {
		supplier, err := s.db.GetSupplierByName(*parse.SupplierName)
		if err != nil {
			return 0, err
		}
		if supplier != nil {
			supplierID = &supplier.ID
		}
	}

	inv := internal.Invoice{
		ProjectID:    s.projectID,
		SupplierID:   supplierID,
		Number:       parse.InvoiceNumber,
		Date:         parse.InvoiceDate,
		SupplierName: parse.SupplierName,
		TotalAmount:  parse.TotalAmount,
		SourceRef:    sourceRef,
		Quality:      parse.Quality.Category,
	}
	if _, err := s.db.InsertInvoice(inv, parse.Items); err != nil {
		return 0, err
	}
	return len(parse.Items), nil
}
