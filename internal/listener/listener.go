package listener

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"specmatch/internal/config"
	"specmatch/internal/connectors"
	gmailconnector "specmatch/internal/connectors/gmail"
	imapconnector "specmatch/internal/connectors/imap"
	"specmatch/internal/match"
	"specmatch/internal/pipeline"
	"specmatch/internal/storage"
)

// Service polls a mailbox for supplier invoices and feeds them into the
// configured project. One cycle fetches new mail, then processes the
// pending backlog.
type Service struct {
	db  *storage.DB
	cfg config.Config
	log *slog.Logger
}

func NewService(db *storage.DB, cfg config.Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{db: db, cfg: cfg, log: log}
}

func (s *Service) Run(ctx context.Context) error {
	if s.cfg.MailListenerProjectID == 0 {
		return fmt.Errorf("MAIL_LISTENER_PROJECT_ID is required")
	}

	for {
		if err := s.runCycle(); err != nil {
			s.log.Error("listener cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(s.cfg.MailListenerIntervalSec) * time.Second):
		}
	}
}

func (s *Service) runCycle() error {
	provider := strings.ToLower(strings.TrimSpace(s.cfg.MailListenerProvider))
	mailConnector, err := s.makeConnector(provider)
	if err != nil {
		return err
	}

	fetchService := connectors.NewFetchService(s.db, s.cfg.RawMailDir, mailConnector, s.log)
	fetchResult, err := fetchService.FetchAndStore(s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return err
	}

	processor := pipeline.NewProcessingService(s.db, s.cfg, s.cfg.MailListenerProjectID, s.log)
	processedEmails, createdInvoices, err := processor.ProcessPending(s.cfg.MailListenerBatch, provider)
	if err != nil {
		return err
	}

	if createdInvoices > 0 {
		if err := s.rematch(); err != nil {
			return err
		}
	}

	s.log.Info("listener cycle done",
		"provider", provider,
		"fetched", fetchResult.Fetched,
		"stored", fetchResult.Stored,
		"processedEmails", processedEmails,
		"createdInvoices", createdInvoices)
	return nil
}

// rematch refreshes the project's candidates after new invoices arrived and,
// when configured, writes a fresh reconciliation workbook under OutputDir.
func (s *Service) rematch() error {
	svc := match.NewService(s.db, match.NewEngine(s.cfg), s.log)
	stats, err := svc.Run(s.cfg.MailListenerProjectID)
	if err != nil {
		return err
	}
	s.log.Info("listener rematch done",
		"trace", stats.TraceID,
		"candidates", stats.Candidates)

	if !s.cfg.MailListenerAutoExport {
		return nil
	}

	rows, err := s.db.GetReconciliationRows(s.cfg.MailListenerProjectID)
	if err != nil {
		return err
	}
	filename := fmt.Sprintf("project_%d_%s.xlsx", s.cfg.MailListenerProjectID, time.Now().Format("20060102-150405"))
	outputPath := filepath.Join(s.cfg.OutputDir, "listener", filename)
	if err := pipeline.ExportReconciliation(rows, outputPath); err != nil {
		return err
	}
	s.log.Info("listener export done", "path", outputPath)
	return nil
}

func (s *Service) makeConnector(provider string) (connectors.MailConnector, error) {
	switch provider {
	case "gmail":
		return gmailconnector.NewConnector(s.cfg)
	case "imap":
		return imapconnector.NewConnector(s.cfg)
	default:
		return nil, fmt.Errorf("unsupported listener provider: %s", provider)
	}
}
