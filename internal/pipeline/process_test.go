package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"specmatch/internal"
	"specmatch/internal/config"
	"specmatch/internal/storage"
)

const invoiceEmailRaw = "From: supplier@example.com\r\n" +
	"To: buyer@example.com\r\n" +
	"Subject: Счет на оплату № 105\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<html><body><p>Добрый день, направляем счет, итого 4550 руб.</p>" +
	"<table>" +
	"<tr><td>Наименование</td><td>Кол-во</td><td>Цена</td></tr>" +
	"<tr><td>Кабель ВВГ 3х2.5</td><td>100</td><td>45,50</td></tr>" +
	"</table></body></html>\r\n"

const newsletterEmailRaw = "From: news@example.com\r\n" +
	"To: buyer@example.com\r\n" +
	"Subject: Новости за март\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Подписывайтесь на наши обновления\r\n"

func TestReadEmail(t *testing.T) {
	parsed, err := ReadEmail([]byte(invoiceEmailRaw))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(parsed.Subject, "105") {
		t.Fatalf("subject = %q", parsed.Subject)
	}
	if !strings.Contains(parsed.HTML, "<table") {
		t.Fatalf("html body not extracted")
	}
	if len(parsed.Attachments) != 0 {
		t.Fatalf("attachments = %d", len(parsed.Attachments))
	}
}

func processSetup(t *testing.T, raw string) (*ProcessingService, *storage.DB, internal.EmailRow) {
	t.Helper()

	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	project, err := db.CreateProject("Объект Восток")
	if err != nil {
		t.Fatalf("project: %v", err)
	}

	rawPath := filepath.Join(dir, "message.eml")
	if err := os.WriteFile(rawPath, []byte(raw), 0o644); err != nil {
		t.Fatalf("write raw: %v", err)
	}
	email, err := db.UpsertEmail("imap", "<msg-1>", "", "supplier@example.com", "2024-03-12T10:00:00Z", "hash", rawPath, "fetched")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return NewProcessingService(db, cfg, project.ID, nil), db, email
}

func TestProcessEmailHTMLInvoice(t *testing.T) {
	svc, db, email := processSetup(t, invoiceEmailRaw)

	res, err := svc.ProcessEmail(email)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Skipped {
		t.Fatalf("invoice email skipped")
	}
	if res.Invoices != 1 || res.Items != 1 {
		t.Fatalf("result = %+v", res)
	}

	updated, err := db.GetEmailByProviderMessageID("imap", "<msg-1>")
	if err != nil || updated == nil {
		t.Fatalf("email: %v %v", updated, err)
	}
	if updated.Status != "processed" {
		t.Fatalf("status = %q", updated.Status)
	}

	items, err := db.ListInvoiceItems(1)
	if err != nil || len(items) != 1 {
		t.Fatalf("invoice items: %v %d", err, len(items))
	}
	if items[0].Name != "Кабель ВВГ 3х2.5" {
		t.Fatalf("item name = %q", items[0].Name)
	}
}

func TestProcessEmailSkipsNewsletter(t *testing.T) {
	svc, db, email := processSetup(t, newsletterEmailRaw)

	res, err := svc.ProcessEmail(email)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !res.Skipped {
		t.Fatalf("newsletter not skipped: %+v", res)
	}

	updated, _ := db.GetEmailByProviderMessageID("imap", "<msg-1>")
	if updated.Status != "skipped" {
		t.Fatalf("status = %q", updated.Status)
	}
}
