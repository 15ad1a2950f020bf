package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"specmatch/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := conn.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS projects (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS suppliers (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  inn TEXT
);

CREATE TABLE IF NOT EXISTS specifications (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  projectId INTEGER NOT NULL,
  section TEXT,
  sourceRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(projectId) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS specification_items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  specificationId INTEGER NOT NULL,
  name TEXT NOT NULL,
  characteristics TEXT,
  equipmentCode TEXT,
  manufacturer TEXT,
  unit TEXT,
  quantity REAL,
  section TEXT,
  FOREIGN KEY(specificationId) REFERENCES specifications(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_spec_items_spec ON specification_items(specificationId);

CREATE TABLE IF NOT EXISTS invoices (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  projectId INTEGER NOT NULL,
  supplierId INTEGER,
  number TEXT,
  date TEXT,
  supplierName TEXT,
  totalAmount REAL,
  sourceRef TEXT NOT NULL,
  quality TEXT NOT NULL DEFAULT 'B',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(projectId) REFERENCES projects(id) ON DELETE CASCADE,
  FOREIGN KEY(supplierId) REFERENCES suppliers(id)
);

CREATE TABLE IF NOT EXISTS invoice_items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  invoiceId INTEGER NOT NULL,
  rowIndex INTEGER NOT NULL,
  article TEXT,
  name TEXT NOT NULL,
  unit TEXT,
  quantity REAL,
  price REAL,
  amount REAL,
  FOREIGN KEY(invoiceId) REFERENCES invoices(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_invoice_items_invoice ON invoice_items(invoiceId);

CREATE TABLE IF NOT EXISTS match_candidates (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  specItemId INTEGER NOT NULL,
  invoiceItemId INTEGER NOT NULL,
  confidence REAL NOT NULL,
  matchType TEXT NOT NULL,
  selected INTEGER NOT NULL DEFAULT 0,
  confirmed INTEGER NOT NULL DEFAULT 0,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(specItemId) REFERENCES specification_items(id) ON DELETE CASCADE,
  FOREIGN KEY(invoiceItemId) REFERENCES invoice_items(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_candidates_spec_item ON match_candidates(specItemId);

CREATE TABLE IF NOT EXISTS matching_rules (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  specPattern TEXT NOT NULL,
  invoicePattern TEXT NOT NULL,
  confidence REAL NOT NULL,
  timesUsed INTEGER NOT NULL DEFAULT 1,
  supplierId INTEGER,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(supplierId) REFERENCES suppliers(id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_rules_identity_scoped
  ON matching_rules(specPattern, invoicePattern, supplierId)
  WHERE supplierId IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_rules_identity_global
  ON matching_rules(specPattern, invoicePattern)
  WHERE supplierId IS NULL;

CREATE TABLE IF NOT EXISTS saved_mappings (
  supplierId INTEGER PRIMARY KEY,
  mappingJson TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(supplierId) REFERENCES suppliers(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  projectId INTEGER,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(projectId) REFERENCES projects(id)
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) CreateProject(name string) (internal.Project, error) {
	res, err := d.conn.Exec(`INSERT INTO projects (name) VALUES (?)`, name)
	if err != nil {
		return internal.Project{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return internal.Project{}, err
	}
	return internal.Project{ID: int(id), Name: name}, nil
}

func (d *DB) GetProject(id int) (*internal.Project, error) {
	var p internal.Project
	err := d.conn.QueryRow(`SELECT id, name FROM projects WHERE id = ?`, id).Scan(&p.ID, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *DB) DeleteProject(id int) error {
	_, err := d.conn.Exec(`DELETE FROM projects WHERE id = ?`, id)
	return err
}

func (d *DB) CreateSupplier(name string, inn *string) (internal.Supplier, error) {
	res, err := d.conn.Exec(`INSERT INTO suppliers (name, inn) VALUES (?, ?)`, name, inn)
	if err != nil {
		return internal.Supplier{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return internal.Supplier{}, err
	}
	return internal.Supplier{ID: int(id), Name: name, INN: inn}, nil
}

func (d *DB) GetSupplier(id int) (*internal.Supplier, error) {
	var s internal.Supplier
	err := d.conn.QueryRow(`SELECT id, name, inn FROM suppliers WHERE id = ?`, id).Scan(&s.ID, &s.Name, &s.INN)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (d *DB) GetSupplierByName(name string) (*internal.Supplier, error) {
	var s internal.Supplier
	err := d.conn.QueryRow(`SELECT id, name, inn FROM suppliers WHERE name = ? COLLATE NOCASE`, name).Scan(&s.ID, &s.Name, &s.INN)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// InsertSpecification stores a parsed specification document with its
// items in one transaction.
func (d *DB) InsertSpecification(projectID int, section *string, sourceRef string, items []internal.SpecificationItem) (int, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`INSERT INTO specifications (projectId, section, sourceRef) VALUES (?, ?, ?)`, projectID, section, sourceRef)
	if err != nil {
		return 0, err
	}
	specID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`
INSERT INTO specification_items (specificationId, name, characteristics, equipmentCode, manufacturer, unit, quantity, section)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, item := range items {
		itemSection := item.Section
		if itemSection == nil {
			itemSection = section
		}
		if _, err := stmt.Exec(specID, item.Name, item.Characteristics, item.EquipmentCode, item.Manufacturer, item.Unit, item.Quantity, itemSection); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(specID), nil
}

func (d *DB) ListSpecItems(projectID int) ([]internal.SpecificationItem, error) {
	rows, err := d.conn.Query(`
SELECT si.id, si.specificationId, si.name, si.characteristics, si.equipmentCode, si.manufacturer, si.unit, si.quantity, si.section
FROM specification_items si
JOIN specifications s ON s.id = si.specificationId
WHERE s.projectId = ?
ORDER BY si.id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.SpecificationItem
	for rows.Next() {
		var item internal.SpecificationItem
		if err := rows.Scan(&item.ID, &item.SpecificationID, &item.Name, &item.Characteristics, &item.EquipmentCode, &item.Manufacturer, &item.Unit, &item.Quantity, &item.Section); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (d *DB) DeleteSpecification(id int) error {
	_, err := d.conn.Exec(`DELETE FROM specifications WHERE id = ?`, id)
	return err
}

// InsertInvoice stores a parsed invoice with its items in one transaction.
func (d *DB) InsertInvoice(inv internal.Invoice, items []internal.InvoiceItem) (int, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
INSERT INTO invoices (projectId, supplierId, number, date, supplierName, totalAmount, sourceRef, quality)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ProjectID, inv.SupplierID, inv.Number, inv.Date, inv.SupplierName, inv.TotalAmount, inv.SourceRef, string(inv.Quality))
	if err != nil {
		return 0, err
	}
	invoiceID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`
INSERT INTO invoice_items (invoiceId, rowIndex, article, name, unit, quantity, price, amount)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, item := range items {
		if _, err := stmt.Exec(invoiceID, item.RowIndex, item.Article, item.Name, item.Unit, item.Quantity, item.Price, item.Amount); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(invoiceID), nil
}

func (d *DB) DeleteInvoice(id int) error {
	_, err := d.conn.Exec(`DELETE FROM invoices WHERE id = ?`, id)
	return err
}

func (d *DB) ListInvoiceItems(projectID int) ([]internal.InvoiceItem, error) {
	rows, err := d.conn.Query(`
SELECT ii.id, ii.invoiceId, ii.rowIndex, ii.article, ii.name, ii.unit, ii.quantity, ii.price, ii.amount
FROM invoice_items ii
JOIN invoices i ON i.id = ii.invoiceId
WHERE i.projectId = ?
ORDER BY ii.id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.InvoiceItem
	for rows.Next() {
		var item internal.InvoiceItem
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.RowIndex, &item.Article, &item.Name, &item.Unit, &item.Quantity, &item.Price, &item.Amount); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// InvoiceSuppliers maps invoice id to its optional supplier scope for a
// project, so the matching run can pick the right rule subset per invoice.
func (d *DB) InvoiceSuppliers(projectID int) (map[int]*int, error) {
	rows, err := d.conn.Query(`SELECT id, supplierId FROM invoices WHERE projectId = ?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int]*int{}
	for rows.Next() {
		var id int
		var supplierID *int
		if err := rows.Scan(&id, &supplierID); err != nil {
			return nil, err
		}
		out[id] = supplierID
	}
	return out, rows.Err()
}

func (d *DB) SaveMapping(supplierID int, mapping internal.ColumnMapping) error {
	blob, err := json.Marshal(mapping)
	if err != nil {
		return err
	}
	_, err = d.conn.Exec(`
INSERT INTO saved_mappings (supplierId, mappingJson) VALUES (?, ?)
ON CONFLICT(supplierId) DO UPDATE SET mappingJson = excluded.mappingJson, updatedAt = CURRENT_TIMESTAMP`,
		supplierID, string(blob))
	return err
}

func (d *DB) GetSavedMapping(supplierID int) (*internal.ColumnMapping, error) {
	var blob string
	err := d.conn.QueryRow(`SELECT mappingJson FROM saved_mappings WHERE supplierId = ?`, supplierID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var mapping internal.ColumnMapping
	if err := json.Unmarshal([]byte(blob), &mapping); err != nil {
		return nil, err
	}
	return &mapping, nil
}

// RulesForScope implements match.RuleStore: rules tied to the supplier
// plus unscoped rules; nil scope yields unscoped rules only.
func (d *DB) RulesForScope(supplierID *int) ([]internal.MatchingRule, error) {
	var rows *sql.Rows
	var err error
	if supplierID == nil {
		rows, err = d.conn.Query(`
SELECT id, specPattern, invoicePattern, confidence, timesUsed, supplierId
FROM matching_rules WHERE supplierId IS NULL ORDER BY id`)
	} else {
		rows, err = d.conn.Query(`
SELECT id, specPattern, invoicePattern, confidence, timesUsed, supplierId
FROM matching_rules WHERE supplierId IS NULL OR supplierId = ? ORDER BY id`, *supplierID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.MatchingRule
	for rows.Next() {
		var r internal.MatchingRule
		if err := rows.Scan(&r.ID, &r.SpecPattern, &r.InvoicePattern, &r.Confidence, &r.TimesUsed, &r.SupplierID); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) FindRule(specPattern, invoicePattern string, supplierID *int) (*internal.MatchingRule, error) {
	var row *sql.Row
	if supplierID == nil {
		row = d.conn.QueryRow(`
SELECT id, specPattern, invoicePattern, confidence, timesUsed, supplierId
FROM matching_rules WHERE specPattern = ? AND invoicePattern = ? AND supplierId IS NULL`,
			specPattern, invoicePattern)
	} else {
		row = d.conn.QueryRow(`
SELECT id, specPattern, invoicePattern, confidence, timesUsed, supplierId
FROM matching_rules WHERE specPattern = ? AND invoicePattern = ? AND supplierId = ?`,
			specPattern, invoicePattern, *supplierID)
	}

	var r internal.MatchingRule
	err := row.Scan(&r.ID, &r.SpecPattern, &r.InvoicePattern, &r.Confidence, &r.TimesUsed, &r.SupplierID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *DB) InsertRule(rule internal.MatchingRule) (internal.MatchingRule, error) {
	res, err := d.conn.Exec(`
INSERT INTO matching_rules (specPattern, invoicePattern, confidence, timesUsed, supplierId)
VALUES (?, ?, ?, ?, ?)`,
		rule.SpecPattern, rule.InvoicePattern, rule.Confidence, rule.TimesUsed, rule.SupplierID)
	if err != nil {
		return internal.MatchingRule{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return internal.MatchingRule{}, err
	}
	rule.ID = int(id)
	return rule, nil
}

func (d *DB) UpdateRule(id int, confidence float64, timesUsed int) error {
	_, err := d.conn.Exec(`UPDATE matching_rules SET confidence = ?, timesUsed = ? WHERE id = ?`, confidence, timesUsed, id)
	return err
}

// ConfirmedSpecItemIDs lists the project's specification items that carry
// a confirmed candidate; matching runs leave those untouched.
func (d *DB) ConfirmedSpecItemIDs(projectID int) (map[int]bool, error) {
	rows, err := d.conn.Query(`
SELECT DISTINCT mc.specItemId
FROM match_candidates mc
JOIN specification_items si ON si.id = mc.specItemId
JOIN specifications s ON s.id = si.specificationId
WHERE s.projectId = ? AND mc.confirmed = 1`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int]bool{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// ReplaceCandidates atomically swaps the project's unconfirmed candidate
// set for a new one and auto-selects the best new candidate per
// specification item. Confirmed rows survive untouched; a crash mid-run
// leaves either the old or the new set.
func (d *DB) ReplaceCandidates(projectID int, candidates []internal.MatchCandidate) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
DELETE FROM match_candidates
WHERE confirmed = 0 AND specItemId IN (
  SELECT si.id FROM specification_items si
  JOIN specifications s ON s.id = si.specificationId
  WHERE s.projectId = ?
)`, projectID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
INSERT INTO match_candidates (specItemId, invoiceItemId, confidence, matchType, selected, confirmed)
VALUES (?, ?, ?, ?, ?, 0)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	selectedFor := map[int]bool{}
	for _, c := range candidates {
		selected := 0
		if !selectedFor[c.SpecItemID] {
			selected = 1
			selectedFor[c.SpecItemID] = true
		}
		if _, err := stmt.Exec(c.SpecItemID, c.InvoiceItemID, c.Confidence, string(c.MatchType), selected); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) GetCandidate(id int) (*internal.MatchCandidate, error) {
	var c internal.MatchCandidate
	var matchType string
	err := d.conn.QueryRow(`
SELECT id, specItemId, invoiceItemId, confidence, matchType, selected, confirmed
FROM match_candidates WHERE id = ?`, id).Scan(&c.ID, &c.SpecItemID, &c.InvoiceItemID, &c.Confidence, &matchType, &c.Selected, &c.Confirmed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.MatchType = internal.MatchType(matchType)
	return &c, nil
}

func (d *DB) ListCandidates(specItemID int) ([]internal.MatchCandidate, error) {
	rows, err := d.conn.Query(`
SELECT id, specItemId, invoiceItemId, confidence, matchType, selected, confirmed
FROM match_candidates WHERE specItemId = ? ORDER BY confidence DESC, id`, specItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.MatchCandidate
	for rows.Next() {
		var c internal.MatchCandidate
		var matchType string
		if err := rows.Scan(&c.ID, &c.SpecItemID, &c.InvoiceItemID, &c.Confidence, &matchType, &c.Selected, &c.Confirmed); err != nil {
			return nil, err
		}
		c.MatchType = internal.MatchType(matchType)
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkCandidateConfirmed flags a candidate as human-validated and makes it
// the selected one for its specification item.
func (d *DB) MarkCandidateConfirmed(id int) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var specItemID int
	if err := tx.QueryRow(`SELECT specItemId FROM match_candidates WHERE id = ?`, id).Scan(&specItemID); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE match_candidates SET selected = 0 WHERE specItemId = ?`, specItemID); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE match_candidates SET confirmed = 1, selected = 1 WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkCandidateSelected moves the "selected" flag within a specification
// item without touching confirmation state.
func (d *DB) MarkCandidateSelected(id int) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var specItemID int
	if err := tx.QueryRow(`SELECT specItemId FROM match_candidates WHERE id = ?`, id).Scan(&specItemID); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE match_candidates SET selected = 0 WHERE specItemId = ?`, specItemID); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE match_candidates SET selected = 1 WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// CandidateContext resolves the names and supplier scope behind a
// candidate, for the learner.
type CandidateContext struct {
	SpecItemID    int
	InvoiceItemID int
	SpecName      string
	InvoiceName   string
	SupplierID    *int
}

func (d *DB) GetCandidateContext(candidateID int) (*CandidateContext, error) {
	var ctx CandidateContext
	err := d.conn.QueryRow(`
SELECT mc.specItemId, mc.invoiceItemId, si.name, ii.name, i.supplierId
FROM match_candidates mc
JOIN specification_items si ON si.id = mc.specItemId
JOIN invoice_items ii ON ii.id = mc.invoiceItemId
JOIN invoices i ON i.id = ii.invoiceId
WHERE mc.id = ?`, candidateID).Scan(&ctx.SpecItemID, &ctx.InvoiceItemID, &ctx.SpecName, &ctx.InvoiceName, &ctx.SupplierID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ctx, nil
}

func (d *DB) GetReconciliationRows(projectID int) ([]internal.ReconciliationRow, error) {
	rows, err := d.conn.Query(`
SELECT
  si.section,
  si.name,
  si.unit,
  si.quantity,
  ii.name,
  ii.article,
  ii.price,
  sup.name,
  mc.confidence,
  mc.matchType,
  mc.confirmed
FROM specification_items si
JOIN specifications s ON s.id = si.specificationId
LEFT JOIN match_candidates mc ON mc.specItemId = si.id AND mc.selected = 1
LEFT JOIN invoice_items ii ON ii.id = mc.invoiceItemId
LEFT JOIN invoices i ON i.id = ii.invoiceId
LEFT JOIN suppliers sup ON sup.id = i.supplierId
WHERE s.projectId = ?
ORDER BY si.section, si.id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ReconciliationRow
	for rows.Next() {
		var row internal.ReconciliationRow
		var matchType *string
		var confirmed *bool
		if err := rows.Scan(
			&row.Section, &row.SpecName, &row.SpecUnit, &row.SpecQuantity,
			&row.InvoiceName, &row.InvoiceArticle, &row.Price,
			&row.SupplierName, &row.Confidence, &matchType, &confirmed,
		); err != nil {
			return nil, err
		}
		if matchType != nil {
			row.MatchType = internal.MatchType(*matchType)
		}
		if confirmed != nil {
			row.Confirmed = *confirmed
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpsertEmail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}

	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, errors.New("failed to upsert email")
	}
	return *row, nil
}

func (d *DB) GetEmailByProviderMessageID(provider, messageID string) (*internal.EmailRow, error) {
	var row internal.EmailRow
	err := d.conn.QueryRow(`
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM emails WHERE provider = ? AND messageId = ?
`, provider, messageID).Scan(
		&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListEmailsByStatus(status string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.Query(`
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM emails WHERE status = ? ORDER BY receivedAt ASC LIMIT ?
`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		var row internal.EmailRow
		if err := rows.Scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(emailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
}

func (d *DB) InsertRun(traceID string, projectID int, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, projectId, timingsJson, countsJson) VALUES (?, ?, ?, ?)`, traceID, projectID, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) MustProject(id int) (internal.Project, error) {
	p, err := d.GetProject(id)
	if err != nil {
		return internal.Project{}, err
	}
	if p == nil {
		return internal.Project{}, fmt.Errorf("project not found: id=%d", id)
	}
	return *p, nil
}
