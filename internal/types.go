package internal

type DocumentKind string

const (
	DocXLSX      DocumentKind = "xlsx"
	DocPDF       DocumentKind = "pdf"
	DocEmailHTML DocumentKind = "email_html"
)

// Field names a column mapping can bind. Invoice tables use the first six,
// specification tables the second group; "name" is shared and mandatory.
const (
	FieldArticle         = "article"
	FieldName            = "name"
	FieldUnit            = "unit"
	FieldQuantity        = "quantity"
	FieldPrice           = "price"
	FieldAmount          = "amount"
	FieldPositionNumber  = "position_number"
	FieldCharacteristics = "characteristics"
	FieldEquipmentCode   = "equipment_code"
	FieldManufacturer    = "manufacturer"
)

// ColumnMapping binds logical fields to column indexes in a grid. A field
// absent from Columns is unset. Valid only when "name" is bound.
type ColumnMapping struct {
	HeaderRow int            `json:"headerRow"`
	Columns   map[string]int `json:"columns"`
}

func (m *ColumnMapping) Col(field string) (int, bool) {
	if m == nil {
		return 0, false
	}
	idx, ok := m.Columns[field]
	return idx, ok
}

func (m *ColumnMapping) Valid() bool {
	if m == nil {
		return false
	}
	_, ok := m.Columns[FieldName]
	return ok
}

type SpecificationItem struct {
	ID              int
	SpecificationID int
	Name            string
	Characteristics *string
	EquipmentCode   *string
	Manufacturer    *string
	Unit            *string
	Quantity        *float64
	Section         *string
}

type InvoiceItem struct {
	ID        int
	InvoiceID int
	RowIndex  int
	Article   *string
	Name      string
	Unit      *string
	Quantity  *float64
	Price     *float64
	Amount    *float64
}

type MatchType string

const (
	MatchExactArticle   MatchType = "exact_article"
	MatchLearnedRule    MatchType = "learned_rule"
	MatchNameSimilarity MatchType = "name_similarity"
	MatchNameCharacts   MatchType = "name_characteristics"
)

type MatchCandidate struct {
	ID            int       `json:"id"`
	SpecItemID    int       `json:"specItemId"`
	InvoiceItemID int       `json:"invoiceItemId"`
	Confidence    float64   `json:"confidence"`
	MatchType     MatchType `json:"matchType"`
	Selected      bool      `json:"selected"`
	Confirmed     bool      `json:"confirmed"`
}

type ConfirmKind string

const (
	ConfirmExact  ConfirmKind = "exact"
	ConfirmAnalog ConfirmKind = "analog"
)

// MatchingRule is a learned pairing of normalized patterns. SupplierID nil
// means the rule is not tied to any supplier; nil is its own scope bucket,
// not a wildcard on lookup.
type MatchingRule struct {
	ID             int
	SpecPattern    string
	InvoicePattern string
	Confidence     float64
	TimesUsed      int
	SupplierID     *int
}

type QualityCategory string

const (
	QualityA QualityCategory = "A"
	QualityB QualityCategory = "B"
	QualityC QualityCategory = "C"
)

type ParseQuality struct {
	Category QualityCategory `json:"category"`
	Reason   string          `json:"reason"`
}

type InvoiceParseResult struct {
	Items         []InvoiceItem `json:"items"`
	Errors        []string      `json:"errors"`
	TotalRows     int           `json:"totalRows"`
	SkippedRows   int           `json:"skippedRows"`
	InvoiceNumber *string       `json:"invoiceNumber"`
	InvoiceDate   *string       `json:"invoiceDate"`
	SupplierName  *string       `json:"supplierName"`
	TotalAmount   *float64      `json:"totalAmount"`
	Quality       ParseQuality  `json:"quality"`
}

type SpecParseResult struct {
	Items       []SpecificationItem `json:"items"`
	Errors      []string            `json:"errors"`
	TotalRows   int                 `json:"totalRows"`
	SkippedRows int                 `json:"skippedRows"`
	Quality     ParseQuality        `json:"quality"`
}

type Project struct {
	ID   int
	Name string
}

type Supplier struct {
	ID   int
	Name string
	INN  *string
}

type Invoice struct {
	ID           int
	ProjectID    int
	SupplierID   *int
	Number       *string
	Date         *string
	SupplierName *string
	TotalAmount  *float64
	SourceRef    string
	Quality      QualityCategory
}

type Specification struct {
	ID        int
	ProjectID int
	Section   *string
	SourceRef string
}

// ReconciliationRow joins a specification item with its currently
// selected invoice candidate, if any, for the export report.
type ReconciliationRow struct {
	Section        *string
	SpecName       string
	SpecUnit       *string
	SpecQuantity   *float64
	InvoiceName    *string
	InvoiceArticle *string
	Price          *float64
	SupplierName   *string
	Confidence     *float64
	MatchType      MatchType
	Confirmed      bool
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
