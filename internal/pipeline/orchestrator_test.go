package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftbooks/invoice-ingest/constants"
	"github.com/craftbooks/invoice-ingest/internal/ai"
	"github.com/craftbooks/invoice-ingest/internal/common"
	"github.com/craftbooks/invoice-ingest/internal/dedup"
	"github.com/craftbooks/invoice-ingest/internal/entity"
	"github.com/craftbooks/invoice-ingest/internal/extract"
	"github.com/craftbooks/invoice-ingest/internal/match"
	"github.com/craftbooks/invoice-ingest/internal/ocr"
	"github.com/craftbooks/invoice-ingest/internal/repository"
	"github.com/craftbooks/invoice-ingest/internal/score"
	"github.com/craftbooks/invoice-ingest/internal/validate"
)

const invoiceText = `Müller Elektrotechnik GmbH
Hauptstraße 12, 80331 München
USt-IdNr.: DE123456789
Rechnungs-Nr.: RE-2024-001
Rechnungsdatum: 15.03.2024
Nettobetrag: 1.000,00 €
MwSt 19 % 1.000,00 190,00
Gesamtbetrag: 1.190,00 €`

// fakeEngine records whether recognition ran.
type fakeEngine struct {
	text   string
	err    error
	called bool
}

func (f *fakeEngine) Recognize(context.Context, []byte, string) (ocr.RecognitionResult, error) {
	f.called = true
	if f.err != nil {
		return ocr.RecognitionResult{}, f.err
	}
	return ocr.RecognitionResult{Text: f.text, EngineName: "tesseract", EngineVersion: "5.3.0"}, nil
}

func (f *fakeEngine) Close() error { return nil }

type fakeModel struct {
	data *entity.StructuredInvoiceData
	err  error
}

func (f *fakeModel) ExtractInvoice(context.Context, ai.ExtractRequest) (*entity.StructuredInvoiceData, []byte, error) {
	return f.data, nil, f.err
}

type fakeResults struct {
	created  []*entity.OCRResult
	statuses map[uuid.UUID]constants.OCRStatus
	byHash   map[string]*entity.OCRResult
}

func newFakeResults() *fakeResults {
	return &fakeResults{
		statuses: map[uuid.UUID]constants.OCRStatus{},
		byHash:   map[string]*entity.OCRResult{},
	}
}

func (f *fakeResults) Create(_ context.Context, res *entity.OCRResult) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	f.created = append(f.created, res)
	f.statuses[res.ID] = res.Status
	if len(res.ContentHash) > 0 {
		f.byHash[string(res.ContentHash)] = res
	}
	return nil
}

func (f *fakeResults) GetByID(_ context.Context, id uuid.UUID) (*entity.OCRResult, error) {
	for _, r := range f.created {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeResults) FindByContentHash(_ context.Context, _ uuid.UUID, hash []byte) (*entity.OCRResult, error) {
	return f.byHash[string(hash)], nil
}

func (f *fakeResults) UpdateStatus(_ context.Context, id uuid.UUID, status constants.OCRStatus, _ string) error {
	f.statuses[id] = status
	return nil
}

func (f *fakeResults) MarkRejectedDuplicate(_ context.Context, id uuid.UUID, duplicateOf uuid.UUID, _ string) error {
	f.statuses[id] = constants.OCRStatusRejected
	for _, r := range f.created {
		if r.ID == id {
			dup := duplicateOf
			r.DuplicateOf = &dup
			return nil
		}
	}
	return common.ErrNotFound
}

func (f *fakeResults) UpdateStructuredData(_ context.Context, id uuid.UUID, data *entity.StructuredInvoiceData, scores entity.ConfidenceScores) error {
	for _, r := range f.created {
		if r.ID == id {
			r.StructuredData = data
			r.Confidence = scores
			return nil
		}
	}
	return common.ErrNotFound
}

func (f *fakeResults) AppendProcessingError(context.Context, uuid.UUID, string) error { return nil }

type fakeCompanies struct {
	companies map[uuid.UUID]*entity.Company
}

func (f *fakeCompanies) GetByID(_ context.Context, id uuid.UUID) (*entity.Company, error) {
	if c, ok := f.companies[id]; ok {
		return c, nil
	}
	return nil, common.ErrCompanyNotFound
}

type fakeSuppliers struct {
	suppliers []entity.Supplier
}

func (f *fakeSuppliers) ListByCompany(context.Context, uuid.UUID) ([]entity.Supplier, error) {
	return f.suppliers, nil
}

func (f *fakeSuppliers) GetByID(_ context.Context, id uuid.UUID) (*entity.Supplier, error) {
	for i := range f.suppliers {
		if f.suppliers[i].ID == id {
			return &f.suppliers[i], nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeSuppliers) Create(_ context.Context, s *entity.Supplier) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	f.suppliers = append(f.suppliers, *s)
	return nil
}

type fakeInvoices struct {
	invoices  []entity.Invoice
	createErr error
}

func (f *fakeInvoices) Create(_ context.Context, inv *entity.Invoice) error {
	if f.createErr != nil {
		return f.createErr
	}
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	f.invoices = append(f.invoices, *inv)
	return nil
}

func (f *fakeInvoices) ListSince(context.Context, uuid.UUID, time.Time) ([]entity.Invoice, error) {
	return f.invoices, nil
}

func (f *fakeInvoices) ListByCompany(context.Context, uuid.UUID) ([]entity.Invoice, error) {
	return f.invoices, nil
}

type fakeAudit struct {
	events []repository.AuditEvent
	err    error
}

func (f *fakeAudit) Append(_ context.Context, ev repository.AuditEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

type harness struct {
	orch      *Orchestrator
	engine    *fakeEngine
	results   *fakeResults
	suppliers *fakeSuppliers
	invoices  *fakeInvoices
	audit     *fakeAudit
	companyID uuid.UUID
}

func newHarness(t *testing.T, model ai.InvoiceExtractor) *harness {
	t.Helper()
	companyID := uuid.New()
	engine := &fakeEngine{text: invoiceText}
	results := newFakeResults()
	suppliers := &fakeSuppliers{}
	invoices := &fakeInvoices{}
	audit := &fakeAudit{}
	companies := &fakeCompanies{companies: map[uuid.UUID]*entity.Company{
		companyID: {ID: companyID, Name: "Handwerk Demo", RequireVAT: true, DefaultCurrency: "EUR"},
	}}

	committer := NewCommitter(suppliers, invoices, results, audit, nil)
	orch := NewOrchestrator(
		Config{},
		engine,
		extract.NewExtractor(nil),
		model,
		score.NewScorer(),
		validate.NewEngine(validate.Config{}),
		match.NewResolver(suppliers, match.Config{}, nil),
		dedup.NewDetector(invoices, nil),
		results,
		companies,
		committer,
		audit,
		nil,
	)
	return &harness{
		orch:      orch,
		engine:    engine,
		results:   results,
		suppliers: suppliers,
		invoices:  invoices,
		audit:     audit,
		companyID: companyID,
	}
}

func (h *harness) submission(autoApprove bool) Submission {
	return Submission{
		CompanyID:   h.companyID,
		Filename:    "rechnung.pdf",
		MimeType:    "application/pdf",
		Data:        []byte("%PDF-1.4 fake"),
		AutoApprove: autoApprove,
	}
}

func collectProgress(statuses *[]entity.PipelineStatus) ProgressFunc {
	return func(s entity.PipelineStatus) { *statuses = append(*statuses, s) }
}

func TestRun_AutoApproveImportsInvoice(t *testing.T) {
	h := newHarness(t, nil)
	var statuses []entity.PipelineStatus

	res := h.orch.Run(context.Background(), h.submission(true), collectProgress(&statuses))

	require.True(t, res.Success, "error: %s", res.Error)
	require.NotNil(t, res.InvoiceID)
	require.NotNil(t, res.SupplierID)
	assert.True(t, res.SupplierWasCreated, "empty roster must create the supplier")
	require.Len(t, h.invoices.invoices, 1)
	assert.Equal(t, "RE-2024-001", h.invoices.invoices[0].Number)
	assert.True(t, h.invoices.invoices[0].GrossTotal.Equal(decimal.RequireFromString("1190.00")))

	require.Len(t, h.results.created, 1)
	assert.Equal(t, constants.OCRStatusImported, h.results.statuses[h.results.created[0].ID])

	require.NotEmpty(t, statuses)
	assert.Equal(t, 100, statuses[len(statuses)-1].Progress)
	assert.Equal(t, constants.StageComplete, statuses[len(statuses)-1].Stage)
}

func TestRun_ProgressMonotonicallyNonDecreasing(t *testing.T) {
	h := newHarness(t, nil)
	var statuses []entity.PipelineStatus

	h.orch.Run(context.Background(), h.submission(true), collectProgress(&statuses))

	require.NotEmpty(t, statuses)
	for i := 1; i < len(statuses); i++ {
		assert.GreaterOrEqual(t, statuses[i].Progress, statuses[i-1].Progress,
			"progress went backwards at update %d", i)
	}
}

func TestRun_WithoutAutoApproveStopsAtValidated(t *testing.T) {
	h := newHarness(t, nil)

	res := h.orch.Run(context.Background(), h.submission(false), nil)

	require.True(t, res.Success)
	assert.Nil(t, res.InvoiceID)
	assert.Empty(t, h.invoices.invoices)
	assert.Equal(t, constants.OCRStatusValidated, h.results.statuses[h.results.created[0].ID])
}

func TestRun_CompanyNotFoundAbortsBeforeRecognition(t *testing.T) {
	h := newHarness(t, nil)
	sub := h.submission(true)
	sub.CompanyID = uuid.New()

	res := h.orch.Run(context.Background(), sub, nil)

	assert.False(t, res.Success)
	assert.Equal(t, constants.CodeCompanyNotFound, res.Code)
	assert.False(t, h.engine.called)
}

func TestRun_ByteIdenticalReuploadSkipsEngine(t *testing.T) {
	h := newHarness(t, nil)
	first := h.orch.Run(context.Background(), h.submission(false), nil)
	require.True(t, first.Success)

	h.engine.called = false
	second := h.orch.Run(context.Background(), h.submission(false), nil)

	assert.False(t, second.Success)
	assert.Equal(t, constants.CodeDuplicateFile, second.Code)
	assert.False(t, h.engine.called, "recognition must not run for a known content hash")
	require.NotNil(t, second.OCRResultID)
	assert.Equal(t, *first.OCRResultID, *second.OCRResultID)
}

func TestRun_EngineFailureMapsToCode(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.err = common.NewAppError(constants.CodeEngineUnavailable, "tesseract not found", nil)

	res := h.orch.Run(context.Background(), h.submission(true), nil)

	assert.False(t, res.Success)
	assert.Equal(t, constants.CodeEngineUnavailable, res.Code)
	assert.Empty(t, h.results.created)
}

func TestRun_ValidationFailureHaltsWithDetail(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.text = "Lieferung vom Lager, keine Rechnung"

	res := h.orch.Run(context.Background(), h.submission(true), nil)

	assert.False(t, res.Success)
	assert.Equal(t, constants.CodeValidationError, res.Code)
	require.NotNil(t, res.ValidationResult)
	assert.NotEmpty(t, res.ValidationResult.Errors)
	assert.Empty(t, h.invoices.invoices)
	// stays pending so the human can fix and re-validate
	assert.Equal(t, constants.OCRStatusPending, h.results.statuses[h.results.created[0].ID])
}

func TestRun_ExactDuplicateNeverReachesImport(t *testing.T) {
	h := newHarness(t, nil)
	supplierID := uuid.New()
	h.suppliers.suppliers = []entity.Supplier{{
		ID: supplierID, CompanyID: h.companyID,
		Name: "Müller Elektrotechnik GmbH", VatID: "DE123456789",
	}}
	h.invoices.invoices = []entity.Invoice{{
		ID:           uuid.New(),
		CompanyID:    h.companyID,
		SupplierID:   supplierID,
		Number:       "RE-2024-001",
		Date:         time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		GrossTotal:   decimal.RequireFromString("1190.00"),
		SupplierName: "Müller Elektrotechnik GmbH",
	}}

	res := h.orch.Run(context.Background(), h.submission(true), nil)

	assert.False(t, res.Success)
	assert.Equal(t, constants.CodeDuplicateInvoice, res.Code)
	assert.Nil(t, res.InvoiceID)
	require.NotEmpty(t, res.DuplicateWarnings)
	assert.Equal(t, constants.DuplicateExact, res.DuplicateWarnings[0].DuplicateType)
	assert.Len(t, h.invoices.invoices, 1, "no second invoice may be created")
	assert.Equal(t, constants.OCRStatusRejected, h.results.statuses[h.results.created[0].ID])
	require.NotNil(t, h.results.created[0].DuplicateOf, "rejected result must point at the imported invoice")
	assert.Equal(t, h.invoices.invoices[0].ID, *h.results.created[0].DuplicateOf)
}

func TestRun_ModelFailureFallsBackToPatterns(t *testing.T) {
	h := newHarness(t, &fakeModel{err: errors.New("model timeout")})

	res := h.orch.Run(context.Background(), h.submission(true), nil)

	require.True(t, res.Success, "model failure must not surface: %s", res.Error)
	require.Len(t, h.results.created, 1)
	assert.Equal(t, "RE-2024-001", h.results.created[0].StructuredData.Invoice.Number)
}

func TestRun_ModelResultPreferredWhenAvailable(t *testing.T) {
	model := &fakeModel{data: &entity.StructuredInvoiceData{
		Supplier: entity.SupplierInfo{Name: "Modell Lieferant GmbH", VatID: "DE999999999"},
		Invoice:  entity.InvoiceInfo{Number: "KI-1", Date: "2024-04-01", Currency: "EUR"},
		Totals: entity.Totals{
			Net:   decimal.RequireFromString("100.00"),
			Gross: decimal.RequireFromString("119.00"),
			Taxes: []entity.TaxLine{{Rate: decimal.NewFromInt(19), Amount: decimal.RequireFromString("19.00")}},
		},
	}}
	h := newHarness(t, model)

	res := h.orch.Run(context.Background(), h.submission(true), nil)

	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, "KI-1", h.invoices.invoices[0].Number)
}

func TestRun_ImportFailureLeavesResultValidated(t *testing.T) {
	h := newHarness(t, nil)
	h.invoices.createErr = common.ErrInvoiceExists

	res := h.orch.Run(context.Background(), h.submission(true), nil)

	assert.False(t, res.Success)
	assert.Equal(t, constants.CodeDuplicateInvoice, res.Code)
	assert.Equal(t, constants.OCRStatusValidated, h.results.statuses[h.results.created[0].ID])
}

func TestRun_AuditFailureIsNonFatal(t *testing.T) {
	h := newHarness(t, nil)
	h.audit.err = errors.New("audit store down")

	res := h.orch.Run(context.Background(), h.submission(true), nil)

	assert.True(t, res.Success, "audit failures must never abort the run: %s", res.Error)
}

func TestRevalidate_FixAndRetryLoop(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.text = "Rechnungsdatum: 15.03.2024\nGesamtbetrag: 1.190,00 €" // no number, no supplier

	res := h.orch.Run(context.Background(), h.submission(true), nil)
	require.False(t, res.Success)
	require.Equal(t, constants.CodeValidationError, res.Code)
	resultID := *res.OCRResultID

	// re-validating unchanged data stays invalid
	vr, err := h.orch.Revalidate(context.Background(), resultID, nil)
	require.NoError(t, err)
	assert.False(t, vr.Valid)

	edited := h.results.created[0].StructuredData
	edited.Invoice.Number = "RE-2024-007"
	edited.Supplier.Name = "Müller Elektrotechnik GmbH"
	edited.Supplier.VatID = "DE123456789"
	edited.Totals.Net = decimal.RequireFromString("1000.00")

	vr, err = h.orch.Revalidate(context.Background(), resultID, edited)
	require.NoError(t, err)
	assert.True(t, vr.Valid, "errors: %v", vr.Errors)
	assert.Equal(t, constants.OCRStatusValidated, h.results.statuses[resultID])
}
