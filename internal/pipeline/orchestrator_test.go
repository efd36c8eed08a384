package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/21andrewchang/hermes/internal/docai"
	"github.com/21andrewchang/hermes/internal/domain/entity"
)

type fakeFiles struct {
	content []byte
	err     error
	paths   []string
}

func (f *fakeFiles) Read(_ context.Context, path string) ([]byte, error) {
	f.paths = append(f.paths, path)
	if f.err != nil {
		return nil, f.err
	}
	return f.content, nil
}

type fakeProcessor struct {
	doc   *docai.Document
	err   error
	calls int
}

func (f *fakeProcessor) Process(_ context.Context, _ []byte, _ string) (*docai.Document, error) {
	f.calls++
	return f.doc, f.err
}

type fakeEnricher struct {
	fields  entity.ExtractedFields
	err     error
	called  bool
	gotText string
}

func (f *fakeEnricher) Enrich(_ context.Context, _ entity.ExtractedFields, text string) (entity.ExtractedFields, error) {
	f.called = true
	f.gotText = text
	return f.fields, f.err
}

type fakeMatcher struct {
	issueID   *string
	err       error
	called    bool
	gotFields entity.ExtractedFields
}

func (f *fakeMatcher) Match(_ context.Context, fields entity.ExtractedFields, _ []entity.Issue) (*string, error) {
	f.called = true
	f.gotFields = fields
	return f.issueID, f.err
}

type completedCall struct {
	id      string
	fields  entity.ExtractedFields
	issueID *string
}

type fakeInvoices struct {
	completed    *completedCall
	failedID     string
	failedMsg    string
	failedCalls  int
	failedCtxErr error
}

func (f *fakeInvoices) CompleteProcessing(_ context.Context, id string, fields entity.ExtractedFields, issueID *string) error {
	f.completed = &completedCall{id: id, fields: fields, issueID: issueID}
	return nil
}

func (f *fakeInvoices) FailProcessing(ctx context.Context, id string, message string) error {
	f.failedID = id
	f.failedMsg = message
	f.failedCtxErr = ctx.Err()
	f.failedCalls++
	return nil
}

type fakeIssues struct {
	issues []entity.Issue
	err    error
}

func (f *fakeIssues) List(_ context.Context) ([]entity.Issue, error) {
	return f.issues, f.err
}

func strPtr(s string) *string {
	return &s
}

func completeDocument() *docai.Document {
	return &docai.Document{
		Text: "Invoice for plumbing repair at Sunset Tower unit 12B, total $450.00",
		Entities: []docai.Entity{
			{Type: "building", MentionText: "Sunset Tower"},
			{Type: "unit", MentionText: "12B"},
			{Type: "line_item", Properties: []docai.Entity{
				{Type: "line_item/description", MentionText: "Plumbing repair"},
			}},
			{Type: "total_amount", MentionText: "$450.00"},
		},
	}
}

func testInvoice() *entity.Invoice {
	return &entity.Invoice{
		ID:       "inv-1",
		FilePath: "1700000000000_invoice.pdf",
		FileName: "invoice.pdf",
	}
}

func newTestOrchestrator(files *fakeFiles, proc *fakeProcessor, enr *fakeEnricher, m *fakeMatcher, inv *fakeInvoices, iss *fakeIssues) *Orchestrator {
	return NewOrchestrator(files, proc, enr, m, inv, iss, 30*time.Second, zap.NewNop())
}

func TestOrchestratorCompleteExtractionSkipsEnrichment(t *testing.T) {
	files := &fakeFiles{content: []byte("%PDF-1.4")}
	proc := &fakeProcessor{doc: completeDocument()}
	enr := &fakeEnricher{}
	matcher := &fakeMatcher{issueID: strPtr("issue-7")}
	invoices := &fakeInvoices{}
	issues := &fakeIssues{}

	o := newTestOrchestrator(files, proc, enr, matcher, invoices, issues)
	o.Process(context.Background(), testInvoice())

	assert.False(t, enr.called, "complete extraction should not trigger enrichment")
	assert.True(t, matcher.called)

	require.NotNil(t, invoices.completed)
	assert.Equal(t, "inv-1", invoices.completed.id)
	require.NotNil(t, invoices.completed.issueID)
	assert.Equal(t, "issue-7", *invoices.completed.issueID)

	fields := invoices.completed.fields
	require.NotNil(t, fields.Building)
	assert.Equal(t, "Sunset Tower", *fields.Building)
	require.NotNil(t, fields.Amount)
	assert.True(t, fields.Amount.Equal(decimal.RequireFromString("450.00")))

	assert.Zero(t, invoices.failedCalls)
	assert.Equal(t, []string{"1700000000000_invoice.pdf"}, files.paths)
}

func TestOrchestratorIncompleteExtractionRunsEnrichment(t *testing.T) {
	doc := &docai.Document{
		Text: "Handwritten invoice, hard to read",
		Entities: []docai.Entity{
			{Type: "building", MentionText: "Sunset Tower"},
		},
	}
	amount := decimal.RequireFromString("99.50")
	enriched := entity.ExtractedFields{
		Building:    strPtr("Sunset Tower"),
		Unit:        strPtr("3A"),
		Description: strPtr("Window repair"),
		Amount:      &amount,
	}

	files := &fakeFiles{content: []byte("%PDF-1.4")}
	proc := &fakeProcessor{doc: doc}
	enr := &fakeEnricher{fields: enriched}
	matcher := &fakeMatcher{}
	invoices := &fakeInvoices{}

	o := newTestOrchestrator(files, proc, enr, matcher, invoices, &fakeIssues{})
	o.Process(context.Background(), testInvoice())

	assert.True(t, enr.called)
	assert.Equal(t, doc.Text, enr.gotText)

	require.NotNil(t, invoices.completed)
	require.NotNil(t, invoices.completed.fields.Unit)
	assert.Equal(t, "3A", *invoices.completed.fields.Unit)
	assert.Nil(t, invoices.completed.issueID)
}

func TestOrchestratorReceiverAddressFillsLocation(t *testing.T) {
	doc := &docai.Document{
		Text: "invoice text",
		Entities: []docai.Entity{
			{Type: "receiver_address", MentionText: "500 Oak Ave Apt 9C\nPortland, OR 97201"},
			{Type: "line_item", Properties: []docai.Entity{
				{Type: "description", MentionText: "Roof patch"},
			}},
			{Type: "total_amount", MentionText: "$1,200.00"},
		},
	}

	matcher := &fakeMatcher{}
	invoices := &fakeInvoices{}
	o := newTestOrchestrator(&fakeFiles{content: []byte("x")}, &fakeProcessor{doc: doc}, &fakeEnricher{}, matcher, invoices, &fakeIssues{})
	o.Process(context.Background(), testInvoice())

	require.NotNil(t, invoices.completed)
	fields := invoices.completed.fields
	require.NotNil(t, fields.Building)
	assert.Equal(t, "500 Oak Ave", *fields.Building)
	require.NotNil(t, fields.Unit)
	assert.Equal(t, "9C", *fields.Unit)
}

func TestOrchestratorDownloadFailure(t *testing.T) {
	files := &fakeFiles{err: errors.New("disk gone")}
	proc := &fakeProcessor{doc: completeDocument()}
	invoices := &fakeInvoices{}

	o := newTestOrchestrator(files, proc, &fakeEnricher{}, &fakeMatcher{}, invoices, &fakeIssues{})
	o.Process(context.Background(), testInvoice())

	assert.Nil(t, invoices.completed)
	assert.Equal(t, 1, invoices.failedCalls)
	assert.Equal(t, "inv-1", invoices.failedID)
	assert.Contains(t, invoices.failedMsg, "download stage failed")
	assert.Contains(t, invoices.failedMsg, "disk gone")
	assert.Zero(t, proc.calls)
}

func TestOrchestratorDocumentServiceFailure(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("processor unavailable")}
	matcher := &fakeMatcher{}
	invoices := &fakeInvoices{}

	o := newTestOrchestrator(&fakeFiles{content: []byte("x")}, proc, &fakeEnricher{}, matcher, invoices, &fakeIssues{})
	o.Process(context.Background(), testInvoice())

	assert.Nil(t, invoices.completed, "no partial fields may be written on document failure")
	assert.Equal(t, 1, invoices.failedCalls)
	assert.Contains(t, invoices.failedMsg, "processor unavailable")
	assert.False(t, matcher.called)
}

func TestOrchestratorNilDocumentFails(t *testing.T) {
	proc := &fakeProcessor{doc: nil}
	invoices := &fakeInvoices{}

	o := newTestOrchestrator(&fakeFiles{content: []byte("x")}, proc, &fakeEnricher{}, &fakeMatcher{}, invoices, &fakeIssues{})
	o.Process(context.Background(), testInvoice())

	assert.Nil(t, invoices.completed)
	assert.Equal(t, 1, invoices.failedCalls)
	assert.Contains(t, invoices.failedMsg, ErrNoDocument.Error())
}

func TestOrchestratorEnrichmentTransportFailure(t *testing.T) {
	doc := &docai.Document{Text: "sparse", Entities: nil}
	enr := &fakeEnricher{err: errors.New("llm unreachable")}
	matcher := &fakeMatcher{}
	invoices := &fakeInvoices{}

	o := newTestOrchestrator(&fakeFiles{content: []byte("x")}, &fakeProcessor{doc: doc}, enr, matcher, invoices, &fakeIssues{})
	o.Process(context.Background(), testInvoice())

	assert.Nil(t, invoices.completed)
	assert.Equal(t, 1, invoices.failedCalls)
	assert.Contains(t, invoices.failedMsg, "enrich stage failed")
	assert.False(t, matcher.called)
}

func TestOrchestratorIssueListFailure(t *testing.T) {
	invoices := &fakeInvoices{}
	issues := &fakeIssues{err: errors.New("db locked")}

	o := newTestOrchestrator(&fakeFiles{content: []byte("x")}, &fakeProcessor{doc: completeDocument()}, &fakeEnricher{}, &fakeMatcher{}, invoices, issues)
	o.Process(context.Background(), testInvoice())

	assert.Nil(t, invoices.completed)
	assert.Equal(t, 1, invoices.failedCalls)
	assert.Contains(t, invoices.failedMsg, "match stage failed")
}

func TestOrchestratorMatcherFailure(t *testing.T) {
	matcher := &fakeMatcher{err: errors.New("ranking call failed")}
	invoices := &fakeInvoices{}

	o := newTestOrchestrator(&fakeFiles{content: []byte("x")}, &fakeProcessor{doc: completeDocument()}, &fakeEnricher{}, matcher, invoices, &fakeIssues{})
	o.Process(context.Background(), testInvoice())

	assert.Nil(t, invoices.completed)
	assert.Equal(t, 1, invoices.failedCalls)
	assert.Contains(t, invoices.failedMsg, "ranking call failed")
}

// blockingFiles holds Read open until the caller's context expires.
type blockingFiles struct{}

func (blockingFiles) Read(ctx context.Context, _ string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestOrchestratorRunTimeoutStillRecordsFailure(t *testing.T) {
	invoices := &fakeInvoices{}
	o := NewOrchestrator(blockingFiles{}, &fakeProcessor{}, &fakeEnricher{}, &fakeMatcher{}, invoices, &fakeIssues{}, 30*time.Second, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	o.Process(ctx, testInvoice())

	assert.Nil(t, invoices.completed)
	assert.Equal(t, 1, invoices.failedCalls)
	assert.Contains(t, invoices.failedMsg, "download stage failed")
	assert.Contains(t, invoices.failedMsg, "timeout")
	assert.NoError(t, invoices.failedCtxErr,
		"the failure write must not run on the expired run context")
}

func TestOrchestratorUnmatchedInvoiceStillCompletes(t *testing.T) {
	matcher := &fakeMatcher{issueID: nil}
	invoices := &fakeInvoices{}

	o := newTestOrchestrator(&fakeFiles{content: []byte("x")}, &fakeProcessor{doc: completeDocument()}, &fakeEnricher{}, matcher, invoices, &fakeIssues{})
	o.Process(context.Background(), testInvoice())

	require.NotNil(t, invoices.completed)
	assert.Nil(t, invoices.completed.issueID)
	assert.Zero(t, invoices.failedCalls)
}
