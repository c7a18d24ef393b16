package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/procurement/services/rfq/config"
	"example.com/procurement/services/rfq/internal/audit"
	"example.com/procurement/services/rfq/internal/metrics"
	"example.com/procurement/services/rfq/internal/models"
	"example.com/procurement/services/rfq/internal/repositories"
	"example.com/procurement/services/rfq/internal/tracing"
)

// recordingAudit captures audit entries in memory
type auditEntry struct {
	entityType string
	action     string
	entityID   uuid.UUID
	before     audit.Fields
	after      audit.Fields
}

type recordingAudit struct {
	entries []auditEntry
}

func (a *recordingAudit) Created(ctx context.Context, actor audit.Actor, entityType string, entityID uuid.UUID, after audit.Fields) error {
	a.entries = append(a.entries, auditEntry{entityType: entityType, action: audit.ActionCreated, entityID: entityID, after: after})
	return nil
}

func (a *recordingAudit) Updated(ctx context.Context, actor audit.Actor, entityType string, entityID uuid.UUID, before, after audit.Fields) error {
	a.entries = append(a.entries, auditEntry{entityType: entityType, action: audit.ActionUpdated, entityID: entityID, before: before, after: after})
	return nil
}

func (a *recordingAudit) Deleted(ctx context.Context, actor audit.Actor, entityType string, entityID uuid.UUID, before audit.Fields) error {
	a.entries = append(a.entries, auditEntry{entityType: entityType, action: audit.ActionDeleted, entityID: entityID, before: before})
	return nil
}

func (a *recordingAudit) entriesFor(entityType string) []auditEntry {
	var out []auditEntry
	for _, e := range a.entries {
		if e.entityType == entityType {
			out = append(out, e)
		}
	}
	return out
}

// memRepo is an in-memory repository. Transactions are pass-through; the
// rollup's behavior under test does not depend on isolation.
type memRepo struct {
	rfq            *models.Rfq
	rfqItems       []models.RfqItem
	suppliers      []*models.Supplier
	quotes         []*models.Quote
	quoteItems     []*models.QuoteItem
	awards         []*models.RfqItemAward
	submissions    []*models.AwardSubmission
	purchaseOrders []*models.PurchaseOrder
	auditor        *recordingAudit
	lockCalls      int
}

func (r *memRepo) WithTransaction(ctx context.Context, fn func(ctx context.Context, txRepo repositories.Repository) error) error {
	return fn(ctx, r)
}

func (r *memRepo) AuditLogger() audit.Logger { return r.auditor }

func (r *memRepo) AcquireAwardLock(ctx context.Context, rfqID uuid.UUID) error {
	r.lockCalls++
	return nil
}

func (r *memRepo) FindRfqByID(ctx context.Context, id uuid.UUID) (*models.Rfq, error) {
	if r.rfq != nil && r.rfq.ID == id {
		return r.rfq, nil
	}
	return nil, errors.New("RFQ not found")
}

func (r *memRepo) SaveRfq(ctx context.Context, rfq *models.Rfq) error {
	r.rfq.Status = rfq.Status
	r.rfq.IsPartiallyAwarded = rfq.IsPartiallyAwarded
	r.rfq.Version = rfq.Version
	r.rfq.ProjectionDirty = rfq.ProjectionDirty
	return nil
}

func (r *memRepo) CountRfqItems(ctx context.Context, rfqID uuid.UUID) (int64, error) {
	return int64(len(r.rfqItems)), nil
}

func (r *memRepo) ListRfqItems(ctx context.Context, rfqID uuid.UUID) ([]models.RfqItem, error) {
	return r.rfqItems, nil
}

func (r *memRepo) ListProjectionDirtyRfqs(ctx context.Context, limit int) ([]models.Rfq, error) {
	if r.rfq != nil && r.rfq.ProjectionDirty {
		return []models.Rfq{*r.rfq}, nil
	}
	return nil, nil
}

func (r *memRepo) MarkRfqProjected(ctx context.Context, id uuid.UUID) error {
	r.rfq.ProjectionDirty = false
	return nil
}

func (r *memRepo) FindQuoteByID(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	for _, q := range r.quotes {
		if q.ID == id {
			return q, nil
		}
	}
	return nil, errors.New("quote not found")
}

func (r *memRepo) ListQuotesByRfq(ctx context.Context, rfqID uuid.UUID) ([]models.Quote, error) {
	var out []models.Quote
	for _, q := range r.quotes {
		if q.RfqID != rfqID || q.Status == models.QuoteStatusWithdrawn {
			continue
		}
		quote := *q
		quote.Items = nil
		for _, item := range r.quoteItems {
			if item.QuoteID == q.ID {
				quote.Items = append(quote.Items, *item)
			}
		}
		out = append(out, quote)
	}
	return out, nil
}

func (r *memRepo) UpdateQuoteStatus(ctx context.Context, id uuid.UUID, status models.QuoteStatus) error {
	for _, q := range r.quotes {
		if q.ID == id {
			q.Status = status
			return nil
		}
	}
	return errors.New("quote not found")
}

func (r *memRepo) FindQuoteItemByID(ctx context.Context, id uuid.UUID) (*models.QuoteItem, error) {
	for _, item := range r.quoteItems {
		if item.ID == id {
			return item, nil
		}
	}
	return nil, errors.New("quote item not found")
}

func (r *memRepo) ListQuoteItemsByRfqItem(ctx context.Context, rfqItemID uuid.UUID) ([]models.QuoteItem, error) {
	var out []models.QuoteItem
	for _, item := range r.quoteItems {
		if item.RfqItemID == rfqItemID {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (r *memRepo) UpdateQuoteItemStatus(ctx context.Context, id uuid.UUID, status models.QuoteItemStatus) error {
	for _, item := range r.quoteItems {
		if item.ID == id {
			item.Status = status
			return nil
		}
	}
	return errors.New("quote item not found")
}

func (r *memRepo) CreateAward(ctx context.Context, award *models.RfqItemAward) error {
	r.awards = append(r.awards, award)
	return nil
}

func (r *memRepo) FindAwardByID(ctx context.Context, id uuid.UUID) (*models.RfqItemAward, error) {
	for _, a := range r.awards {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, errors.New("award not found")
}

func (r *memRepo) FindActiveAwardByRfqItem(ctx context.Context, rfqItemID uuid.UUID) (*models.RfqItemAward, error) {
	for _, a := range r.awards {
		if a.RfqItemID == rfqItemID && a.Status != models.AwardStatusCancelled {
			return a, nil
		}
	}
	return nil, nil
}

func (r *memRepo) ListAwardsByRfq(ctx context.Context, rfqID uuid.UUID) ([]models.RfqItemAward, error) {
	var out []models.RfqItemAward
	for _, a := range r.awards {
		if a.RfqID == rfqID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memRepo) CountAwardedByRfq(ctx context.Context, rfqID uuid.UUID) (int64, error) {
	var count int64
	for _, a := range r.awards {
		if a.RfqID == rfqID && a.Status == models.AwardStatusAwarded {
			count++
		}
	}
	return count, nil
}

func (r *memRepo) UpdateAwardStatus(ctx context.Context, id uuid.UUID, status models.AwardStatus) error {
	for _, a := range r.awards {
		if a.ID == id {
			a.Status = status
			return nil
		}
	}
	return errors.New("award not found")
}

func (r *memRepo) FindAwardSubmissionByKey(ctx context.Context, key uuid.UUID) (*models.AwardSubmission, error) {
	for _, s := range r.submissions {
		if s.IdempotencyKey == key {
			return s, nil
		}
	}
	return nil, nil
}

func (r *memRepo) CreateAwardSubmission(ctx context.Context, submission *models.AwardSubmission) error {
	r.submissions = append(r.submissions, submission)
	return nil
}

func (r *memRepo) FindSupplierByID(ctx context.Context, id uuid.UUID) (*models.Supplier, error) {
	for _, s := range r.suppliers {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, errors.New("supplier not found")
}

func (r *memRepo) CreatePurchaseOrder(ctx context.Context, po *models.PurchaseOrder) error {
	r.purchaseOrders = append(r.purchaseOrders, po)
	return nil
}

func (r *memRepo) PurchaseOrderExistsForRfq(ctx context.Context, rfqID uuid.UUID) (bool, error) {
	return len(r.purchaseOrders) > 0, nil
}

// mockPublisher records published events
type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) SendMessage(ctx context.Context, eventType string, body interface{}) error {
	args := m.Called(ctx, eventType, body)
	return args.Error(0)
}

// fixture is a two-line RFQ with two competing quotes, every item pending
type fixture struct {
	repo   *memRepo
	rfq    *models.Rfq
	item1  *models.RfqItem
	item2  *models.RfqItem
	quoteA *models.Quote
	quoteB *models.Quote
	qa1    *models.QuoteItem // quote A bid on item 1, 10.00 USD
	qa2    *models.QuoteItem // quote A bid on item 2, 20.00 USD
	qb1    *models.QuoteItem // quote B bid on item 1, 9.00 USD
	qb2    *models.QuoteItem // quote B bid on item 2, 21.00 USD
}

func newFixture() *fixture {
	rfq := &models.Rfq{
		ID:        uuid.New(),
		Reference: "RFQ-1001",
		Title:     "Workshop consumables",
		Status:    models.RfqStatusOpen,
		Currency:  "USD",
	}
	item1 := &models.RfqItem{ID: uuid.New(), RfqID: rfq.ID, LineNumber: 1, Description: "Nitrile gloves", Quantity: 10}
	item2 := &models.RfqItem{ID: uuid.New(), RfqID: rfq.ID, LineNumber: 2, Description: "Safety glasses", Quantity: 5}

	supplierA := &models.Supplier{ID: uuid.New(), Name: "Acme Supplies"}
	supplierB := &models.Supplier{ID: uuid.New(), Name: "Borealis Trading"}

	quoteA := &models.Quote{ID: uuid.New(), RfqID: rfq.ID, SupplierID: supplierA.ID, Status: models.QuoteStatusSubmitted, Currency: "USD"}
	quoteB := &models.Quote{ID: uuid.New(), RfqID: rfq.ID, SupplierID: supplierB.ID, Status: models.QuoteStatusSubmitted, Currency: "USD"}

	qa1 := &models.QuoteItem{ID: uuid.New(), QuoteID: quoteA.ID, RfqItemID: item1.ID, Status: models.QuoteItemStatusPending, UnitPriceMinor: 1000, Currency: "USD"}
	qa2 := &models.QuoteItem{ID: uuid.New(), QuoteID: quoteA.ID, RfqItemID: item2.ID, Status: models.QuoteItemStatusPending, UnitPriceMinor: 2000, Currency: "USD"}
	qb1 := &models.QuoteItem{ID: uuid.New(), QuoteID: quoteB.ID, RfqItemID: item1.ID, Status: models.QuoteItemStatusPending, UnitPriceMinor: 900, Currency: "USD"}
	qb2 := &models.QuoteItem{ID: uuid.New(), QuoteID: quoteB.ID, RfqItemID: item2.ID, Status: models.QuoteItemStatusPending, UnitPriceMinor: 2100, Currency: "USD"}

	repo := &memRepo{
		rfq:        rfq,
		rfqItems:   []models.RfqItem{*item1, *item2},
		suppliers:  []*models.Supplier{supplierA, supplierB},
		quotes:     []*models.Quote{quoteA, quoteB},
		quoteItems: []*models.QuoteItem{qa1, qa2, qb1, qb2},
		auditor:    &recordingAudit{},
	}

	return &fixture{
		repo: repo, rfq: rfq, item1: item1, item2: item2,
		quoteA: quoteA, quoteB: quoteB,
		qa1: qa1, qa2: qa2, qb1: qb1, qb2: qb2,
	}
}

func newTestService(repo repositories.Repository, publisher EventPublisher) *AwardService {
	tracer, _ := tracing.NewTracer(config.TracingConfig{})
	metricsCollector := metrics.NewMetrics()
	projector := NewProjector(repo, nil, nil, metricsCollector)
	return NewAwardService(repo, nil, projector, publisher, metricsCollector, tracer)
}

func TestSubmitAwardsPartial(t *testing.T) {
	f := newFixture()
	service := newTestService(f.repo, nil)

	rfq, err := service.SubmitAwards(context.Background(), audit.SystemActor(), &models.AwardPayload{
		RfqID: f.rfq.ID,
		Decisions: []models.AwardDecision{
			{RfqItemID: f.item1.ID, QuoteItemID: f.qb1.ID, Quantity: 10},
		},
	})
	require.NoError(t, err)

	require.Equal(t, models.RfqStatusOpen, rfq.Status)
	require.True(t, rfq.IsPartiallyAwarded)
	require.Equal(t, int64(1), rfq.Version)

	// Winner awarded, competitor on the same line lost, other lines untouched.
	require.Equal(t, models.QuoteItemStatusAwarded, f.qb1.Status)
	require.Equal(t, models.QuoteItemStatusLost, f.qa1.Status)
	require.Equal(t, models.QuoteItemStatusPending, f.qa2.Status)
	require.Equal(t, models.QuoteItemStatusPending, f.qb2.Status)

	// Winner's quote rolls up to awarded; the other still has a live bid.
	require.Equal(t, models.QuoteStatusAwarded, f.quoteB.Status)
	require.Equal(t, models.QuoteStatusSubmitted, f.quoteA.Status)

	require.Equal(t, 1, f.repo.lockCalls)
	require.Len(t, f.repo.auditor.entriesFor("rfq_item_award"), 1)
	require.Len(t, f.repo.auditor.entriesFor("quote_item"), 2)
	require.Len(t, f.repo.auditor.entriesFor("quote"), 1)
	require.Len(t, f.repo.auditor.entriesFor("rfq"), 1)
}

func TestSubmitAwardsFullGeneratesPurchaseOrders(t *testing.T) {
	f := newFixture()
	service := newTestService(f.repo, nil)

	rfq, err := service.SubmitAwards(context.Background(), audit.SystemActor(), &models.AwardPayload{
		RfqID: f.rfq.ID,
		Decisions: []models.AwardDecision{
			{RfqItemID: f.item1.ID, QuoteItemID: f.qb1.ID, Quantity: 10},
			{RfqItemID: f.item2.ID, QuoteItemID: f.qa2.ID, Quantity: 5},
		},
	})
	require.NoError(t, err)

	require.Equal(t, models.RfqStatusAwarded, rfq.Status)
	require.False(t, rfq.IsPartiallyAwarded)
	require.Equal(t, int64(1), rfq.Version)
	require.Equal(t, models.QuoteStatusAwarded, f.quoteA.Status)
	require.Equal(t, models.QuoteStatusAwarded, f.quoteB.Status)

	// One draft PO per winning supplier, totals from unit price x quantity.
	require.Len(t, f.repo.purchaseOrders, 2)
	poByQuote := make(map[uuid.UUID]*models.PurchaseOrder)
	for _, po := range f.repo.purchaseOrders {
		require.Equal(t, models.PurchaseOrderStatusDraft, po.Status)
		require.Equal(t, "USD", po.Currency)
		require.Len(t, po.Items, 1)
		poByQuote[po.Items[0].QuoteItemID] = po
	}
	require.Equal(t, int64(9000), poByQuote[f.qb1.ID].TotalMinor)
	require.Equal(t, int64(10000), poByQuote[f.qa2.ID].TotalMinor)
}

func TestSubmitAwardsResubmissionIsIdempotent(t *testing.T) {
	f := newFixture()
	service := newTestService(f.repo, nil)

	payload := &models.AwardPayload{
		RfqID: f.rfq.ID,
		Decisions: []models.AwardDecision{
			{RfqItemID: f.item1.ID, QuoteItemID: f.qb1.ID, Quantity: 10},
		},
	}

	_, err := service.SubmitAwards(context.Background(), audit.SystemActor(), payload)
	require.NoError(t, err)
	itemAudits := len(f.repo.auditor.entriesFor("quote_item"))

	rfq, err := service.SubmitAwards(context.Background(), audit.SystemActor(), payload)
	require.NoError(t, err)

	// No second award, no new item or quote changes, no new audit entries
	// for them. The version still bumps: a rollup ran.
	require.Len(t, f.repo.awards, 1)
	require.Len(t, f.repo.auditor.entriesFor("quote_item"), itemAudits)
	require.Len(t, f.repo.auditor.entriesFor("rfq"), 2)
	require.Equal(t, int64(2), rfq.Version)
}

func TestSubmitAwardsRejectsConflictingDecision(t *testing.T) {
	f := newFixture()
	service := newTestService(f.repo, nil)

	_, err := service.SubmitAwards(context.Background(), audit.SystemActor(), &models.AwardPayload{
		RfqID: f.rfq.ID,
		Decisions: []models.AwardDecision{
			{RfqItemID: f.item1.ID, QuoteItemID: f.qb1.ID, Quantity: 10},
		},
	})
	require.NoError(t, err)

	_, err = service.SubmitAwards(context.Background(), audit.SystemActor(), &models.AwardPayload{
		RfqID: f.rfq.ID,
		Decisions: []models.AwardDecision{
			{RfqItemID: f.item1.ID, QuoteItemID: f.qa1.ID, Quantity: 10},
		},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "already awarded")
}

func TestSubmitAwardsRejectsMismatchedLine(t *testing.T) {
	f := newFixture()
	service := newTestService(f.repo, nil)

	_, err := service.SubmitAwards(context.Background(), audit.SystemActor(), &models.AwardPayload{
		RfqID: f.rfq.ID,
		Decisions: []models.AwardDecision{
			{RfqItemID: f.item1.ID, QuoteItemID: f.qa2.ID, Quantity: 10},
		},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not bid")
}

func TestCancelAwardRevertsRfqToOpen(t *testing.T) {
	f := newFixture()
	service := newTestService(f.repo, nil)

	_, err := service.SubmitAwards(context.Background(), audit.SystemActor(), &models.AwardPayload{
		RfqID: f.rfq.ID,
		Decisions: []models.AwardDecision{
			{RfqItemID: f.item1.ID, QuoteItemID: f.qb1.ID, Quantity: 10},
			{RfqItemID: f.item2.ID, QuoteItemID: f.qa2.ID, Quantity: 5},
		},
	})
	require.NoError(t, err)
	require.Equal(t, models.RfqStatusAwarded, f.rfq.Status)

	var awardForItem1 *models.RfqItemAward
	for _, a := range f.repo.awards {
		if a.RfqItemID == f.item1.ID {
			awardForItem1 = a
		}
	}
	require.NotNil(t, awardForItem1)

	rfq, err := service.CancelAward(context.Background(), audit.SystemActor(), awardForItem1.ID)
	require.NoError(t, err)

	require.Equal(t, models.AwardStatusCancelled, awardForItem1.Status)
	require.Equal(t, models.QuoteItemStatusPending, f.qb1.Status)
	// Competitors stay lost; only the winner's line reopens.
	require.Equal(t, models.QuoteItemStatusLost, f.qa1.Status)

	require.Equal(t, models.RfqStatusOpen, rfq.Status)
	require.True(t, rfq.IsPartiallyAwarded)
	require.Equal(t, int64(2), rfq.Version)

	// Quote B lost its only awarded line but still has a live bid.
	require.Equal(t, models.QuoteStatusSubmitted, f.quoteB.Status)
	require.Equal(t, models.QuoteStatusAwarded, f.quoteA.Status)
}

func TestCancelAwardTwiceIsNoOp(t *testing.T) {
	f := newFixture()
	service := newTestService(f.repo, nil)

	_, err := service.SubmitAwards(context.Background(), audit.SystemActor(), &models.AwardPayload{
		RfqID: f.rfq.ID,
		Decisions: []models.AwardDecision{
			{RfqItemID: f.item1.ID, QuoteItemID: f.qb1.ID, Quantity: 10},
		},
	})
	require.NoError(t, err)

	awardID := f.repo.awards[0].ID
	rfq, err := service.CancelAward(context.Background(), audit.SystemActor(), awardID)
	require.NoError(t, err)
	versionAfterCancel := rfq.Version

	rfq, err = service.CancelAward(context.Background(), audit.SystemActor(), awardID)
	require.NoError(t, err)
	require.Equal(t, versionAfterCancel, rfq.Version)
}

func TestUpdateQuoteItemStatusNoOpWritesNothing(t *testing.T) {
	f := newFixture()
	service := newTestService(f.repo, nil)

	err := service.UpdateQuoteItemStatus(context.Background(), f.repo, f.repo.auditor, audit.SystemActor(), f.qa1, models.QuoteItemStatusPending)
	require.NoError(t, err)
	require.Empty(t, f.repo.auditor.entries)
}

func TestRefreshQuoteStatusesSkipsWithdrawn(t *testing.T) {
	f := newFixture()
	service := newTestService(f.repo, nil)

	f.quoteB.Status = models.QuoteStatusWithdrawn
	f.qb1.Status = models.QuoteItemStatusAwarded

	err := service.RefreshQuoteStatuses(context.Background(), f.repo, f.repo.auditor, audit.SystemActor(), f.rfq)
	require.NoError(t, err)

	require.Equal(t, models.QuoteStatusWithdrawn, f.quoteB.Status)
	require.Empty(t, f.repo.auditor.entriesFor("quote"))
}

func TestRefreshQuoteStatusesIsIdempotent(t *testing.T) {
	f := newFixture()
	service := newTestService(f.repo, nil)

	f.qa1.Status = models.QuoteItemStatusAwarded
	err := service.RefreshQuoteStatuses(context.Background(), f.repo, f.repo.auditor, audit.SystemActor(), f.rfq)
	require.NoError(t, err)
	require.Equal(t, models.QuoteStatusAwarded, f.quoteA.Status)
	require.Len(t, f.repo.auditor.entriesFor("quote"), 1)

	err = service.RefreshQuoteStatuses(context.Background(), f.repo, f.repo.auditor, audit.SystemActor(), f.rfq)
	require.NoError(t, err)
	require.Len(t, f.repo.auditor.entriesFor("quote"), 1)
}

func TestRefreshQuoteStatusesRollsUpToLost(t *testing.T) {
	f := newFixture()
	service := newTestService(f.repo, nil)

	// No awarded lines and no live bids left: the quote has lost.
	f.qa1.Status = models.QuoteItemStatusLost
	f.qa2.Status = models.QuoteItemStatusLost

	err := service.RefreshQuoteStatuses(context.Background(), f.repo, f.repo.auditor, audit.SystemActor(), f.rfq)
	require.NoError(t, err)

	require.Equal(t, models.QuoteStatusLost, f.quoteA.Status)
	require.Equal(t, models.QuoteStatusSubmitted, f.quoteB.Status)

	quoteAudits := f.repo.auditor.entriesFor("quote")
	require.Len(t, quoteAudits, 1)
	require.Equal(t, f.quoteA.ID, quoteAudits[0].entityID)
	require.Equal(t, models.QuoteStatusSubmitted, quoteAudits[0].before["status"])
	require.Equal(t, models.QuoteStatusLost, quoteAudits[0].after["status"])
}

func TestSubmitAwardsReplaysByIdempotencyKey(t *testing.T) {
	f := newFixture()
	service := newTestService(f.repo, nil)

	payload := &models.AwardPayload{
		RfqID: f.rfq.ID,
		Decisions: []models.AwardDecision{
			{RfqItemID: f.item1.ID, QuoteItemID: f.qb1.ID, Quantity: 10},
		},
		IdempotencyKey: uuid.New(),
	}

	rfq, err := service.SubmitAwards(context.Background(), audit.SystemActor(), payload)
	require.NoError(t, err)
	require.Equal(t, int64(1), rfq.Version)
	require.Len(t, f.repo.submissions, 1)

	// The retry replays the stored outcome: no new rollup, no version
	// bump, no new audit entries.
	rfq, err = service.SubmitAwards(context.Background(), audit.SystemActor(), payload)
	require.NoError(t, err)
	require.Equal(t, int64(1), rfq.Version)
	require.Len(t, f.repo.awards, 1)
	require.Len(t, f.repo.submissions, 1)
	require.Len(t, f.repo.auditor.entriesFor("rfq"), 1)

	// A different key is a new submission and rolls up again.
	payload.IdempotencyKey = uuid.New()
	rfq, err = service.SubmitAwards(context.Background(), audit.SystemActor(), payload)
	require.NoError(t, err)
	require.Equal(t, int64(2), rfq.Version)
	require.Len(t, f.repo.submissions, 2)
}

func TestRefreshRfqStateAlwaysBumpsVersion(t *testing.T) {
	f := newFixture()
	service := newTestService(f.repo, nil)

	err := service.RefreshRfqState(context.Background(), f.repo, f.repo.auditor, audit.SystemActor(), f.rfq)
	require.NoError(t, err)
	require.Equal(t, int64(1), f.rfq.Version)
	require.Equal(t, models.RfqStatusOpen, f.rfq.Status)

	err = service.RefreshRfqState(context.Background(), f.repo, f.repo.auditor, audit.SystemActor(), f.rfq)
	require.NoError(t, err)
	require.Equal(t, int64(2), f.rfq.Version)
	require.Len(t, f.repo.auditor.entriesFor("rfq"), 2)
}

func TestRefreshRfqStateToleratesOverAward(t *testing.T) {
	f := newFixture()
	service := newTestService(f.repo, nil)

	// Three awarded records against a two-line RFQ. Corrupt data is
	// absorbed and reported as fully awarded, not rejected.
	for _, qi := range []*models.QuoteItem{f.qa1, f.qa2, f.qb1} {
		f.repo.awards = append(f.repo.awards, &models.RfqItemAward{
			ID: uuid.New(), RfqID: f.rfq.ID, RfqItemID: qi.RfqItemID,
			QuoteID: qi.QuoteID, QuoteItemID: qi.ID, Quantity: 1,
			Status: models.AwardStatusAwarded,
		})
	}

	err := service.RefreshRfqState(context.Background(), f.repo, f.repo.auditor, audit.SystemActor(), f.rfq)
	require.NoError(t, err)
	require.Equal(t, models.RfqStatusAwarded, f.rfq.Status)
	require.False(t, f.rfq.IsPartiallyAwarded)
}

func TestRefreshRfqStateZeroAwardsRevertsAwarded(t *testing.T) {
	f := newFixture()
	service := newTestService(f.repo, nil)

	f.rfq.Status = models.RfqStatusAwarded
	f.rfq.IsPartiallyAwarded = true

	err := service.RefreshRfqState(context.Background(), f.repo, f.repo.auditor, audit.SystemActor(), f.rfq)
	require.NoError(t, err)
	require.Equal(t, models.RfqStatusOpen, f.rfq.Status)
	require.False(t, f.rfq.IsPartiallyAwarded)
}

func TestSubmitAwardsPublishesStateChange(t *testing.T) {
	f := newFixture()
	publisher := new(mockPublisher)
	publisher.On("SendMessage", mock.Anything, RfqAwardStateChanged, mock.AnythingOfType("services.AwardStateChangedEvent")).Return(nil)

	service := newTestService(f.repo, publisher)

	_, err := service.SubmitAwards(context.Background(), audit.SystemActor(), &models.AwardPayload{
		RfqID: f.rfq.ID,
		Decisions: []models.AwardDecision{
			{RfqItemID: f.item1.ID, QuoteItemID: f.qb1.ID, Quantity: 10},
		},
	})
	require.NoError(t, err)
	publisher.AssertExpectations(t)
}

func TestSubmitAwardsValidatesPayload(t *testing.T) {
	f := newFixture()
	service := newTestService(f.repo, nil)

	_, err := service.SubmitAwards(context.Background(), audit.SystemActor(), &models.AwardPayload{RfqID: f.rfq.ID})
	require.Error(t, err)

	_, err = service.SubmitAwards(context.Background(), audit.SystemActor(), &models.AwardPayload{
		RfqID: f.rfq.ID,
		Decisions: []models.AwardDecision{
			{RfqItemID: f.item1.ID, QuoteItemID: f.qb1.ID, Quantity: 0},
		},
	})
	require.Error(t, err)
}
