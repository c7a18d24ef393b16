package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/procurement/services/rfq/internal/audit"
	"example.com/procurement/services/rfq/internal/models"
)

// Repository provides data access for the award rollup and its surrounding
// actions. Services depend on this interface so the rollup can be exercised
// against mocks.
type Repository interface {
	// WithTransaction runs fn inside a database transaction. The repository
	// passed to fn routes all reads and writes through that transaction.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, txRepo Repository) error) error

	// AuditLogger returns an audit logger bound to this repository's
	// database handle, so audit entries share the caller's transaction.
	AuditLogger() audit.Logger

	// AcquireAwardLock takes a transaction-scoped advisory lock keyed on
	// the RFQ id. All award-state mutations for an RFQ serialize on it.
	// Only meaningful inside WithTransaction.
	AcquireAwardLock(ctx context.Context, rfqID uuid.UUID) error

	// RFQ operations
	FindRfqByID(ctx context.Context, id uuid.UUID) (*models.Rfq, error)
	SaveRfq(ctx context.Context, rfq *models.Rfq) error
	CountRfqItems(ctx context.Context, rfqID uuid.UUID) (int64, error)
	ListRfqItems(ctx context.Context, rfqID uuid.UUID) ([]models.RfqItem, error)
	ListProjectionDirtyRfqs(ctx context.Context, limit int) ([]models.Rfq, error)
	MarkRfqProjected(ctx context.Context, id uuid.UUID) error

	// Quote operations
	FindQuoteByID(ctx context.Context, id uuid.UUID) (*models.Quote, error)
	ListQuotesByRfq(ctx context.Context, rfqID uuid.UUID) ([]models.Quote, error)
	UpdateQuoteStatus(ctx context.Context, id uuid.UUID, status models.QuoteStatus) error

	// Quote item operations
	FindQuoteItemByID(ctx context.Context, id uuid.UUID) (*models.QuoteItem, error)
	ListQuoteItemsByRfqItem(ctx context.Context, rfqItemID uuid.UUID) ([]models.QuoteItem, error)
	UpdateQuoteItemStatus(ctx context.Context, id uuid.UUID, status models.QuoteItemStatus) error

	// Award operations
	CreateAward(ctx context.Context, award *models.RfqItemAward) error
	FindAwardByID(ctx context.Context, id uuid.UUID) (*models.RfqItemAward, error)
	FindActiveAwardByRfqItem(ctx context.Context, rfqItemID uuid.UUID) (*models.RfqItemAward, error)
	ListAwardsByRfq(ctx context.Context, rfqID uuid.UUID) ([]models.RfqItemAward, error)
	CountAwardedByRfq(ctx context.Context, rfqID uuid.UUID) (int64, error)
	UpdateAwardStatus(ctx context.Context, id uuid.UUID, status models.AwardStatus) error
	FindAwardSubmissionByKey(ctx context.Context, key uuid.UUID) (*models.AwardSubmission, error)
	CreateAwardSubmission(ctx context.Context, submission *models.AwardSubmission) error

	// Supplier and purchase order operations
	FindSupplierByID(ctx context.Context, id uuid.UUID) (*models.Supplier, error)
	CreatePurchaseOrder(ctx context.Context, po *models.PurchaseOrder) error
	PurchaseOrderExistsForRfq(ctx context.Context, rfqID uuid.UUID) (bool, error)
}

// gormRepository implements Repository using GORM with a write database and
// a read-only replica. Inside a transaction both handles point at the
// transaction so reads observe uncommitted writes.
type gormRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// New creates a new repository over the given write and read-only databases
func New(db *gorm.DB, readOnlyDB *gorm.DB) Repository {
	return &gormRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// WithTransaction runs fn inside a single GORM transaction
func (r *gormRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, txRepo Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &gormRepository{db: tx, readOnlyDB: tx})
	})
}

// AuditLogger returns an audit logger writing through this repository's handle
func (r *gormRepository) AuditLogger() audit.Logger {
	return audit.NewGormLogger(r.db)
}

// AcquireAwardLock serializes award-state mutations per RFQ with a
// transaction-scoped Postgres advisory lock
func (r *gormRepository) AcquireAwardLock(ctx context.Context, rfqID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", rfqID.String()).
		Error
	if err != nil {
		return errors.Wrap(err, "failed to acquire award advisory lock")
	}
	return nil
}

// FindRfqByID gets an RFQ by ID
func (r *gormRepository) FindRfqByID(ctx context.Context, id uuid.UUID) (*models.Rfq, error) {
	var rfq models.Rfq
	err := r.readOnlyDB.WithContext(ctx).First(&rfq, "id = ?", id).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get RFQ by ID")
	}
	return &rfq, nil
}

// SaveRfq persists the RFQ's derived state fields
func (r *gormRepository) SaveRfq(ctx context.Context, rfq *models.Rfq) error {
	err := r.db.WithContext(ctx).
		Model(&models.Rfq{}).
		Where("id = ?", rfq.ID).
		Updates(map[string]interface{}{
			"status":               rfq.Status,
			"is_partially_awarded": rfq.IsPartiallyAwarded,
			"version":              rfq.Version,
			"projection_dirty":     rfq.ProjectionDirty,
		}).Error
	if err != nil {
		return errors.Wrap(err, "failed to save RFQ")
	}
	return nil
}

// CountRfqItems counts the line items on an RFQ
func (r *gormRepository) CountRfqItems(ctx context.Context, rfqID uuid.UUID) (int64, error) {
	var count int64
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.RfqItem{}).
		Where("rfq_id = ?", rfqID).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to count RFQ items")
	}
	return count, nil
}

// ListRfqItems lists the line items on an RFQ ordered by line number
func (r *gormRepository) ListRfqItems(ctx context.Context, rfqID uuid.UUID) ([]models.RfqItem, error) {
	var items []models.RfqItem
	err := r.readOnlyDB.WithContext(ctx).
		Where("rfq_id = ?", rfqID).
		Order("line_number ASC").
		Find(&items).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list RFQ items")
	}
	return items, nil
}

// ListProjectionDirtyRfqs lists RFQs whose projection is stale
func (r *gormRepository) ListProjectionDirtyRfqs(ctx context.Context, limit int) ([]models.Rfq, error) {
	var rfqs []models.Rfq
	err := r.readOnlyDB.WithContext(ctx).
		Where("projection_dirty = ?", true).
		Limit(limit).
		Find(&rfqs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list projection-dirty RFQs")
	}
	return rfqs, nil
}

// MarkRfqProjected clears the projection-dirty flag
func (r *gormRepository) MarkRfqProjected(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.Rfq{}).
		Where("id = ?", id).
		Update("projection_dirty", false)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to mark RFQ as projected")
	}
	return nil
}

// FindQuoteByID gets a quote by ID
func (r *gormRepository) FindQuoteByID(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	var quote models.Quote
	err := r.readOnlyDB.WithContext(ctx).First(&quote, "id = ?", id).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get quote by ID")
	}
	return &quote, nil
}

// ListQuotesByRfq loads every non-withdrawn quote for the RFQ together with
// its items. Withdrawn quotes are terminal and excluded at the source.
func (r *gormRepository) ListQuotesByRfq(ctx context.Context, rfqID uuid.UUID) ([]models.Quote, error) {
	var quotes []models.Quote
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Items").
		Where("rfq_id = ? AND status <> ?", rfqID, models.QuoteStatusWithdrawn).
		Find(&quotes).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list quotes for RFQ")
	}
	return quotes, nil
}

// UpdateQuoteStatus persists a new quote status
func (r *gormRepository) UpdateQuoteStatus(ctx context.Context, id uuid.UUID, status models.QuoteStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.Quote{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update quote status")
	}
	if result.RowsAffected == 0 {
		return errors.New("no quote updated")
	}
	return nil
}

// FindQuoteItemByID gets a quote item by ID
func (r *gormRepository) FindQuoteItemByID(ctx context.Context, id uuid.UUID) (*models.QuoteItem, error) {
	var item models.QuoteItem
	err := r.readOnlyDB.WithContext(ctx).First(&item, "id = ?", id).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get quote item by ID")
	}
	return &item, nil
}

// ListQuoteItemsByRfqItem lists all supplier bids against one RFQ line
func (r *gormRepository) ListQuoteItemsByRfqItem(ctx context.Context, rfqItemID uuid.UUID) ([]models.QuoteItem, error) {
	var items []models.QuoteItem
	err := r.readOnlyDB.WithContext(ctx).
		Where("rfq_item_id = ?", rfqItemID).
		Find(&items).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list quote items for RFQ item")
	}
	return items, nil
}

// UpdateQuoteItemStatus persists a new quote item status
func (r *gormRepository) UpdateQuoteItemStatus(ctx context.Context, id uuid.UUID, status models.QuoteItemStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.QuoteItem{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update quote item status")
	}
	if result.RowsAffected == 0 {
		return errors.New("no quote item updated")
	}
	return nil
}

// CreateAward creates a new award record
func (r *gormRepository) CreateAward(ctx context.Context, award *models.RfqItemAward) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(award).Error, "failed to create award")
}

// FindAwardByID gets an award by ID
func (r *gormRepository) FindAwardByID(ctx context.Context, id uuid.UUID) (*models.RfqItemAward, error) {
	var award models.RfqItemAward
	err := r.readOnlyDB.WithContext(ctx).First(&award, "id = ?", id).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get award by ID")
	}
	return &award, nil
}

// FindActiveAwardByRfqItem gets the non-cancelled award for an RFQ line,
// or nil when the line has none
func (r *gormRepository) FindActiveAwardByRfqItem(ctx context.Context, rfqItemID uuid.UUID) (*models.RfqItemAward, error) {
	var award models.RfqItemAward
	err := r.readOnlyDB.WithContext(ctx).
		Where("rfq_item_id = ? AND status <> ?", rfqItemID, models.AwardStatusCancelled).
		First(&award).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get active award for RFQ item")
	}
	return &award, nil
}

// ListAwardsByRfq lists all award records for an RFQ
func (r *gormRepository) ListAwardsByRfq(ctx context.Context, rfqID uuid.UUID) ([]models.RfqItemAward, error) {
	var awards []models.RfqItemAward
	err := r.readOnlyDB.WithContext(ctx).
		Where("rfq_id = ?", rfqID).
		Find(&awards).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list awards for RFQ")
	}
	return awards, nil
}

// CountAwardedByRfq counts awards in status Awarded for an RFQ
func (r *gormRepository) CountAwardedByRfq(ctx context.Context, rfqID uuid.UUID) (int64, error) {
	var count int64
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.RfqItemAward{}).
		Where("rfq_id = ? AND status = ?", rfqID, models.AwardStatusAwarded).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to count awarded records")
	}
	return count, nil
}

// UpdateAwardStatus persists a new award status
func (r *gormRepository) UpdateAwardStatus(ctx context.Context, id uuid.UUID, status models.AwardStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.RfqItemAward{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update award status")
	}
	if result.RowsAffected == 0 {
		return errors.New("no award updated")
	}
	return nil
}

// FindAwardSubmissionByKey gets the processed submission for an idempotency
// key, or nil when the key has not been seen
func (r *gormRepository) FindAwardSubmissionByKey(ctx context.Context, key uuid.UUID) (*models.AwardSubmission, error) {
	var submission models.AwardSubmission
	err := r.readOnlyDB.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&submission).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get award submission by key")
	}
	return &submission, nil
}

// CreateAwardSubmission records a processed submission
func (r *gormRepository) CreateAwardSubmission(ctx context.Context, submission *models.AwardSubmission) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(submission).Error, "failed to create award submission")
}

// FindSupplierByID gets a supplier by ID
func (r *gormRepository) FindSupplierByID(ctx context.Context, id uuid.UUID) (*models.Supplier, error) {
	var supplier models.Supplier
	err := r.readOnlyDB.WithContext(ctx).First(&supplier, "id = ?", id).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get supplier by ID")
	}
	return &supplier, nil
}

// CreatePurchaseOrder creates a purchase order together with its items
func (r *gormRepository) CreatePurchaseOrder(ctx context.Context, po *models.PurchaseOrder) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(po).Error, "failed to create purchase order")
}

// PurchaseOrderExistsForRfq reports whether any purchase order has been
// generated for the RFQ
func (r *gormRepository) PurchaseOrderExistsForRfq(ctx context.Context, rfqID uuid.UUID) (bool, error) {
	var count int64
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.PurchaseOrder{}).
		Where("rfq_id = ?", rfqID).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to check purchase orders for RFQ")
	}
	return count > 0, nil
}
