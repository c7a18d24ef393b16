package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// RfqStatus is the lifecycle status of an RFQ
type RfqStatus string

// RFQ statuses
const (
	RfqStatusDraft   RfqStatus = "draft"
	RfqStatusOpen    RfqStatus = "open"
	RfqStatusAwarded RfqStatus = "awarded"
	RfqStatusClosed  RfqStatus = "closed"
)

// QuoteStatus is the lifecycle status of a supplier quote.
// Withdrawn is terminal and is never overwritten by the rollup.
type QuoteStatus string

// Quote statuses
const (
	QuoteStatusDraft     QuoteStatus = "draft"
	QuoteStatusSubmitted QuoteStatus = "submitted"
	QuoteStatusAwarded   QuoteStatus = "awarded"
	QuoteStatusLost      QuoteStatus = "lost"
	QuoteStatusWithdrawn QuoteStatus = "withdrawn"
)

// QuoteItemStatus is the status of a single quoted line
type QuoteItemStatus string

// Quote item statuses
const (
	QuoteItemStatusPending QuoteItemStatus = "pending"
	QuoteItemStatusAwarded QuoteItemStatus = "awarded"
	QuoteItemStatusLost    QuoteItemStatus = "lost"
)

// AwardStatus is the status of an award record
type AwardStatus string

// Award statuses
const (
	AwardStatusDraft     AwardStatus = "Draft"
	AwardStatusAwarded   AwardStatus = "Awarded"
	AwardStatusCancelled AwardStatus = "Cancelled"
)

// PurchaseOrderStatus is the lifecycle status of a purchase order
type PurchaseOrderStatus string

// Purchase order statuses
const (
	PurchaseOrderStatusDraft  PurchaseOrderStatus = "draft"
	PurchaseOrderStatusIssued PurchaseOrderStatus = "issued"
)

// Supplier represents a supplier organization invited to quote
type Supplier struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"not null" json:"name"`
	Email     string         `json:"email"`
	Quotes    []Quote        `gorm:"foreignKey:SupplierID" json:"-"`
}

// Rfq represents a request-for-quote header
type Rfq struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
	Reference          string         `gorm:"not null;uniqueIndex" json:"reference"`
	Title              string         `gorm:"not null" json:"title"`
	Status             RfqStatus      `gorm:"not null;default:open" json:"status"`
	IsPartiallyAwarded bool           `gorm:"not null;default:false" json:"is_partially_awarded"`
	Version            int64          `gorm:"not null;default:0" json:"version"`
	Currency           string         `gorm:"not null;size:3" json:"currency"`
	ProjectionDirty    bool           `gorm:"not null;default:false" json:"projection_dirty"`
	ClosesAt           *time.Time     `json:"closes_at"`
	Items              []RfqItem      `gorm:"foreignKey:RfqID" json:"-"`
	Quotes             []Quote        `gorm:"foreignKey:RfqID" json:"-"`
}

// RfqItem represents a single requested line on an RFQ
type RfqItem struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	RfqID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"rfq_id"`
	LineNumber  int            `gorm:"not null" json:"line_number"`
	Description string         `gorm:"not null" json:"description"`
	Sku         *string        `json:"sku"`
	Quantity    int64          `gorm:"not null" json:"quantity"`
	Unit        string         `gorm:"not null;default:each" json:"unit"`
	Rfq         Rfq            `gorm:"foreignKey:RfqID" json:"-"`
}

// Quote represents one supplier's quote against an RFQ
type Quote struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
	RfqID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"rfq_id"`
	SupplierID uuid.UUID      `gorm:"type:uuid;not null;index" json:"supplier_id"`
	Status     QuoteStatus    `gorm:"not null;default:draft" json:"status"`
	Currency   string         `gorm:"not null;size:3" json:"currency"`
	ValidUntil *time.Time     `json:"valid_until"`
	Rfq        Rfq            `gorm:"foreignKey:RfqID" json:"-"`
	Supplier   Supplier       `gorm:"foreignKey:SupplierID" json:"-"`
	Items      []QuoteItem    `gorm:"foreignKey:QuoteID" json:"-"`
}

// QuoteItem represents a supplier's priced bid for one RFQ line
type QuoteItem struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"-"`
	QuoteID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"quote_id"`
	RfqItemID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"rfq_item_id"`
	Status         QuoteItemStatus `gorm:"not null;default:pending" json:"status"`
	UnitPriceMinor int64           `gorm:"not null" json:"unit_price_minor"`
	Currency       string          `gorm:"not null;size:3" json:"currency"`
	LeadTimeDays   *int            `json:"lead_time_days"`
	Quote          Quote           `gorm:"foreignKey:QuoteID" json:"-"`
	RfqItem        RfqItem         `gorm:"foreignKey:RfqItemID" json:"-"`
}

// RfqItemAward records a buyer's decision to allocate an RFQ line to a
// specific quote item at a given quantity. Immutable once Awarded, except
// for cancellation.
type RfqItemAward struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	RfqID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"rfq_id"`
	RfqItemID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"rfq_item_id"`
	QuoteID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"quote_id"`
	QuoteItemID uuid.UUID      `gorm:"type:uuid;not null;index" json:"quote_item_id"`
	Quantity    int64          `gorm:"not null" json:"quantity"`
	Status      AwardStatus    `gorm:"not null;default:Draft" json:"status"`
	Rfq         Rfq            `gorm:"foreignKey:RfqID" json:"-"`
	RfqItem     RfqItem        `gorm:"foreignKey:RfqItemID" json:"-"`
	QuoteItem   QuoteItem      `gorm:"foreignKey:QuoteItemID" json:"-"`
}

// PurchaseOrder is a draft order generated per winning supplier once an RFQ
// is fully awarded
type PurchaseOrder struct {
	ID         uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt  time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt      `gorm:"index" json:"-"`
	Number     string              `gorm:"not null;uniqueIndex" json:"number"`
	RfqID      uuid.UUID           `gorm:"type:uuid;not null;index" json:"rfq_id"`
	SupplierID uuid.UUID           `gorm:"type:uuid;not null;index" json:"supplier_id"`
	Status     PurchaseOrderStatus `gorm:"not null;default:draft" json:"status"`
	Currency   string              `gorm:"not null;size:3" json:"currency"`
	TotalMinor int64               `gorm:"not null;default:0" json:"total_minor"`
	Rfq        Rfq                 `gorm:"foreignKey:RfqID" json:"-"`
	Supplier   Supplier            `gorm:"foreignKey:SupplierID" json:"-"`
	Items      []PurchaseOrderItem `gorm:"foreignKey:PurchaseOrderID" json:"-"`
}

// PurchaseOrderItem is a line on a purchase order
type PurchaseOrderItem struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
	PurchaseOrderID uuid.UUID      `gorm:"type:uuid;not null;index" json:"purchase_order_id"`
	RfqItemID       uuid.UUID      `gorm:"type:uuid;not null" json:"rfq_item_id"`
	QuoteItemID     uuid.UUID      `gorm:"type:uuid;not null" json:"quote_item_id"`
	Quantity        int64          `gorm:"not null" json:"quantity"`
	UnitPriceMinor  int64          `gorm:"not null" json:"unit_price_minor"`
	LineTotalMinor  int64          `gorm:"not null" json:"line_total_minor"`
	Currency        string         `gorm:"not null;size:3" json:"currency"`
}

// AuditLog records a single field-level change made by the award rollup or
// the surrounding actions
type AuditLog struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	EntityType     string     `gorm:"not null;index:idx_audit_entity" json:"entity_type"`
	EntityID       uuid.UUID  `gorm:"type:uuid;not null;index:idx_audit_entity" json:"entity_id"`
	Action         string     `gorm:"not null" json:"action"`
	Before         []byte     `gorm:"type:jsonb" json:"before"`
	After          []byte     `gorm:"type:jsonb" json:"after"`
	ActorID        *uuid.UUID `gorm:"type:uuid" json:"actor_id"`
	ActorIP        string     `json:"actor_ip"`
	ActorUserAgent string     `json:"actor_user_agent"`
}

// AwardSubmission records a processed award submission under the client's
// idempotency key. A retry carrying the same key replays the stored outcome
// instead of re-running the rollup.
type AwardSubmission struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	RfqID          uuid.UUID `gorm:"type:uuid;not null;index" json:"rfq_id"`
	IdempotencyKey uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"idempotency_key"`
}

// AwardPayload represents an incoming award submission, either from the API
// or from a Service Bus message
type AwardPayload struct {
	RfqID          uuid.UUID       `json:"rfq_id"`
	Decisions      []AwardDecision `json:"decisions"`
	IdempotencyKey uuid.UUID       `json:"idempotency_key"`
}

// AwardDecision is one line-level allocation inside an award submission
type AwardDecision struct {
	RfqItemID   uuid.UUID `json:"rfq_item_id"`
	QuoteItemID uuid.UUID `json:"quote_item_id"`
	Quantity    int64     `json:"quantity"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	// Apply all migrations
	err := db.AutoMigrate(
		&Supplier{},
		&Rfq{},
		&RfqItem{},
		&Quote{},
		&QuoteItem{},
		&RfqItemAward{},
		&AwardSubmission{},
		&PurchaseOrder{},
		&PurchaseOrderItem{},
		&AuditLog{},
	)

	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
