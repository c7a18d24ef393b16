package models

import (
	"time"

	"github.com/google/uuid"
)

// RfqAwardSummary is the read model projected after every award rollup.
// It is indexed in Elasticsearch and cached in Redis; it is never a source
// of truth.
type RfqAwardSummary struct {
	RfqID              uuid.UUID              `json:"rfq_id"`
	Reference          string                 `json:"reference"`
	Status             RfqStatus              `json:"status"`
	IsPartiallyAwarded bool                   `json:"is_partially_awarded"`
	Version            int64                  `json:"version"`
	Currency           string                 `json:"currency"`
	TotalItems         int64                  `json:"total_items"`
	AwardedItems       int64                  `json:"awarded_items"`
	Suppliers          []SupplierAwardSummary `json:"suppliers"`
	ProjectedAt        time.Time              `json:"projected_at"`
}

// SupplierAwardSummary aggregates one supplier's awarded lines on an RFQ
type SupplierAwardSummary struct {
	SupplierID   uuid.UUID   `json:"supplier_id"`
	SupplierName string      `json:"supplier_name"`
	QuoteID      uuid.UUID   `json:"quote_id"`
	QuoteStatus  QuoteStatus `json:"quote_status"`
	AwardedLines int         `json:"awarded_lines"`
	TotalMinor   int64       `json:"total_minor"`
	Total        string      `json:"total"`
}
