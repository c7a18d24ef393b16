package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/procurement/services/rfq/internal/audit"
	"example.com/procurement/services/rfq/internal/metrics"
	"example.com/procurement/services/rfq/internal/models"
	"example.com/procurement/services/rfq/internal/money"
	"example.com/procurement/services/rfq/internal/repositories"
)

// generatePurchaseOrders creates one draft purchase order per winning
// supplier once the RFQ is fully awarded. Runs inside the award
// transaction; generation happens at most once per RFQ.
func (s *AwardService) generatePurchaseOrders(
	ctx context.Context,
	repo repositories.Repository,
	auditLog audit.Logger,
	actor audit.Actor,
	rfq *models.Rfq,
) error {
	exists, err := repo.PurchaseOrderExistsForRfq(ctx, rfq.ID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	awards, err := repo.ListAwardsByRfq(ctx, rfq.ID)
	if err != nil {
		return err
	}

	// Group active awards by winning quote; one PO per quote, which is
	// one PO per supplier since a supplier quotes an RFQ once.
	byQuote := make(map[uuid.UUID][]models.RfqItemAward)
	var quoteOrder []uuid.UUID
	for _, award := range awards {
		if award.Status != models.AwardStatusAwarded {
			continue
		}
		if _, ok := byQuote[award.QuoteID]; !ok {
			quoteOrder = append(quoteOrder, award.QuoteID)
		}
		byQuote[award.QuoteID] = append(byQuote[award.QuoteID], award)
	}

	seq := 0
	for _, quoteID := range quoteOrder {
		seq++
		quote, err := repo.FindQuoteByID(ctx, quoteID)
		if err != nil {
			return err
		}

		total, err := money.FromMinor(0, rfq.Currency)
		if err != nil {
			return err
		}

		po := &models.PurchaseOrder{
			ID:         uuid.New(),
			Number:     fmt.Sprintf("PO-%s-%02d", rfq.Reference, seq),
			RfqID:      rfq.ID,
			SupplierID: quote.SupplierID,
			Status:     models.PurchaseOrderStatusDraft,
			Currency:   rfq.Currency,
		}

		for _, award := range byQuote[quoteID] {
			quoteItem, err := repo.FindQuoteItemByID(ctx, award.QuoteItemID)
			if err != nil {
				return err
			}

			unitPrice, err := money.FromMinor(quoteItem.UnitPriceMinor, quoteItem.Currency)
			if err != nil {
				return err
			}
			lineTotal := unitPrice.Multiply(float64(award.Quantity), money.RoundHalfUp)
			total, err = total.Add(lineTotal)
			if err != nil {
				return errors.Wrapf(err, "quote item %s priced in a different currency than the RFQ", quoteItem.ID)
			}

			po.Items = append(po.Items, models.PurchaseOrderItem{
				ID:              uuid.New(),
				PurchaseOrderID: po.ID,
				RfqItemID:       award.RfqItemID,
				QuoteItemID:     award.QuoteItemID,
				Quantity:        award.Quantity,
				UnitPriceMinor:  quoteItem.UnitPriceMinor,
				LineTotalMinor:  lineTotal.AmountMinor(),
				Currency:        lineTotal.Currency(),
			})
		}

		po.TotalMinor = total.AmountMinor()
		if err := repo.CreatePurchaseOrder(ctx, po); err != nil {
			return err
		}
		err = auditLog.Created(ctx, actor, "purchase_order", po.ID, audit.Fields{
			"number":      po.Number,
			"supplier_id": po.SupplierID,
			"status":      po.Status,
			"total_minor": po.TotalMinor,
			"currency":    po.Currency,
			"lines":       len(po.Items),
		})
		if err != nil {
			return err
		}

		s.metrics.IncrementCounter(metrics.PurchaseOrdersMade)
		log.Info().
			Str("po_number", po.Number).
			Str("supplier_id", po.SupplierID.String()).
			Str("total", total.String()).
			Msg("Draft purchase order generated")
	}

	return nil
}
