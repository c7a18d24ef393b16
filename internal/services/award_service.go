package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/procurement/services/rfq/internal/audit"
	"example.com/procurement/services/rfq/internal/cache"
	"example.com/procurement/services/rfq/internal/metrics"
	"example.com/procurement/services/rfq/internal/models"
	"example.com/procurement/services/rfq/internal/repositories"
	"example.com/procurement/services/rfq/internal/tracing"
)

// RfqAwardStateChanged is published after every committed rollup
const RfqAwardStateChanged = "RfqAwardStateChanged"

// EventPublisher publishes domain events to the message bus
type EventPublisher interface {
	SendMessage(ctx context.Context, eventType string, body interface{}) error
}

// AwardStateChangedEvent is the body of an RfqAwardStateChanged event
type AwardStateChangedEvent struct {
	RfqID              uuid.UUID        `json:"rfq_id"`
	Status             models.RfqStatus `json:"status"`
	IsPartiallyAwarded bool             `json:"is_partially_awarded"`
	Version            int64            `json:"version"`
}

// AwardService owns the award state machine: it records buyer award
// decisions and cascades the derived statuses across quote items, quotes
// and the RFQ header.
type AwardService struct {
	repo      repositories.Repository
	cache     *cache.RedisCache
	projector *Projector
	publisher EventPublisher
	metrics   *metrics.Metrics
	tracer    tracing.Tracer
}

// NewAwardService creates a new award service. The publisher may be nil
// when the service runs without a message bus.
func NewAwardService(
	repo repositories.Repository,
	redisCache *cache.RedisCache,
	projector *Projector,
	publisher EventPublisher,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *AwardService {
	return &AwardService{
		repo:      repo,
		cache:     redisCache,
		projector: projector,
		publisher: publisher,
		metrics:   metricsCollector,
		tracer:    tracer,
	}
}

// SubmitAwards records a buyer's award decisions for an RFQ and runs the
// full rollup. All mutations happen in one transaction serialized per RFQ
// by an advisory lock; a failure rolls everything back together.
func (s *AwardService) SubmitAwards(ctx context.Context, actor audit.Actor, payload *models.AwardPayload) (*models.Rfq, error) {
	if payload.RfqID == uuid.Nil {
		return nil, errors.New("rfq_id is required")
	}
	if len(payload.Decisions) == 0 {
		return nil, errors.New("at least one award decision is required")
	}

	txn := s.tracer.StartTransaction("submit-awards")
	defer s.tracer.EndTransaction(txn)
	s.tracer.AddAttribute(txn, "rfq_id", payload.RfqID.String())
	s.tracer.AddAttribute(txn, "decisions", len(payload.Decisions))

	var rfq *models.Rfq
	var replayed bool
	err := s.repo.WithTransaction(ctx, func(ctx context.Context, txRepo repositories.Repository) error {
		if err := txRepo.AcquireAwardLock(ctx, payload.RfqID); err != nil {
			return err
		}
		auditLog := txRepo.AuditLogger()

		var err error
		if payload.IdempotencyKey != uuid.Nil {
			existing, err := txRepo.FindAwardSubmissionByKey(ctx, payload.IdempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				// Retry of an already-processed submission; hand back
				// the current state without touching anything.
				replayed = true
				rfq, err = txRepo.FindRfqByID(ctx, payload.RfqID)
				return err
			}
		}

		rfq, err = txRepo.FindRfqByID(ctx, payload.RfqID)
		if err != nil {
			return err
		}

		for _, decision := range payload.Decisions {
			if err := s.applyDecision(ctx, txRepo, auditLog, actor, rfq, decision); err != nil {
				return err
			}
		}

		if err := s.RefreshQuoteStatuses(ctx, txRepo, auditLog, actor, rfq); err != nil {
			return err
		}
		if err := s.RefreshRfqState(ctx, txRepo, auditLog, actor, rfq); err != nil {
			return err
		}

		if rfq.Status == models.RfqStatusAwarded {
			if err := s.generatePurchaseOrders(ctx, txRepo, auditLog, actor, rfq); err != nil {
				return err
			}
		}

		if payload.IdempotencyKey != uuid.Nil {
			err = txRepo.CreateAwardSubmission(ctx, &models.AwardSubmission{
				ID:             uuid.New(),
				RfqID:          payload.RfqID,
				IdempotencyKey: payload.IdempotencyKey,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		s.tracer.RecordError(txn, err)
		s.metrics.RecordError("submit_awards")
		return nil, errors.Wrap(err, "failed to submit awards")
	}

	if replayed {
		log.Info().
			Str("rfq_id", rfq.ID.String()).
			Str("idempotency_key", payload.IdempotencyKey.String()).
			Msg("Duplicate award submission replayed")
		return rfq, nil
	}

	s.metrics.RecordSuccess("submit_awards")
	s.metrics.IncrementCounterBy(metrics.AwardsSubmitted, int64(len(payload.Decisions)))

	log.Info().
		Str("rfq_id", rfq.ID.String()).
		Str("status", string(rfq.Status)).
		Bool("partial", rfq.IsPartiallyAwarded).
		Int64("version", rfq.Version).
		Msg("Awards submitted")

	s.afterCommit(ctx, rfq)
	return rfq, nil
}

// CancelAward flips an awarded record to Cancelled, returns its quote item
// to pending and re-runs the rollup
func (s *AwardService) CancelAward(ctx context.Context, actor audit.Actor, awardID uuid.UUID) (*models.Rfq, error) {
	txn := s.tracer.StartTransaction("cancel-award")
	defer s.tracer.EndTransaction(txn)
	s.tracer.AddAttribute(txn, "award_id", awardID.String())

	var rfq *models.Rfq
	err := s.repo.WithTransaction(ctx, func(ctx context.Context, txRepo repositories.Repository) error {
		award, err := txRepo.FindAwardByID(ctx, awardID)
		if err != nil {
			return err
		}
		if err := txRepo.AcquireAwardLock(ctx, award.RfqID); err != nil {
			return err
		}
		// Re-read under the lock; another request may have raced us here.
		award, err = txRepo.FindAwardByID(ctx, awardID)
		if err != nil {
			return err
		}
		auditLog := txRepo.AuditLogger()

		if award.Status == models.AwardStatusCancelled {
			rfq, err = txRepo.FindRfqByID(ctx, award.RfqID)
			return err
		}
		if award.Status != models.AwardStatusAwarded {
			return errors.Errorf("award %s is %s, only awarded records can be cancelled", award.ID, award.Status)
		}

		rfq, err = txRepo.FindRfqByID(ctx, award.RfqID)
		if err != nil {
			return err
		}

		if err := txRepo.UpdateAwardStatus(ctx, award.ID, models.AwardStatusCancelled); err != nil {
			return err
		}
		err = auditLog.Updated(ctx, actor, "rfq_item_award", award.ID,
			audit.Fields{"status": award.Status},
			audit.Fields{"status": models.AwardStatusCancelled})
		if err != nil {
			return err
		}

		quoteItem, err := txRepo.FindQuoteItemByID(ctx, award.QuoteItemID)
		if err != nil {
			return err
		}
		if err := s.UpdateQuoteItemStatus(ctx, txRepo, auditLog, actor, quoteItem, models.QuoteItemStatusPending); err != nil {
			return err
		}

		if err := s.RefreshQuoteStatuses(ctx, txRepo, auditLog, actor, rfq); err != nil {
			return err
		}
		return s.RefreshRfqState(ctx, txRepo, auditLog, actor, rfq)
	})

	if err != nil {
		s.tracer.RecordError(txn, err)
		s.metrics.RecordError("cancel_award")
		return nil, errors.Wrap(err, "failed to cancel award")
	}

	s.metrics.RecordSuccess("cancel_award")
	s.metrics.IncrementCounter(metrics.AwardsCancelled)

	log.Info().
		Str("award_id", awardID.String()).
		Str("rfq_id", rfq.ID.String()).
		Msg("Award cancelled")

	s.afterCommit(ctx, rfq)
	return rfq, nil
}

// applyDecision creates the award record for one RFQ line and moves the
// winning and losing quote items
func (s *AwardService) applyDecision(
	ctx context.Context,
	repo repositories.Repository,
	auditLog audit.Logger,
	actor audit.Actor,
	rfq *models.Rfq,
	decision models.AwardDecision,
) error {
	if decision.Quantity <= 0 {
		return errors.Errorf("awarded quantity must be positive, got %d", decision.Quantity)
	}

	quoteItem, err := repo.FindQuoteItemByID(ctx, decision.QuoteItemID)
	if err != nil {
		return err
	}
	if quoteItem.RfqItemID != decision.RfqItemID {
		return errors.Errorf("quote item %s does not bid on RFQ line %s", decision.QuoteItemID, decision.RfqItemID)
	}

	existing, err := repo.FindActiveAwardByRfqItem(ctx, decision.RfqItemID)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.QuoteItemID == decision.QuoteItemID {
			// Resubmission of the same decision is a no-op.
			log.Debug().
				Str("rfq_item_id", decision.RfqItemID.String()).
				Msg("Award decision already recorded, skipping")
			return nil
		}
		return errors.Errorf("RFQ line %s is already awarded to a different quote item", decision.RfqItemID)
	}

	award := &models.RfqItemAward{
		ID:          uuid.New(),
		RfqID:       rfq.ID,
		RfqItemID:   decision.RfqItemID,
		QuoteID:     quoteItem.QuoteID,
		QuoteItemID: decision.QuoteItemID,
		Quantity:    decision.Quantity,
		Status:      models.AwardStatusAwarded,
	}
	if err := repo.CreateAward(ctx, award); err != nil {
		return err
	}
	err = auditLog.Created(ctx, actor, "rfq_item_award", award.ID, audit.Fields{
		"rfq_item_id":   award.RfqItemID,
		"quote_item_id": award.QuoteItemID,
		"quantity":      award.Quantity,
		"status":        award.Status,
	})
	if err != nil {
		return err
	}

	if err := s.UpdateQuoteItemStatus(ctx, repo, auditLog, actor, quoteItem, models.QuoteItemStatusAwarded); err != nil {
		return err
	}

	// Every other pending bid on the same line has lost.
	competitors, err := repo.ListQuoteItemsByRfqItem(ctx, decision.RfqItemID)
	if err != nil {
		return err
	}
	for i := range competitors {
		competitor := &competitors[i]
		if competitor.ID == quoteItem.ID || competitor.Status != models.QuoteItemStatusPending {
			continue
		}
		if err := s.UpdateQuoteItemStatus(ctx, repo, auditLog, actor, competitor, models.QuoteItemStatusLost); err != nil {
			return err
		}
	}

	return nil
}

// UpdateQuoteItemStatus moves a quote item to a new status. It is
// idempotent: when the item is already in the target status nothing is
// written and no audit entry is emitted.
func (s *AwardService) UpdateQuoteItemStatus(
	ctx context.Context,
	repo repositories.Repository,
	auditLog audit.Logger,
	actor audit.Actor,
	item *models.QuoteItem,
	newStatus models.QuoteItemStatus,
) error {
	if item.Status == newStatus {
		return nil
	}

	before := item.Status
	if err := repo.UpdateQuoteItemStatus(ctx, item.ID, newStatus); err != nil {
		return err
	}
	item.Status = newStatus

	s.metrics.IncrementCounter(metrics.QuoteStatusChanges)
	return auditLog.Updated(ctx, actor, "quote_item", item.ID,
		audit.Fields{"status": before},
		audit.Fields{"status": newStatus})
}

// RefreshQuoteStatuses recomputes every quote's status from its items.
// The quote status is a pure projection of the item statuses: calling this
// twice with no intervening item change writes nothing the second time.
// Withdrawn quotes are terminal and skipped entirely.
func (s *AwardService) RefreshQuoteStatuses(
	ctx context.Context,
	repo repositories.Repository,
	auditLog audit.Logger,
	actor audit.Actor,
	rfq *models.Rfq,
) error {
	quotes, err := repo.ListQuotesByRfq(ctx, rfq.ID)
	if err != nil {
		return err
	}

	for i := range quotes {
		quote := &quotes[i]
		if quote.Status == models.QuoteStatusWithdrawn {
			continue
		}

		var awardedCount, pendingCount int
		for _, item := range quote.Items {
			switch item.Status {
			case models.QuoteItemStatusAwarded:
				awardedCount++
			case models.QuoteItemStatusPending:
				pendingCount++
			}
		}

		// First match wins: any awarded line marks the whole quote
		// awarded; a quote with no live lines left has lost.
		var target models.QuoteStatus
		switch {
		case awardedCount > 0:
			target = models.QuoteStatusAwarded
		case pendingCount == 0:
			target = models.QuoteStatusLost
		default:
			target = models.QuoteStatusSubmitted
		}

		if target == quote.Status {
			continue
		}

		before := quote.Status
		if err := repo.UpdateQuoteStatus(ctx, quote.ID, target); err != nil {
			return err
		}
		quote.Status = target

		err = auditLog.Updated(ctx, actor, "quote", quote.ID,
			audit.Fields{"status": before},
			audit.Fields{"status": target})
		if err != nil {
			return err
		}

		log.Info().
			Str("quote_id", quote.ID.String()).
			Str("from", string(before)).
			Str("to", string(target)).
			Msg("Quote status rolled up")
	}

	return nil
}

// RefreshRfqState recomputes the RFQ's status and partial-award flag from
// the award records. The version counter increments on every call even when
// no other field changes; it marks that a rollup ran, not that state moved.
func (s *AwardService) RefreshRfqState(
	ctx context.Context,
	repo repositories.Repository,
	auditLog audit.Logger,
	actor audit.Actor,
	rfq *models.Rfq,
) error {
	totalItems, err := repo.CountRfqItems(ctx, rfq.ID)
	if err != nil {
		return err
	}
	awardedItems, err := repo.CountAwardedByRfq(ctx, rfq.ID)
	if err != nil {
		return err
	}

	before := audit.Fields{
		"status":               rfq.Status,
		"is_partially_awarded": rfq.IsPartiallyAwarded,
		"version":              rfq.Version,
	}

	switch {
	case totalItems > 0 && awardedItems >= totalItems:
		if awardedItems > totalItems {
			// Data-integrity violation absorbed permissively; the
			// extra awards still count as a full award.
			log.Warn().
				Str("rfq_id", rfq.ID.String()).
				Int64("awarded", awardedItems).
				Int64("total", totalItems).
				Msg("More awarded records than RFQ lines")
		}
		rfq.Status = models.RfqStatusAwarded
		rfq.IsPartiallyAwarded = false
	case awardedItems > 0:
		rfq.IsPartiallyAwarded = true
		if rfq.Status == models.RfqStatusAwarded {
			rfq.Status = models.RfqStatusOpen
		}
	default:
		rfq.IsPartiallyAwarded = false
		if rfq.Status == models.RfqStatusAwarded {
			rfq.Status = models.RfqStatusOpen
		}
	}

	rfq.Version++
	rfq.ProjectionDirty = true

	if err := repo.SaveRfq(ctx, rfq); err != nil {
		return err
	}

	s.metrics.IncrementCounter(metrics.RollupsExecuted)
	return auditLog.Updated(ctx, actor, "rfq", rfq.ID, before, audit.Fields{
		"status":               rfq.Status,
		"is_partially_awarded": rfq.IsPartiallyAwarded,
		"version":              rfq.Version,
	})
}

// afterCommit refreshes the read side once the transaction is committed.
// Failures here are logged and left to the reconciliation job; the
// authoritative state is already durable.
func (s *AwardService) afterCommit(ctx context.Context, rfq *models.Rfq) {
	if err := s.cache.Delete(ctx, cache.RfqSummaryCacheKey(rfq.ID)); err != nil {
		log.Warn().Err(err).Str("rfq_id", rfq.ID.String()).Msg("Failed to invalidate RFQ summary cache")
	}

	if s.projector != nil {
		if err := s.projector.ProjectRfq(ctx, rfq.ID); err != nil {
			log.Warn().
				Err(err).
				Str("rfq_id", rfq.ID.String()).
				Msg("Failed to project RFQ summary, reconciliation will retry")
		}
	}

	if s.publisher != nil {
		event := AwardStateChangedEvent{
			RfqID:              rfq.ID,
			Status:             rfq.Status,
			IsPartiallyAwarded: rfq.IsPartiallyAwarded,
			Version:            rfq.Version,
		}
		if err := s.publisher.SendMessage(ctx, RfqAwardStateChanged, event); err != nil {
			log.Warn().Err(err).Str("rfq_id", rfq.ID.String()).Msg("Failed to publish award state change event")
		}
	}
}
