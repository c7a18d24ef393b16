package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/procurement/services/rfq/internal/cache"
	"example.com/procurement/services/rfq/internal/metrics"
	"example.com/procurement/services/rfq/internal/models"
	"example.com/procurement/services/rfq/internal/money"
	"example.com/procurement/services/rfq/internal/repositories"
	"example.com/procurement/services/rfq/internal/search"
)

// summaryCacheTTL bounds staleness of cached summaries; the award path also
// invalidates explicitly after every rollup.
const summaryCacheTTL = 10 * time.Minute

// Projector builds the RFQ award summary read model and pushes it to
// Elasticsearch and Redis
type Projector struct {
	repo    repositories.Repository
	cache   *cache.RedisCache
	elastic *search.ElasticClient
	metrics *metrics.Metrics
}

// NewProjector creates a new projector
func NewProjector(
	repo repositories.Repository,
	redisCache *cache.RedisCache,
	elastic *search.ElasticClient,
	metricsCollector *metrics.Metrics,
) *Projector {
	return &Projector{
		repo:    repo,
		cache:   redisCache,
		elastic: elastic,
		metrics: metricsCollector,
	}
}

// BuildSummary assembles the award summary for an RFQ from authoritative
// state
func (p *Projector) BuildSummary(ctx context.Context, repo repositories.Repository, rfqID uuid.UUID) (*models.RfqAwardSummary, error) {
	rfq, err := repo.FindRfqByID(ctx, rfqID)
	if err != nil {
		return nil, err
	}

	totalItems, err := repo.CountRfqItems(ctx, rfq.ID)
	if err != nil {
		return nil, err
	}
	awardedItems, err := repo.CountAwardedByRfq(ctx, rfq.ID)
	if err != nil {
		return nil, err
	}

	awards, err := repo.ListAwardsByRfq(ctx, rfq.ID)
	if err != nil {
		return nil, err
	}

	summary := &models.RfqAwardSummary{
		RfqID:              rfq.ID,
		Reference:          rfq.Reference,
		Status:             rfq.Status,
		IsPartiallyAwarded: rfq.IsPartiallyAwarded,
		Version:            rfq.Version,
		Currency:           rfq.Currency,
		TotalItems:         totalItems,
		AwardedItems:       awardedItems,
		Suppliers:          []models.SupplierAwardSummary{},
		ProjectedAt:        time.Now().UTC(),
	}

	// One supplier block per winning quote, in first-award order.
	index := make(map[uuid.UUID]int)
	for _, award := range awards {
		if award.Status != models.AwardStatusAwarded {
			continue
		}

		pos, ok := index[award.QuoteID]
		if !ok {
			quote, err := repo.FindQuoteByID(ctx, award.QuoteID)
			if err != nil {
				return nil, err
			}
			supplier, err := repo.FindSupplierByID(ctx, quote.SupplierID)
			if err != nil {
				return nil, err
			}
			summary.Suppliers = append(summary.Suppliers, models.SupplierAwardSummary{
				SupplierID:   supplier.ID,
				SupplierName: supplier.Name,
				QuoteID:      quote.ID,
				QuoteStatus:  quote.Status,
			})
			pos = len(summary.Suppliers) - 1
			index[award.QuoteID] = pos
		}

		quoteItem, err := repo.FindQuoteItemByID(ctx, award.QuoteItemID)
		if err != nil {
			return nil, err
		}
		unitPrice, err := money.FromMinor(quoteItem.UnitPriceMinor, quoteItem.Currency)
		if err != nil {
			return nil, err
		}
		lineTotal := unitPrice.Multiply(float64(award.Quantity), money.RoundHalfUp)

		block := &summary.Suppliers[pos]
		block.AwardedLines++
		block.TotalMinor += lineTotal.AmountMinor()
	}

	for i := range summary.Suppliers {
		total, err := money.FromMinor(summary.Suppliers[i].TotalMinor, rfq.Currency)
		if err != nil {
			return nil, err
		}
		summary.Suppliers[i].Total = total.Format(2)
	}

	return summary, nil
}

// ProjectRfq rebuilds the summary for one RFQ, indexes it, caches it and
// clears the dirty flag
func (p *Projector) ProjectRfq(ctx context.Context, rfqID uuid.UUID) error {
	summary, err := p.BuildSummary(ctx, p.repo, rfqID)
	if err != nil {
		p.metrics.IncrementCounter(metrics.ProjectionsFailed)
		return errors.Wrap(err, "failed to build RFQ summary")
	}

	if p.elastic != nil {
		if err := p.elastic.IndexRfqSummary(ctx, summary); err != nil {
			p.metrics.IncrementCounter(metrics.ProjectionsFailed)
			return err
		}
	}

	if err := p.cache.Set(ctx, cache.RfqSummaryCacheKey(rfqID), summary, summaryCacheTTL); err != nil {
		log.Warn().Err(err).Str("rfq_id", rfqID.String()).Msg("Failed to cache RFQ summary")
	}

	if err := p.repo.MarkRfqProjected(ctx, rfqID); err != nil {
		return err
	}

	p.metrics.IncrementCounter(metrics.ProjectionsIndexed)
	return nil
}

// GetSummary returns the award summary for an RFQ, preferring the cache
func (p *Projector) GetSummary(ctx context.Context, rfqID uuid.UUID) (*models.RfqAwardSummary, error) {
	var cached models.RfqAwardSummary
	if err := p.cache.Get(ctx, cache.RfqSummaryCacheKey(rfqID), &cached); err == nil {
		return &cached, nil
	}

	summary, err := p.BuildSummary(ctx, p.repo, rfqID)
	if err != nil {
		return nil, err
	}

	if err := p.cache.Set(ctx, cache.RfqSummaryCacheKey(rfqID), summary, summaryCacheTTL); err != nil {
		log.Debug().Str("rfq_id", rfqID.String()).Msg("RFQ summary not cached")
	}
	return summary, nil
}

// ReconcileProjections reprojects every RFQ whose summary is stale. Run on
// a schedule so projections lost to transient indexing failures converge.
func (p *Projector) ReconcileProjections(ctx context.Context, batchSize int) error {
	rfqs, err := p.repo.ListProjectionDirtyRfqs(ctx, batchSize)
	if err != nil {
		return errors.Wrap(err, "failed to list stale projections")
	}
	if len(rfqs) == 0 {
		return nil
	}

	log.Info().Int("count", len(rfqs)).Msg("Reconciling stale RFQ projections")

	var failed int
	for i := range rfqs {
		if err := p.ProjectRfq(ctx, rfqs[i].ID); err != nil {
			failed++
			log.Error().
				Err(err).
				Str("rfq_id", rfqs[i].ID.String()).
				Msg("Failed to reproject RFQ summary")
		}
	}

	if failed > 0 {
		return errors.Errorf("%d of %d projections failed", failed, len(rfqs))
	}
	return nil
}
