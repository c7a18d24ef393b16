package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/procurement/services/rfq/internal/audit"
	"example.com/procurement/services/rfq/internal/models"
	"example.com/procurement/services/rfq/internal/services"
	"example.com/procurement/services/rfq/internal/tracing"
)

// AwardHandler handles award-related HTTP requests
type AwardHandler struct {
	awardService *services.AwardService
	tracer       tracing.Tracer
}

// NewAwardHandler creates a new award handler
func NewAwardHandler(awardService *services.AwardService, tracer tracing.Tracer) *AwardHandler {
	return &AwardHandler{
		awardService: awardService,
		tracer:       tracer,
	}
}

// AwardDecisionRequest is one line-level allocation in a submission
type AwardDecisionRequest struct {
	RfqItemID   uuid.UUID `json:"rfq_item_id" binding:"required"`
	QuoteItemID uuid.UUID `json:"quote_item_id" binding:"required"`
	Quantity    int64     `json:"quantity" binding:"required"`
}

// SubmitAwardsRequest represents an incoming award submission. Retries
// carrying the same idempotency key are replayed, not re-applied; a key is
// generated when the client sends none.
type SubmitAwardsRequest struct {
	Decisions      []AwardDecisionRequest `json:"decisions" binding:"required"`
	IdempotencyKey uuid.UUID              `json:"idempotency_key"`
}

// AwardStateResponse reports the RFQ's derived state after a rollup
type AwardStateResponse struct {
	RfqID              uuid.UUID        `json:"rfq_id"`
	Status             models.RfqStatus `json:"status"`
	IsPartiallyAwarded bool             `json:"is_partially_awarded"`
	Version            int64            `json:"version"`
}

// actorFromRequest builds the explicit actor context from the request. The
// user id comes from the X-User-ID header set by the gateway after
// authentication; changes with no user are rejected upstream, not here.
func actorFromRequest(c *gin.Context) audit.Actor {
	actor := audit.Actor{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if raw := c.GetHeader("X-User-ID"); raw != "" {
		if userID, err := uuid.Parse(raw); err == nil {
			actor.UserID = &userID
		}
	}
	return actor
}

// HandleSubmitAwards handles an award submission for an RFQ
func (h *AwardHandler) HandleSubmitAwards(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-submit-awards")
	defer h.tracer.EndTransaction(txn)

	rfqID, err := uuid.Parse(c.Param("rfqId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid RFQ id"})
		return
	}

	var req SubmitAwardsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	h.tracer.AddAttribute(txn, "rfq_id", rfqID.String())
	h.tracer.AddAttribute(txn, "decisions", len(req.Decisions))

	if req.IdempotencyKey == uuid.Nil {
		req.IdempotencyKey = uuid.New()
	}

	payload := &models.AwardPayload{
		RfqID:          rfqID,
		IdempotencyKey: req.IdempotencyKey,
	}
	for _, d := range req.Decisions {
		payload.Decisions = append(payload.Decisions, models.AwardDecision{
			RfqItemID:   d.RfqItemID,
			QuoteItemID: d.QuoteItemID,
			Quantity:    d.Quantity,
		})
	}

	rfq, err := h.awardService.SubmitAwards(c, actorFromRequest(c), payload)
	if err != nil {
		log.Error().Err(err).Str("rfq_id", rfqID.String()).Msg("Failed to submit awards")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusCreated, AwardStateResponse{
		RfqID:              rfq.ID,
		Status:             rfq.Status,
		IsPartiallyAwarded: rfq.IsPartiallyAwarded,
		Version:            rfq.Version,
	})
}

// HandleCancelAward cancels a single award record
func (h *AwardHandler) HandleCancelAward(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-cancel-award")
	defer h.tracer.EndTransaction(txn)

	awardID, err := uuid.Parse(c.Param("awardId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid award id"})
		return
	}
	h.tracer.AddAttribute(txn, "award_id", awardID.String())

	rfq, err := h.awardService.CancelAward(c, actorFromRequest(c), awardID)
	if err != nil {
		log.Error().Err(err).Str("award_id", awardID.String()).Msg("Failed to cancel award")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, AwardStateResponse{
		RfqID:              rfq.ID,
		Status:             rfq.Status,
		IsPartiallyAwarded: rfq.IsPartiallyAwarded,
		Version:            rfq.Version,
	})
}

// RegisterRoutes registers the handler's routes
func (h *AwardHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/rfqs/:rfqId/awards", h.HandleSubmitAwards)
	router.POST("/awards/:awardId/cancel", h.HandleCancelAward)
}
