package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/procurement/services/rfq/internal/services"
	"example.com/procurement/services/rfq/internal/tracing"
)

// RfqHandler serves the RFQ award summary read model
type RfqHandler struct {
	projector *services.Projector
	tracer    tracing.Tracer
}

// NewRfqHandler creates a new RFQ handler
func NewRfqHandler(projector *services.Projector, tracer tracing.Tracer) *RfqHandler {
	return &RfqHandler{
		projector: projector,
		tracer:    tracer,
	}
}

// HandleGetAwardSummary returns the award summary for an RFQ
func (h *RfqHandler) HandleGetAwardSummary(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-rfq-award-summary")
	defer h.tracer.EndTransaction(txn)

	rfqID, err := uuid.Parse(c.Param("rfqId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid RFQ id"})
		return
	}
	h.tracer.AddAttribute(txn, "rfq_id", rfqID.String())

	summary, err := h.projector.GetSummary(c, rfqID)
	if err != nil {
		log.Error().Err(err).Str("rfq_id", rfqID.String()).Msg("Failed to load RFQ award summary")
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// RegisterRoutes registers the handler's routes
func (h *RfqHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/rfqs/:rfqId/award-summary", h.HandleGetAwardSummary)
}
