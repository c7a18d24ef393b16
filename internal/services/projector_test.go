package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/procurement/services/rfq/internal/audit"
	"example.com/procurement/services/rfq/internal/metrics"
	"example.com/procurement/services/rfq/internal/models"
)

func TestBuildSummaryGroupsSuppliers(t *testing.T) {
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

	projector := NewProjector(f.repo, nil, nil, metrics.NewMetrics())
	summary, err := projector.BuildSummary(context.Background(), f.repo, f.rfq.ID)
	require.NoError(t, err)

	require.Equal(t, f.rfq.ID, summary.RfqID)
	require.Equal(t, models.RfqStatusAwarded, summary.Status)
	require.Equal(t, int64(2), summary.TotalItems)
	require.Equal(t, int64(2), summary.AwardedItems)
	require.Len(t, summary.Suppliers, 2)

	byName := make(map[string]models.SupplierAwardSummary)
	for _, s := range summary.Suppliers {
		byName[s.SupplierName] = s
	}
	require.Equal(t, int64(9000), byName["Borealis Trading"].TotalMinor)
	require.Equal(t, "90.00", byName["Borealis Trading"].Total)
	require.Equal(t, 1, byName["Borealis Trading"].AwardedLines)
	require.Equal(t, int64(10000), byName["Acme Supplies"].TotalMinor)
	require.Equal(t, "100.00", byName["Acme Supplies"].Total)
}

func TestBuildSummaryExcludesCancelledAwards(t *testing.T) {
	f := newFixture()
	service := newTestService(f.repo, nil)

	_, err := service.SubmitAwards(context.Background(), audit.SystemActor(), &models.AwardPayload{
		RfqID: f.rfq.ID,
		Decisions: []models.AwardDecision{
			{RfqItemID: f.item1.ID, QuoteItemID: f.qb1.ID, Quantity: 10},
		},
	})
	require.NoError(t, err)

	_, err = service.CancelAward(context.Background(), audit.SystemActor(), f.repo.awards[0].ID)
	require.NoError(t, err)

	projector := NewProjector(f.repo, nil, nil, metrics.NewMetrics())
	summary, err := projector.BuildSummary(context.Background(), f.repo, f.rfq.ID)
	require.NoError(t, err)

	require.Equal(t, int64(0), summary.AwardedItems)
	require.Empty(t, summary.Suppliers)
}

func TestReconcileProjectionsClearsDirtyFlag(t *testing.T) {
	f := newFixture()
	f.rfq.ProjectionDirty = true

	projector := NewProjector(f.repo, nil, nil, metrics.NewMetrics())
	err := projector.ReconcileProjections(context.Background(), 100)
	require.NoError(t, err)
	require.False(t, f.rfq.ProjectionDirty)

	// Nothing left to do on the second pass.
	err = projector.ReconcileProjections(context.Background(), 100)
	require.NoError(t, err)
}
