package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanielPopoola/marketplace-settlement/internal/application"
	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
)

func TestGetTransaction_IncludesCommissionsAndAssessment(t *testing.T) {
	f := newChargeFixture()
	f.assessor.level = domain.RiskLow

	result, err := f.service.Charge(context.Background(), chargeCmd(), "")
	require.NoError(t, err)

	queries := NewQueryService(f.repos)
	view, err := queries.GetTransaction(context.Background(), result.Transaction.ID)

	require.NoError(t, err)
	assert.Equal(t, result.Transaction.ID, view.Transaction.ID)
	assert.Len(t, view.Commissions, 2)
	require.NotNil(t, view.Assessment)
	assert.Equal(t, result.Transaction.ID, view.Assessment.TransactionID)
	assert.Equal(t, domain.DecisionAllow, view.Assessment.Decision)
}

func TestGetTransaction_NoAssessmentRecorded(t *testing.T) {
	f := newSettleFixture()
	f.seedTransaction(domain.StatusProcessing, "gw-ref-1")

	queries := NewQueryService(f.store.repositories())
	view, err := queries.GetTransaction(context.Background(), "tx-1")

	require.NoError(t, err)
	assert.Nil(t, view.Assessment)
	assert.Empty(t, view.Commissions)
}

func TestGetTransaction_UnknownID(t *testing.T) {
	f := newChargeFixture()

	queries := NewQueryService(f.repos)
	_, err := queries.GetTransaction(context.Background(), "tx-missing")

	require.Error(t, err)
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodeNotFound, svcErr.Code)
}
