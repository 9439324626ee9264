package service

import (
	"context"
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockGateway_Approves(t *testing.T) {
	log := &mockAttemptLog{}
	gw := NewMockGateway(log, 0, 0, 0, 0)

	result, err := gw.Authorize(context.Background(), 10000, "card", "PAY-abc")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentOutcomeApproved, result.Outcome)
	assert.Equal(t, "PAY-abc", result.TransactionRef)
	assert.Empty(t, result.Reason)

	require.Len(t, log.attempts, 1)
	assert.Equal(t, "PAY-abc", log.attempts[0].TransactionRef)
	assert.Equal(t, int64(10000), log.attempts[0].Amount)
	assert.Equal(t, models.PaymentOutcomeApproved, log.attempts[0].Outcome)
}

func TestMockGateway_Declines(t *testing.T) {
	log := &mockAttemptLog{}
	gw := NewMockGateway(log, 1, 0, 0, 0)

	result, err := gw.Authorize(context.Background(), 10000, "card", "PAY-abc")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentOutcomeDeclined, result.Outcome)
	assert.NotEmpty(t, result.Reason)

	require.Len(t, log.attempts, 1)
	assert.Equal(t, models.PaymentOutcomeDeclined, log.attempts[0].Outcome)
}

func TestMockGateway_TimesOut(t *testing.T) {
	gw := NewMockGateway(nil, 0, 1, 0, 0)

	result, err := gw.Authorize(context.Background(), 10000, "card", "PAY-abc")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentOutcomeTimedOut, result.Outcome)
}

func TestMockGateway_HonorsContextDeadline(t *testing.T) {
	log := &mockAttemptLog{}
	gw := NewMockGateway(log, 0, 0, 200*time.Millisecond, 400*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	result, err := gw.Authorize(ctx, 10000, "card", "PAY-abc")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentOutcomeTimedOut, result.Outcome)
	assert.Equal(t, "authorization deadline exceeded", result.Reason)

	// The attempt log records the timeout too.
	require.Len(t, log.attempts, 1)
	assert.Equal(t, models.PaymentOutcomeTimedOut, log.attempts[0].Outcome)
}

func TestMockGateway_GeneratesRefWithoutIntent(t *testing.T) {
	gw := NewMockGateway(nil, 0, 0, 0, 0)

	result, err := gw.Authorize(context.Background(), 500, "card", "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.TransactionRef)
	assert.Contains(t, result.TransactionRef, "TXN-")
}

func TestMockGateway_AttemptLogIsAppendOnly(t *testing.T) {
	log := &mockAttemptLog{}
	gw := NewMockGateway(log, 0, 0, 0, 0)

	for i := 0; i < 3; i++ {
		_, err := gw.Authorize(context.Background(), 100, "card", "PAY-same")
		require.NoError(t, err)
	}

	// Same intent ref, three calls, three rows.
	assert.Len(t, log.attempts, 3)
}
