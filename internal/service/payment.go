package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentResult is the tagged outcome of one authorization call. The
// orchestrator switches on Outcome exhaustively; there is no implicit
// retry inside the authorizer.
type PaymentResult struct {
	Outcome        string `json:"outcome"`
	TransactionRef string `json:"transaction_ref"`
	Reason         string `json:"reason,omitempty"`
}

// Authorizer is the external payment dependency: latent, unreliable,
// and never retried silently. One call, one outcome.
type Authorizer interface {
	// Authorize attempts to authorize amount with the given method.
	// intentRef identifies the charge intent; passing the same
	// intentRef again reuses the same transaction ref, so a retry
	// cannot double-charge.
	Authorize(ctx context.Context, amount int64, method, intentRef string) (*PaymentResult, error)
}

// attemptLog records payment attempts append-only.
type attemptLog interface {
	CreatePaymentAttempt(ctx context.Context, attempt *models.PaymentAttempt) error
}

var declineReasons = []string{
	"card_declined",
	"insufficient_funds",
	"issuer_unavailable",
}

// MockGateway simulates the payment provider: randomized latency, a
// configurable decline rate and a configurable timeout rate.
type MockGateway struct {
	attempts    attemptLog
	declineRate float64
	timeoutRate float64
	minLatency  time.Duration
	maxLatency  time.Duration

	mu     sync.Mutex
	rng    *rand.Rand
	logger *zap.Logger
}

// NewMockGateway creates a gateway with the given failure rates.
func NewMockGateway(attempts attemptLog, declineRate, timeoutRate float64, minLatency, maxLatency time.Duration) *MockGateway {
	return &MockGateway{
		attempts:    attempts,
		declineRate: declineRate,
		timeoutRate: timeoutRate,
		minLatency:  minLatency,
		maxLatency:  maxLatency,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:      util.GetLogger(),
	}
}

// SetSeed makes outcomes deterministic. Test hook.
func (g *MockGateway) SetSeed(seed int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rng = rand.New(rand.NewSource(seed))
}

// Authorize implements Authorizer.
func (g *MockGateway) Authorize(ctx context.Context, amount int64, method, intentRef string) (*PaymentResult, error) {
	ctx, span := util.StartSpan(ctx, "MockGateway.Authorize")
	defer span.End()

	util.PaymentAttemptsTotal.Inc()
	start := time.Now()
	defer func() {
		util.PaymentLatency.Observe(time.Since(start).Seconds())
	}()

	ref := intentRef
	if ref == "" {
		ref = fmt.Sprintf("TXN-%s", uuid.New().String()[:8])
	}

	latency, roll := g.draw()

	select {
	case <-time.After(latency):
	case <-ctx.Done():
		result := &PaymentResult{
			Outcome:        models.PaymentOutcomeTimedOut,
			TransactionRef: ref,
			Reason:         "authorization deadline exceeded",
		}
		g.record(amount, result)
		util.PaymentTimeoutsTotal.Inc()
		return result, nil
	}

	var result *PaymentResult
	switch {
	case roll < g.timeoutRate:
		result = &PaymentResult{
			Outcome:        models.PaymentOutcomeTimedOut,
			TransactionRef: ref,
			Reason:         "gateway timed out",
		}
		util.PaymentTimeoutsTotal.Inc()

	case roll < g.timeoutRate+g.declineRate:
		result = &PaymentResult{
			Outcome:        models.PaymentOutcomeDeclined,
			TransactionRef: ref,
			Reason:         g.declineReason(),
		}
		util.PaymentDeclinedTotal.Inc()
		g.logger.Warn("Payment declined",
			zap.String("transaction_ref", ref),
			zap.Int64("amount", amount),
			zap.String("reason", result.Reason))

	default:
		result = &PaymentResult{
			Outcome:        models.PaymentOutcomeApproved,
			TransactionRef: ref,
		}
		util.PaymentApprovedTotal.Inc()
		g.logger.Info("Payment approved",
			zap.String("transaction_ref", ref),
			zap.Int64("amount", amount),
			zap.String("method", method))
	}

	g.record(amount, result)
	return result, nil
}

// record appends the attempt. Attempt rows are observability, not
// control flow; a write failure is logged and the outcome stands.
func (g *MockGateway) record(amount int64, result *PaymentResult) {
	if g.attempts == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	attempt := &models.PaymentAttempt{
		TransactionRef: result.TransactionRef,
		Amount:         amount,
		Outcome:        result.Outcome,
		Reason:         result.Reason,
		ProcessedAt:    time.Now(),
	}
	if err := g.attempts.CreatePaymentAttempt(ctx, attempt); err != nil {
		g.logger.Error("Failed to record payment attempt",
			zap.String("transaction_ref", result.TransactionRef),
			zap.Error(err))
	}
}

func (g *MockGateway) draw() (time.Duration, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	latency := g.minLatency
	if span := g.maxLatency - g.minLatency; span > 0 {
		latency += time.Duration(g.rng.Int63n(int64(span)))
	}
	return latency, g.rng.Float64()
}

func (g *MockGateway) declineReason() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return declineReasons[g.rng.Intn(len(declineReasons))]
}
