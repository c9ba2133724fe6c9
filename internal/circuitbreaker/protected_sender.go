package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/talentpool/herald/internal/db"
)

// Sender mirrors the worker's sender interface to avoid a circular
// import.
type Sender interface {
	Send(ctx context.Context, e *db.Escalation) error
	SupportsChannel(channel string) bool
}

// ProtectedSender wraps a Sender with a CircuitBreaker. When the backend
// starts failing the circuit opens and sends fail fast; the escalation
// worker's retry schedule picks them up again later.
type ProtectedSender struct {
	sender  Sender
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewProtectedSender wraps a sender with circuit breaker protection.
func NewProtectedSender(sender Sender, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedSender {
	return &ProtectedSender{
		sender:  sender,
		breaker: breaker,
		logger:  logger,
	}
}

// Send attempts a delivery through the circuit breaker.
func (p *ProtectedSender) Send(ctx context.Context, e *db.Escalation) error {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected send",
			zap.String("breaker", p.breaker.Name()),
			zap.String("escalation_id", e.ID.String()),
			zap.String("channel", e.Channel),
		)
		return fmt.Errorf("%w: %s sender unavailable", ErrCircuitOpen, p.breaker.Name())
	}

	if err := p.sender.Send(ctx, e); err != nil {
		p.breaker.RecordFailure()
		return err
	}

	p.breaker.RecordSuccess()
	return nil
}

// SupportsChannel delegates to the underlying sender.
func (p *ProtectedSender) SupportsChannel(channel string) bool {
	return p.sender.SupportsChannel(channel)
}

// Breaker exposes the underlying breaker for monitoring.
func (p *ProtectedSender) Breaker() *CircuitBreaker {
	return p.breaker
}
