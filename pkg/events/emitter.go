// Package events handles event emission for matching run lifecycle changes
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter handles event emission for Clover
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitMatchesCommitted emits one match.created event per persisted decision,
// batched into a single produce call and keyed by user so a user's matches
// stay ordered
func (e *Emitter) EmitMatchesCommitted(ctx context.Context, runID string, decisions []models.MatchDecision) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMatchesCommitted")
	defer span.End()

	if len(decisions) == 0 {
		return nil
	}

	envelopes := make([]kafka.Envelope, len(decisions))
	for i, d := range decisions {
		envelopes[i] = kafka.Envelope{
			Key:       d.UserID,
			EventType: string(EventTypeMatchCreated),
			Event: &MatchCreatedEvent{
				BaseEvent:         NewBaseEvent(EventTypeMatchCreated, runID),
				UserID:            d.UserID,
				LoanProductID:     d.ProductID,
				MatchScore:        d.Score,
				EligibilityStatus: string(d.Status),
				Reasons:           d.Reasons.GetValue(),
			},
		}
	}

	if err := e.producer.PublishBatch(ctx, envelopes); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit match.created events")
		return err
	}

	return nil
}

// EmitRunStarted emits a run started event
func (e *Emitter) EmitRunStarted(ctx context.Context, runID string) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRunStarted")
	defer span.End()

	event := &RunStartedEvent{
		BaseEvent: NewBaseEvent(EventTypeRunStarted, runID),
	}

	if err := e.producer.Publish(ctx, runID, string(EventTypeRunStarted), event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit pipeline.run.started event")
		return err
	}

	return nil
}

// EmitRunCompleted emits a run completed event
func (e *Emitter) EmitRunCompleted(ctx context.Context, runID string, usersProcessed, matchesCreated int) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRunCompleted")
	defer span.End()

	event := &RunCompletedEvent{
		BaseEvent:      NewBaseEvent(EventTypeRunCompleted, runID),
		UsersProcessed: usersProcessed,
		MatchesCreated: matchesCreated,
	}

	if err := e.producer.Publish(ctx, runID, string(EventTypeRunCompleted), event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit pipeline.run.completed event")
		return err
	}

	return nil
}

// EmitRunFailed emits a run failed event
func (e *Emitter) EmitRunFailed(ctx context.Context, runID string, reason string) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRunFailed")
	defer span.End()

	event := &RunFailedEvent{
		BaseEvent: NewBaseEvent(EventTypeRunFailed, runID),
		Reason:    reason,
	}

	if err := e.producer.Publish(ctx, runID, string(EventTypeRunFailed), event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit pipeline.run.failed event")
		return err
	}

	return nil
}
