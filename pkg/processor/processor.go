// Package processor handles incoming observation messages. This is the
// intake layer: it validates and persists observations, nothing more.
// Resolution runs separately in the pipeline.
package processor

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ObservationStore persists observation batches
type ObservationStore interface {
	CreateBatch(ctx context.Context, requests []models.CreateObservationRequest) (int, error)
}

// Processor handles message processing for observation intake
type Processor struct {
	logger       ectologger.Logger
	observations ObservationStore
	validate     *validator.Validate
}

// NewProcessor creates a new message processor for intake
func NewProcessor(logger ectologger.Logger, observations ObservationStore) *Processor {
	return &Processor{
		logger:       logger,
		observations: observations,
		validate:     validator.New(),
	}
}

// ProcessMessage handles an incoming Kafka message. Observations that
// fail validation are dropped with a warning; the rest of the batch
// still lands. Duplicate observations are absorbed by the uniqueness
// key, so redelivered messages are harmless.
func (p *Processor) ProcessMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.ProcessMessage")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"key":    msg.Key,
		"topic":  msg.Topic,
		"offset": msg.Offset,
	})

	if msg.ObservationMessage == nil {
		if err := msg.ParseObservationMessage(); err != nil {
			log.WithError(err).Error("Failed to parse observation message")
			return nil // Skip message, don't retry
		}
	}

	batch := msg.ObservationMessage.Observations
	valid := make([]models.CreateObservationRequest, 0, len(batch))
	dropped := 0
	for i := range batch {
		req := batch[i]
		if req.SourceSystem == "" {
			req.SourceSystem = msg.GetSourceSystem()
		}
		if err := p.validate.Struct(req); err != nil {
			dropped++
			log.WithError(err).WithFields(map[string]any{
				"observation_kind": req.ObservationKind,
				"field_name":       req.FieldName,
			}).Warn("Dropping invalid observation")
			continue
		}
		valid = append(valid, req)
	}

	if len(valid) == 0 {
		log.WithFields(map[string]any{"dropped": dropped}).Warn("No valid observations in message")
		return nil
	}

	inserted, err := p.observations.CreateBatch(ctx, valid)
	if err != nil {
		log.WithError(err).Error("Failed to persist observations")
		return err
	}

	log.WithFields(map[string]any{
		"received":   len(batch),
		"inserted":   inserted,
		"duplicates": len(valid) - inserted,
		"dropped":    dropped,
	}).Info("Observations ingested")

	return nil
}
