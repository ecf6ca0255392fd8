package kafka

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Parsed content
	ObservationMessage *ObservationMessage
}

// ObservationMessage is the intake envelope published by the extraction
// pipeline: one batch of observations, usually the fields of a single
// source record.
type ObservationMessage struct {
	SourceSystem string                            `json:"source_system"`
	Observations []models.CreateObservationRequest `json:"observations"`
	SentAt       time.Time                         `json:"sent_at,omitempty"`
}

// ParseObservationMessage parses the message value as an observation batch
func (m *IncomingMessage) ParseObservationMessage() error {
	var msg ObservationMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return err
	}
	if len(msg.Observations) == 0 {
		return errors.New("observation message has no observations")
	}
	m.ObservationMessage = &msg
	return nil
}

// GetSourceSystem returns the source system for the batch, falling back
// to the per-observation value and then the header.
func (m *IncomingMessage) GetSourceSystem() string {
	if m.ObservationMessage != nil {
		if m.ObservationMessage.SourceSystem != "" {
			return m.ObservationMessage.SourceSystem
		}
		if len(m.ObservationMessage.Observations) > 0 {
			return m.ObservationMessage.Observations[0].SourceSystem
		}
	}
	return m.Headers["source_system"]
}
