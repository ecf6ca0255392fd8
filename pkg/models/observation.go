package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ObservationKind names the atomic fact a source record contributed
type ObservationKind string

const (
	ObservationKindEmail         ObservationKind = "email"
	ObservationKindPhone         ObservationKind = "phone"
	ObservationKindMicrochip     ObservationKind = "microchip"
	ObservationKindPersonName    ObservationKind = "person_name"
	ObservationKindAnimalName    ObservationKind = "animal_name"
	ObservationKindPlaceName     ObservationKind = "place_name"
	ObservationKindStreetAddress ObservationKind = "street_address"
	ObservationKindSpecies       ObservationKind = "species"
)

// Observation is an immutable, provenance-tagged fact extracted from a
// raw source record by the upstream extraction pipeline. Unique per
// (source record, kind, field); re-extraction is a no-op.
type Observation struct {
	ID               string          `json:"id" db:"id"`
	SourceSystem     string          `json:"source_system" db:"source_system"`
	SourceTable      string          `json:"source_table" db:"source_table"`
	SourceRowID      string          `json:"source_row_id" db:"source_row_id"`
	ObservationKind  ObservationKind `json:"observation_kind" db:"observation_kind"`
	FieldName        string          `json:"field_name" db:"field_name"`
	RawValue         string          `json:"raw_value" db:"raw_value"`
	Classification   json.RawMessage `json:"classification,omitempty" db:"classification"`
	ResolvedEntityID *string         `json:"resolved_entity_id,omitempty" db:"resolved_entity_id"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// Classification is the upstream classifier's verdict for a value,
// stored as provided and never recomputed here.
type Classification struct {
	Kind       string   `json:"kind"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons,omitempty"`
}

// RecordRef identifies one raw source record
type RecordRef struct {
	SourceSystem string `json:"source_system" db:"source_system"`
	SourceTable  string `json:"source_table" db:"source_table"`
	SourceRowID  string `json:"source_row_id" db:"source_row_id"`
}

func (r RecordRef) Key() string {
	return fmt.Sprintf("%s/%s/%s", r.SourceSystem, r.SourceTable, r.SourceRowID)
}

// Record returns the source record this observation came from
func (o *Observation) Record() RecordRef {
	return RecordRef{
		SourceSystem: o.SourceSystem,
		SourceTable:  o.SourceTable,
		SourceRowID:  o.SourceRowID,
	}
}

// CreateObservationRequest is the intake payload from the extraction
// collaborator. Safe to re-submit; duplicates on the uniqueness key are
// absorbed silently.
type CreateObservationRequest struct {
	SourceSystem    string          `json:"source_system" validate:"required"`
	SourceTable     string          `json:"source_table" validate:"required"`
	SourceRowID     string          `json:"source_row_id" validate:"required"`
	ObservationKind ObservationKind `json:"observation_kind" validate:"required"`
	FieldName       string          `json:"field_name" validate:"required"`
	RawValue        string          `json:"raw_value" validate:"required"`
	Classification  json.RawMessage `json:"classification,omitempty"`
}
