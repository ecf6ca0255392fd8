package models

import "time"

// IdentifierType is a strong-identifier class. (id_type, normalized
// value) is globally unique; this is the deterministic-matching
// backbone.
type IdentifierType string

const (
	IdentifierTypeEmail     IdentifierType = "email"
	IdentifierTypePhone     IdentifierType = "phone"
	IdentifierTypeMicrochip IdentifierType = "microchip"

	// IdentifierTypeStreetKey is a normalized street address used to
	// resolve place entities deterministically. Unlike the contact
	// identifiers it is not proof of non-identity: one place can carry
	// several street spellings that normalize differently.
	IdentifierTypeStreetKey IdentifierType = "street_key"
)

// ProofOfIdentity reports whether two entities holding differing values
// of this type are provably distinct. Street keys are lookup keys only.
func (t IdentifierType) ProofOfIdentity() bool {
	switch t {
	case IdentifierTypeEmail, IdentifierTypePhone, IdentifierTypeMicrochip:
		return true
	}
	return false
}

// IdentifierPriority orders identifier processing within a source
// record. Lower wins first, so email decides before phone when a record
// carries both.
func IdentifierPriority(t IdentifierType) int {
	switch t {
	case IdentifierTypeEmail:
		return 0
	case IdentifierTypePhone:
		return 1
	case IdentifierTypeMicrochip:
		return 2
	case IdentifierTypeStreetKey:
		return 3
	}
	return 99
}

// IdentifierKinds maps observation kinds to identifier types
var IdentifierKinds = map[ObservationKind]IdentifierType{
	ObservationKindEmail:         IdentifierTypeEmail,
	ObservationKindPhone:         IdentifierTypePhone,
	ObservationKindMicrochip:     IdentifierTypeMicrochip,
	ObservationKindStreetAddress: IdentifierTypeStreetKey,
}

// EntityTypeForIdentifier maps identifier types to the entity type they
// resolve. Microchips belong to animals, street keys to places, email
// and phone to people.
func EntityTypeForIdentifier(t IdentifierType) EntityType {
	switch t {
	case IdentifierTypeMicrochip:
		return EntityTypeAnimal
	case IdentifierTypeStreetKey:
		return EntityTypePlace
	}
	return EntityTypePerson
}

// StrongIdentifier attaches a normalized identifier value to an entity
// with full confidence.
type StrongIdentifier struct {
	ID              string         `json:"id" db:"id"`
	EntityID        string         `json:"entity_id" db:"entity_id"`
	IDType          IdentifierType `json:"id_type" db:"id_type"`
	NormalizedValue string         `json:"normalized_value" db:"normalized_value"`
	RawValue        string         `json:"raw_value" db:"raw_value"`
	SourceSystem    string         `json:"source_system" db:"source_system"`
	Confidence      float64        `json:"confidence" db:"confidence"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
}

// IdentifiersConflict reports whether two identifier sets hold
// differing values of the same proof-of-identity type, which makes the
// owning entities provably distinct.
func IdentifiersConflict(left, right []StrongIdentifier) bool {
	leftValues := valuesByType(left)
	rightValues := valuesByType(right)

	for idType, lv := range leftValues {
		if !idType.ProofOfIdentity() {
			continue
		}
		rv, ok := rightValues[idType]
		if !ok {
			continue
		}
		if !valuesIntersect(lv, rv) {
			return true
		}
	}
	return false
}

// IdentifiersAgree reports whether the two sets share a
// proof-of-identity value.
func IdentifiersAgree(left, right []StrongIdentifier) bool {
	leftValues := valuesByType(left)
	rightValues := valuesByType(right)

	for idType, lv := range leftValues {
		if !idType.ProofOfIdentity() {
			continue
		}
		if rv, ok := rightValues[idType]; ok && valuesIntersect(lv, rv) {
			return true
		}
	}
	return false
}

func valuesByType(identifiers []StrongIdentifier) map[IdentifierType]map[string]bool {
	out := make(map[IdentifierType]map[string]bool)
	for _, id := range identifiers {
		if out[id.IDType] == nil {
			out[id.IDType] = make(map[string]bool)
		}
		out[id.IDType][id.NormalizedValue] = true
	}
	return out
}

func valuesIntersect(a, b map[string]bool) bool {
	for v := range a {
		if b[v] {
			return true
		}
	}
	return false
}

// Alias is one observed name for an entity, tagged with the source
// record that contributed it. The most frequent valid alias becomes the
// display name.
type Alias struct {
	ID           string    `json:"id" db:"id"`
	EntityID     string    `json:"entity_id" db:"entity_id"`
	NameRaw      string    `json:"name_raw" db:"name_raw"`
	NameKey      string    `json:"name_key" db:"name_key"`
	SourceSystem string    `json:"source_system" db:"source_system"`
	SourceTable  string    `json:"source_table" db:"source_table"`
	SourceRowID  string    `json:"source_row_id" db:"source_row_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Record returns the source record that contributed the alias
func (a *Alias) Record() RecordRef {
	return RecordRef{
		SourceSystem: a.SourceSystem,
		SourceTable:  a.SourceTable,
		SourceRowID:  a.SourceRowID,
	}
}

// RecordLink ties a source record to the entity it resolved to, exactly
// once per entity type. Links are repointed wholesale on merge and
// migrated per subset on split.
type RecordLink struct {
	ID           string     `json:"id" db:"id"`
	EntityType   EntityType `json:"entity_type" db:"entity_type"`
	SourceSystem string     `json:"source_system" db:"source_system"`
	SourceTable  string     `json:"source_table" db:"source_table"`
	SourceRowID  string     `json:"source_row_id" db:"source_row_id"`
	EntityID     string     `json:"entity_id" db:"entity_id"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// Record returns the source record side of the link
func (l *RecordLink) Record() RecordRef {
	return RecordRef{
		SourceSystem: l.SourceSystem,
		SourceTable:  l.SourceTable,
		SourceRowID:  l.SourceRowID,
	}
}
