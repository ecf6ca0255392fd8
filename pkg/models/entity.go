// Package models defines the resolution domain types shared across
// repositories, engines, and routes.
package models

import "time"

// EntityType discriminates the three independent resolution domains
type EntityType string

const (
	EntityTypePerson EntityType = "person"
	EntityTypeAnimal EntityType = "animal"
	EntityTypePlace  EntityType = "place"
)

// AllEntityTypes lists the resolvable types in batch-pass order
var AllEntityTypes = []EntityType{EntityTypePerson, EntityTypeAnimal, EntityTypePlace}

func (t EntityType) Valid() bool {
	switch t {
	case EntityTypePerson, EntityTypeAnimal, EntityTypePlace:
		return true
	}
	return false
}

// Entity is a canonical entity. A non-nil MergedIntoID means the entity
// has been absorbed and is no longer canonical; evidence must resolve
// through the merge chain to the surviving entity.
type Entity struct {
	ID           string     `json:"id" db:"id"`
	EntityType   EntityType `json:"entity_type" db:"entity_type"`
	DisplayName  string     `json:"display_name" db:"display_name"`
	Species      *string    `json:"species,omitempty" db:"species"`
	MergedIntoID *string    `json:"merged_into_id,omitempty" db:"merged_into_id"`
	MergedAt     *time.Time `json:"merged_at,omitempty" db:"merged_at"`
	MergeReason  *string    `json:"merge_reason,omitempty" db:"merge_reason"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// IsMerged reports whether the entity has been absorbed into another
func (e *Entity) IsMerged() bool {
	return e.MergedIntoID != nil && *e.MergedIntoID != ""
}

// MaxChainDepth bounds canonical chain traversal. Chains deeper than
// this indicate pathological data; traversal stops at the last node
// visited instead of erroring.
const MaxChainDepth = 10

// FollowMergeChain walks merge pointers from start through get until it
// reaches a canonical entity, taking at most MaxChainDepth hops. It
// returns the last entity visited and whether the walk stopped at the
// depth bound. A pointer at a missing entity ends the walk on the
// current node; callers can detect both cases because the returned
// entity still reports IsMerged.
func FollowMergeChain(start *Entity, get func(id string) (*Entity, error)) (*Entity, bool, error) {
	current := start
	for depth := 0; current.IsMerged(); depth++ {
		if depth >= MaxChainDepth {
			return current, true, nil
		}
		next, err := get(*current.MergedIntoID)
		if err != nil {
			return nil, false, err
		}
		if next == nil {
			return current, false, nil
		}
		current = next
	}
	return current, false, nil
}
