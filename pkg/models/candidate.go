package models

import (
	"encoding/json"
	"time"
)

// MatchCandidateStatus tracks the review lifecycle of a proposed pair
type MatchCandidateStatus string

const (
	MatchCandidateStatusOpen       MatchCandidateStatus = "open"
	MatchCandidateStatusAutoMerged MatchCandidateStatus = "auto_merged"
	MatchCandidateStatusAccepted   MatchCandidateStatus = "accepted"
	MatchCandidateStatusRejected   MatchCandidateStatus = "rejected"
	MatchCandidateStatusBlocked    MatchCandidateStatus = "blocked"
)

// MatchCandidate is a possible-duplicate pair. At most one row exists
// per ordered pair; LeftID is always the lexicographically smaller id.
type MatchCandidate struct {
	ID          string               `json:"id" db:"id"`
	EntityType  EntityType           `json:"entity_type" db:"entity_type"`
	LeftID      string               `json:"left_id" db:"left_id"`
	RightID     string               `json:"right_id" db:"right_id"`
	Score       float64              `json:"score" db:"score"`
	Explanation json.RawMessage      `json:"explanation" db:"explanation"`
	Status      MatchCandidateStatus `json:"status" db:"status"`
	CreatedAt   time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at" db:"updated_at"`
}

// OrderPair normalizes two entity ids into (left, right) with
// left < right so pair-keyed rows are direction independent.
func OrderPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// Verdict is an operator decision about a pair
type Verdict string

const (
	VerdictSame    Verdict = "same"
	VerdictNotSame Verdict = "not_same"
)

// MatchDecision is the single current verdict for a pair. Re-deciding
// overwrites the prior verdict; a not_same verdict permanently blocks
// candidate regeneration until overturned.
type MatchDecision struct {
	ID        string    `json:"id" db:"id"`
	LeftID    string    `json:"left_id" db:"left_id"`
	RightID   string    `json:"right_id" db:"right_id"`
	Verdict   Verdict   `json:"verdict" db:"verdict"`
	Note      string    `json:"note" db:"note"`
	DecidedBy string    `json:"decided_by" db:"decided_by"`
	DecidedAt time.Time `json:"decided_at" db:"decided_at"`
}

// MergeRule names what triggered a merge
type MergeRule string

const (
	MergeRuleAutoScore      MergeRule = "auto_score"
	MergeRuleOperatorAccept MergeRule = "operator_accept"
)

// MergeRecord is the append-only audit row for one merge. Undo toggles
// IsReverted; rows are never deleted.
type MergeRecord struct {
	ID         string     `json:"id" db:"id"`
	FromID     string     `json:"from_id" db:"from_id"`
	IntoID     string     `json:"into_id" db:"into_id"`
	Rule       MergeRule  `json:"rule" db:"rule"`
	Score      float64    `json:"score" db:"score"`
	IsReverted bool       `json:"is_reverted" db:"is_reverted"`
	RevertedAt *time.Time `json:"reverted_at,omitempty" db:"reverted_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// EngineSetting is one per-entity-type numeric tuning value
type EngineSetting struct {
	EntityType EntityType `json:"entity_type" db:"entity_type"`
	Key        string     `json:"key" db:"key"`
	Value      float64    `json:"value" db:"value"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}
