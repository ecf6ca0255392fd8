package models

// ResolutionResult itemizes one deterministic-resolution batch pass.
// Data-quality noise (invalid identifiers, over-deep chains, duplicate
// links) lands in Skipped rather than aborting the pass.
type ResolutionResult struct {
	ObservationsSeen   int `json:"observations_seen"`
	EntitiesCreated    int `json:"entities_created"`
	IdentifiersCreated int `json:"identifiers_created"`
	RecordsLinked      int `json:"records_linked"`
	AliasesAdded       int `json:"aliases_added"`
	Skipped            int `json:"skipped"`
	Conflicts          int `json:"conflicts"`
}

// Add folds another result into the receiver
func (r *ResolutionResult) Add(other ResolutionResult) {
	r.ObservationsSeen += other.ObservationsSeen
	r.EntitiesCreated += other.EntitiesCreated
	r.IdentifiersCreated += other.IdentifiersCreated
	r.RecordsLinked += other.RecordsLinked
	r.AliasesAdded += other.AliasesAdded
	r.Skipped += other.Skipped
	r.Conflicts += other.Conflicts
}

// CandidateRunResult itemizes one candidate-generation pass
type CandidateRunResult struct {
	EntitiesScanned    int `json:"entities_scanned"`
	PairsConsidered    int `json:"pairs_considered"`
	PairsGated         int `json:"pairs_gated"`
	PairsBlocked       int `json:"pairs_blocked"`
	CandidatesUpserted int `json:"candidates_upserted"`
}

// MergeRunResult itemizes one auto-merge pass
type MergeRunResult struct {
	CandidatesExamined int `json:"candidates_examined"`
	Merged             int `json:"merged"`
	Skipped            int `json:"skipped"`
	LeftOpen           int `json:"left_open"`
}

// SplitResult itemizes one split operation
type SplitResult struct {
	NewEntityID         string `json:"new_entity_id"`
	RecordsMigrated     int    `json:"records_migrated"`
	AliasesMigrated     int    `json:"aliases_migrated"`
	IdentifiersMigrated int    `json:"identifiers_migrated"`
	IdentifiersSkipped  int    `json:"identifiers_skipped"`
}
