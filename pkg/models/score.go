package models

import "encoding/json"

// Reason tags carried in score explanations. Tags are machine readable
// and stable; the review UI and the merge engine both key off them.
const (
	ReasonIdentifierConflict = "identifier_conflict"
	ReasonIdentifierMatch    = "identifier_match"
	ReasonTokenOverlap       = "token_overlap"
	ReasonPhoneticMatch      = "phonetic_match"
	ReasonSimilarityHigh     = "similarity_high"
	ReasonSimilarityMid      = "similarity_mid"
	ReasonSharedPlace        = "shared_place"
	ReasonSharedRecordLink   = "shared_record_link"
	ReasonSharedSourceRecord = "shared_source_record"
	ReasonSpeciesMatch       = "species_match"
)

// CorroborationReasons are the contextual signals that count as
// independent corroboration for auto-merge.
var CorroborationReasons = map[string]bool{
	ReasonSharedPlace:        true,
	ReasonSharedRecordLink:   true,
	ReasonSharedSourceRecord: true,
}

// ScoreExplanation is the structured output of scoring one pair. A bare
// score is never returned; reasons are ordered by evaluation and
// subscores hold the raw values behind each tag.
type ScoreExplanation struct {
	Score     float64            `json:"score"`
	Reasons   []string           `json:"reasons"`
	Subscores map[string]float64 `json:"subscores"`
}

// HasReason reports whether the explanation carries the given tag
func (e *ScoreExplanation) HasReason(tag string) bool {
	for _, r := range e.Reasons {
		if r == tag {
			return true
		}
	}
	return false
}

// HasCorroboration reports whether any contextual corroboration reason
// is present.
func (e *ScoreExplanation) HasCorroboration() bool {
	for _, r := range e.Reasons {
		if CorroborationReasons[r] {
			return true
		}
	}
	return false
}

// Marshal renders the explanation for candidate storage
func (e *ScoreExplanation) Marshal() json.RawMessage {
	b, err := json.Marshal(e)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

// UnmarshalExplanation parses a stored candidate explanation
func UnmarshalExplanation(raw json.RawMessage) (*ScoreExplanation, error) {
	var e ScoreExplanation
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
