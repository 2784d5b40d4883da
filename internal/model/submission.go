package model

import "time"

// SubmissionStatus represents the lifecycle state of an idea submission.
type SubmissionStatus string

const (
	StatusSubmitted  SubmissionStatus = "submitted"
	StatusValidated  SubmissionStatus = "validated"
	StatusSuperseded SubmissionStatus = "superseded"
)

// RefinementType describes how a child submission improves on its parent.
type RefinementType string

const (
	RefinementClarification      RefinementType = "clarification"
	RefinementTechnicalDepth     RefinementType = "technical_depth"
	RefinementExpansion          RefinementType = "expansion"
	RefinementPivot              RefinementType = "pivot"
	RefinementValidation         RefinementType = "validation"
	RefinementGeneralImprovement RefinementType = "general_improvement"
)

// ValidRefinementType reports whether t is one of the known refinement types.
func ValidRefinementType(t RefinementType) bool {
	switch t {
	case RefinementClarification, RefinementTechnicalDepth, RefinementExpansion,
		RefinementPivot, RefinementValidation, RefinementGeneralImprovement:
		return true
	}
	return false
}

// Submission is an immutable idea record. Only Status is mutable after
// creation; Text and CreatedAt never change.
type Submission struct {
	ID             string           `json:"id"`
	OwnerID        string           `json:"owner_id"`
	Text           string           `json:"text"`
	Confidence     *float64         `json:"confidence,omitempty"` // nil = undeclared
	Classification string           `json:"classification,omitempty"`
	Status         SubmissionStatus `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
}

// LineageEdge is a directed refinement link from a parent submission to the
// child that improves on it. Each child has at most one parent edge.
type LineageEdge struct {
	ID             string         `json:"id"`
	ParentID       string         `json:"parent_id"`
	ChildID        string         `json:"child_id"`
	RefinementType RefinementType `json:"refinement_type"`
	DepthIncrease  float64        `json:"depth_increase"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Outcome records a real-world validation result for a submission. At most
// one live Outcome exists per submission; re-validation replaces it.
type Outcome struct {
	ID            string    `json:"id"`
	SubmissionID  string    `json:"submission_id"`
	Result        float64   `json:"result"` // [0,1], how right the idea proved
	Source        string    `json:"source"`
	AccuracyScore float64   `json:"accuracy_score"`
	ValidatedAt   time.Time `json:"validated_at"`
}

// CreditLedgerEntry is decayed credit applied to an ancestor submission when
// a descendant is validated. Entries are additive over distinct descendants
// and never touch the ancestor's own direct accuracy score.
type CreditLedgerEntry struct {
	ID                 string    `json:"id"`
	SubmissionID       string    `json:"submission_id"`        // ancestor receiving credit
	SourceDescendantID string    `json:"source_descendant_id"` // validated descendant
	CreditedAmount     float64   `json:"credited_amount"`
	AppliedAt          time.Time `json:"applied_at"`
}

// Profile is the derived per-owner accuracy and reputation summary. It is
// fully recomputable from outcomes, edges, and the credit ledger.
type Profile struct {
	OwnerID          string    `json:"owner_id"`
	AccuracyRate     float64   `json:"accuracy_rate"`
	CalibrationScore float64   `json:"calibration_score"`
	ReputationScore  float64   `json:"reputation_score"`
	MeanDaysEarly    float64   `json:"mean_days_early"`
	TotalValidated   int       `json:"total_validated"`
	CreditedTotal    float64   `json:"credited_total"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// AncestorStep is one hop of an ancestor walk, nearest parent first.
type AncestorStep struct {
	Edge     LineageEdge `json:"edge"`
	Ancestor Submission  `json:"ancestor"`
	Distance int         `json:"distance"` // 1 = direct parent
}

// CapsuleEntry is one chronological row of an owner's time capsule.
type CapsuleEntry struct {
	Submission    Submission   `json:"submission"`
	Outcome       *Outcome     `json:"outcome,omitempty"`
	AccuracyScore *float64     `json:"accuracy_score,omitempty"`
	ParentEdge    *LineageEdge `json:"parent_edge,omitempty"`
	ChildCount    int          `json:"child_count"`
}
