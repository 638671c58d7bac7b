// Package experiment defines the domain model for split tests: experiments,
// their variants, subject enrollments, and behavioral events.
package experiment

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// Scope tags identify what kind of treatment an experiment splits. The engine
// does not interpret them; callers use them to partition their experiments.
const (
	ScopeAutomationStep    = "automation-step"
	ScopePostPurchaseOffer = "post-purchase-offer"
)

type Experiment struct {
	ID              string
	Name            string
	Scope           string
	Status          Status
	Seed            int64 // salt for deterministic assignment draws
	WinnerVariantID *string
	Variants        []Variant
	CreatedAt       time.Time
	StartedAt       *time.Time
	EndedAt         *time.Time
}

// Variant is one treatment arm. Weight is relative, not normalized; weights
// are normalized at assignment time so arms can be reweighted between runs.
// Payload is an opaque blob owned by the caller (email subject/body, offer
// terms) and is never interpreted here.
type Variant struct {
	ID           string
	ExperimentID string
	Name         string
	Weight       float64
	IsControl    bool
	Payload      json.RawMessage
}

// Enrollment records that a subject was assigned a variant. At most one
// enrollment exists per (experiment, subject); the assigned variant is
// immutable once written.
type Enrollment struct {
	ID           string
	ExperimentID string
	SubjectID    string
	VariantID    string
	AssignedAt   time.Time
}

type EventKind string

const (
	EventImpression EventKind = "impression"
	EventOpened     EventKind = "opened"
	EventClicked    EventKind = "clicked"
	EventConverted  EventKind = "converted"
)

// ValidKind reports whether k is a recognized event kind.
func ValidKind(k EventKind) bool {
	switch k {
	case EventImpression, EventOpened, EventClicked, EventConverted:
		return true
	}
	return false
}

// Event is a behavioral signal tied to an enrollment. Value is only set for
// converted events (monetary value of the conversion).
type Event struct {
	EnrollmentID string
	Kind         EventKind
	OccurredAt   time.Time
	Value        *float64
}

// Control returns the control variant, or nil if none is designated.
func (e *Experiment) Control() *Variant {
	for i := range e.Variants {
		if e.Variants[i].IsControl {
			return &e.Variants[i]
		}
	}
	return nil
}

// TotalWeight sums the variant weights. Negative weights are rejected at
// creation time, so the sum is the normalization denominator for assignment.
func (e *Experiment) TotalWeight() float64 {
	total := 0.0
	for _, v := range e.Variants {
		total += v.Weight
	}
	return total
}

// ValidateForAssignment checks the invariants a Running experiment must hold
// before traffic can be split: at least one positive-weight variant and
// exactly one control.
func (e *Experiment) ValidateForAssignment() error {
	if e.Status != StatusRunning {
		return ErrNotRunning
	}
	if e.TotalWeight() <= 0 {
		return ErrInvalidConfig
	}
	controls := 0
	for _, v := range e.Variants {
		if v.IsControl {
			controls++
		}
	}
	if controls != 1 {
		return ErrInvalidConfig
	}
	return nil
}
