package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Variant is a target thumbnail size in pixels (longest edge).
type Variant int

const (
	VariantSmall  Variant = 96
	VariantMedium Variant = 240
	VariantLarge  Variant = 480
)

// Variants returns the enumerated sizes in ascending order.
func Variants() []Variant {
	return []Variant{VariantSmall, VariantMedium, VariantLarge}
}

func IsSupportedVariant(size int) bool {
	for _, v := range Variants() {
		if int(v) == size {
			return true
		}
	}
	return false
}

func ParseVariant(raw string) (Variant, error) {
	size, err := strconv.Atoi(raw)
	if err != nil || !IsSupportedVariant(size) {
		return 0, NewError(CodeInvalidVariant, fmt.Sprintf("unsupported variant %q", raw))
	}
	return Variant(size), nil
}

type VariantStatus string

const (
	VariantStatusQueued    VariantStatus = "queued"
	VariantStatusRendering VariantStatus = "rendering"
	VariantStatusDone      VariantStatus = "done"
	VariantStatusFailed    VariantStatus = "failed"
)

// VariantState tracks one variant inside a generation job. Sibling variants
// fail and succeed independently.
type VariantState struct {
	Variant   Variant       `json:"variant"`
	Status    VariantStatus `json:"status"`
	ErrorCode string        `json:"error_code,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Job is one generation effort for a (document, content version) pair.
// Multiple coalesced requesters may reference the same job.
type Job struct {
	ID          string
	DocumentID  string
	SourceHash  string
	SourcePath  string
	MimeType    string
	UserID      string
	HouseholdID string
	Variants    []VariantState
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (j *Job) VariantState(v Variant) (VariantState, bool) {
	for _, state := range j.Variants {
		if state.Variant == v {
			return state, true
		}
	}
	return VariantState{}, false
}

// Terminal reports whether every requested variant reached done or failed.
func (j *Job) Terminal() bool {
	for _, state := range j.Variants {
		if state.Status != VariantStatusDone && state.Status != VariantStatusFailed {
			return false
		}
	}
	return true
}

// Status aggregates the per-variant states into one job-level status.
func (j *Job) Status() VariantStatus {
	anyFailed := false
	anyRendering := false
	anyQueued := false
	for _, state := range j.Variants {
		switch state.Status {
		case VariantStatusFailed:
			anyFailed = true
		case VariantStatusRendering:
			anyRendering = true
		case VariantStatusQueued:
			anyQueued = true
		}
	}
	if anyRendering {
		return VariantStatusRendering
	}
	if anyQueued {
		return VariantStatusQueued
	}
	if anyFailed {
		return VariantStatusFailed
	}
	return VariantStatusDone
}

// QueueMessage is the transport format sent to queue backends.
type QueueMessage struct {
	JobID       string    `json:"job_id"`
	DocumentID  string    `json:"document_id"`
	SourceHash  string    `json:"source_hash"`
	SourcePath  string    `json:"source_path"`
	MimeType    string    `json:"mime_type"`
	Variants    []int     `json:"variants"`
	UserID      string    `json:"user_id"`
	HouseholdID string    `json:"household_id,omitempty"`
	Attempt     int       `json:"attempt"`
	RequestedAt time.Time `json:"requested_at"`
}

// Document is the read model served by the external document directory.
// This subsystem never mutates it.
type Document struct {
	ID           string
	OwnerID      string
	HouseholdID  string
	MimeType     string
	SourceHash   string
	StoragePath  string
	LastModified time.Time
}
