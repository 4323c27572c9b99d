package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type ExtractionStatus string

const (
	ExtractionIdle    ExtractionStatus = "idle"
	ExtractionQueued  ExtractionStatus = "queued"
	ExtractionRunning ExtractionStatus = "running"
	ExtractionDone    ExtractionStatus = "done"
	ExtractionFailed  ExtractionStatus = "failed"
)

func ParseExtractionStatus(s string) (ExtractionStatus, error) {
	switch st := ExtractionStatus(s); st {
	case ExtractionIdle, ExtractionQueued, ExtractionRunning, ExtractionDone, ExtractionFailed:
		return st, nil
	}
	return "", fmt.Errorf("extraction status %q: %w", s, ErrInvalid)
}

// Extraction steps, in run order.
const (
	StepPlaces    = "places"
	StepFirecrawl = "firecrawl"
	StepApify     = "apify"
)

type StepStatus string

const (
	StepDone    StepStatus = "done"
	StepSkipped StepStatus = "skipped"
	StepMiss    StepStatus = "miss"
	StepFailed  StepStatus = "failed"
)

type StepResult struct {
	Status StepStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
	At     time.Time  `json:"at"`
}

// Progress is the extraction_progress document.
type Progress struct {
	RunID      string                `json:"run_id"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt *time.Time            `json:"finished_at,omitempty"`
	Steps      map[string]StepResult `json:"steps"`
}

func (p Progress) JSON() json.RawMessage {
	b, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	return b
}

// ExtractionResult is everything one enrichment run writes back.
type ExtractionResult struct {
	Status          ExtractionStatus
	Progress        Progress
	Patch           ListingPatch
	PlacesOutput    json.RawMessage
	ApifyOutput     json.RawMessage
	FirecrawlOutput json.RawMessage
	Images          []Image
	FAQs            []FAQ
	Policies        []Policy
	FinishedAt      time.Time
}
