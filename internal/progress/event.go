// Package progress defines the event structures emitted during a crawl run.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageRunDone       Stage = "RUN_DONE"
	StageCategoryStart Stage = "CATEGORY_START"
	StageCategoryDone  Stage = "CATEGORY_DONE"
	StagePageDone      Stage = "PAGE_DONE"
	StagePageError     Stage = "PAGE_ERROR"
	StageRecordWritten Stage = "RECORD_WRITTEN"
	StageRecordError   Stage = "RECORD_ERROR"
	StageRecordDropped Stage = "RECORD_DROPPED"
	StageImageSaved    Stage = "IMAGE_SAVED"
	StageImageSkipped  Stage = "IMAGE_SKIPPED"
	StageImageError    Stage = "IMAGE_ERROR"
	StageSchemaDrift   Stage = "SCHEMA_DRIFT"
)

// Components reported on SCHEMA_DRIFT events.
const (
	ComponentPagination = "pagination"
	ComponentListing    = "listing"
	ComponentDetail     = "detail"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for fetch completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single unit of crawl progress.
type Event struct {
	// RunID identifies the crawl run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Category scopes every non-run event.
	Category string
	// Page is the listing page number, when relevant.
	Page int
	// URL is the listing, detail, or image URL the event concerns.
	URL string
	// Bytes carries the downloaded size for image events.
	Bytes int64
	// StatusClass groups HTTP response codes for failed fetches.
	StatusClass StatusClass
	// Dur captures execution latency for pages and categories.
	Dur time.Duration
	// Component names the extractor stage on SCHEMA_DRIFT events.
	Component string
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageCategoryStart, StageCategoryDone,
		StagePageDone, StagePageError,
		StageRecordWritten, StageRecordError, StageRecordDropped,
		StageImageSaved, StageImageSkipped, StageImageError:
		if e.Category == "" {
			return fmt.Errorf("%s requires category", e.Stage)
		}
	case StageSchemaDrift:
		if e.Category == "" {
			return errors.New("schema drift requires category")
		}
		if e.Component == "" {
			return errors.New("schema drift requires component")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ClassifyStatus groups HTTP status codes for fetch events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
