// Package progress defines the event structures emitted by the admission engine.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/crawl-admission/internal/crawler"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages. One admission stage is emitted per attempt.
const (
	StageAdmitAdded     Stage = "ADMIT_ADDED"
	StageAdmitDuplicate Stage = "ADMIT_DUPLICATE"
	StageAdmitDenied    Stage = "ADMIT_DENIED"
	StageAdmitError     Stage = "ADMIT_ERROR"
	StageFetchRecorded  Stage = "FETCH_RECORDED"
)

// Event captures a single admission decision or fetch record.
type Event struct {
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Host is the candidate's lowercased host; empty when canonicalization failed.
	Host string
	// URL is the canonical key, or the raw input when it could not be parsed
	// (possibly empty for StageAdmitError).
	URL string
	// Depth of the candidate.
	Depth int
	// Reason qualifies denied and error stages.
	Reason crawler.Reason
	// Item is the queued record for StageAdmitAdded.
	Item *crawler.QueueItem
	// Dur is the time spent in store calls during the attempt.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.URL == "" && e.Stage != StageAdmitError {
		return errors.New("url is required")
	}
	switch e.Stage {
	case StageAdmitDuplicate, StageFetchRecorded:
	case StageAdmitAdded:
		if e.Item == nil {
			return errors.New("admit added requires item")
		}
	case StageAdmitDenied, StageAdmitError:
		if e.Reason == "" {
			return fmt.Errorf("%s requires reason", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// StageFor maps an outcome kind to its progress stage.
func StageFor(kind crawler.OutcomeKind) Stage {
	switch kind {
	case crawler.OutcomeAdded:
		return StageAdmitAdded
	case crawler.OutcomeDuplicate:
		return StageAdmitDuplicate
	case crawler.OutcomeDenied:
		return StageAdmitDenied
	default:
		return StageAdmitError
	}
}

// FromOutcome converts an admission outcome into an Event.
func FromOutcome(o crawler.Outcome, ts time.Time, storeDur time.Duration) Event {
	evt := Event{
		TS:     ts.UTC(),
		Stage:  StageFor(o.Kind),
		Host:   o.Candidate.Host,
		URL:    o.Candidate.Raw,
		Depth:  o.Candidate.Depth,
		Reason: o.Reason,
		Item:   o.Item,
		Dur:    storeDur,
	}
	if o.Candidate.Host != "" {
		evt.URL = o.Candidate.Key()
	}
	if o.Err != nil {
		evt.Note = o.Err.Error()
	}
	return evt
}
