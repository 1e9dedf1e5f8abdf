package crawler

import "fmt"

// OutcomeKind enumerates the terminal results of an admission attempt.
type OutcomeKind string

// Outcome kinds; exactly one is produced per attempt.
const (
	OutcomeAdded     OutcomeKind = "added"
	OutcomeDuplicate OutcomeKind = "duplicate"
	OutcomeDenied    OutcomeKind = "denied"
	OutcomeError     OutcomeKind = "error"
)

// Reason qualifies Denied and Error outcomes.
type Reason string

// Denial reasons are expected policy results, not failures.
const (
	ReasonFetchConditionRejected Reason = "fetch_condition_rejected"
	ReasonDomainInvalid          Reason = "domain_invalid"
	ReasonNotYetEligible         Reason = "not_yet_eligible"
)

// Error causes are infrastructure or input failures.
const (
	ReasonMalformedURL     Reason = "malformed_url"
	ReasonStoreUnavailable Reason = "store_unavailable"
	ReasonInsertFailed     Reason = "insert_failed"
)

// Outcome is the single observable result of an admission attempt.
type Outcome struct {
	Kind      OutcomeKind
	Candidate CandidateURL
	// Item is set only for OutcomeAdded.
	Item   *QueueItem
	Reason Reason
	// Err carries the cause for OutcomeError and optional detail for denials.
	Err error
}

// Added reports a successful durable insert.
func Added(item QueueItem, candidate CandidateURL) Outcome {
	return Outcome{Kind: OutcomeAdded, Candidate: candidate, Item: &item}
}

// Duplicate reports a candidate already admitted in this run or in the store.
func Duplicate(candidate CandidateURL) Outcome {
	return Outcome{Kind: OutcomeDuplicate, Candidate: candidate}
}

// Denied reports a policy refusal.
func Denied(candidate CandidateURL, reason Reason, detail error) Outcome {
	return Outcome{Kind: OutcomeDenied, Candidate: candidate, Reason: reason, Err: detail}
}

// Failed reports an infrastructure or input error.
func Failed(candidate CandidateURL, reason Reason, cause error) Outcome {
	return Outcome{Kind: OutcomeError, Candidate: candidate, Reason: reason, Err: cause}
}

// String renders the outcome for logs.
func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeAdded, OutcomeDuplicate:
		return fmt.Sprintf("%s %s", o.Kind, o.Candidate.Key())
	default:
		return fmt.Sprintf("%s(%s) %s", o.Kind, o.Reason, o.Candidate.Raw)
	}
}
