package admission

// state is a step of one admission attempt. Transitions only move forward.
type state int

const (
	stateCanonicalize state = iota
	stateFilterCheck
	stateLocalDedupCheck
	stateEligibilityCheck
	stateDomainCheck
	stateDurableInsert
	stateDone
)

var stateNames = [...]string{
	stateCanonicalize:     "CANONICALIZE",
	stateFilterCheck:      "FILTER_CHECK",
	stateLocalDedupCheck:  "LOCAL_DEDUP_CHECK",
	stateEligibilityCheck: "ELIGIBILITY_CHECK",
	stateDomainCheck:      "DOMAIN_CHECK",
	stateDurableInsert:    "DURABLE_INSERT",
	stateDone:             "DONE",
}

func (s state) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}
