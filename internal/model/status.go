package model

import "fmt"

const (
	StatusPending   = "pending"
	StatusFetching  = "fetching"
	StatusAssessing = "assessing"
	StatusPromoting = "promoting"
	StatusClean     = "clean"
	StatusRejected  = "rejected"
	StatusFailed    = "failed"
)

var allowedTransitions = map[string]map[string]bool{
	"": {
		StatusPending: true,
	},
	StatusPending: {
		StatusFetching: true,
		StatusFailed:   true, // scratch allocation error
	},
	StatusFetching: {
		StatusFetching:  true, // bounded retry of a transient fetch failure
		StatusAssessing: true,
		StatusFailed:    true,
	},
	StatusAssessing: {
		StatusPromoting: true,
		StatusRejected:  true,
		StatusFailed:    true,
	},
	StatusPromoting: {
		StatusClean:  true,
		StatusFailed: true, // promotion conflict or storage error
	},
	StatusClean:    {},
	StatusRejected: {},
	StatusFailed:   {},
}

// IsTerminal reports whether a work item in the given status is done.
func IsTerminal(status string) bool {
	switch status {
	case StatusClean, StatusRejected, StatusFailed:
		return true
	default:
		return false
	}
}

func IsKnownStatus(status string) bool {
	_, ok := allowedTransitions[status]
	return ok
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func TransitionWorkItem(item *WorkItem, toStatus string, reason string) error {
	from := item.Status
	if !CanTransition(from, toStatus) {
		return fmt.Errorf("invalid work item transition: %q -> %q (accession=%s)", from, toStatus, item.Candidate.Accession)
	}
	item.Status = toStatus
	item.Reason = reason
	return nil
}
