package tourist

// ChainStatus is the consumer-facing summary of a tourist's ledger state.
type ChainStatus string

const (
	ChainStatusNotStarted         ChainStatus = "not_started"
	ChainStatusRegistering        ChainStatus = "registering"
	ChainStatusRegistrationFailed ChainStatus = "registration_failed"
	ChainStatusActive             ChainStatus = "active"
	ChainStatusUpdating           ChainStatus = "updating"
	ChainStatusUpdateFailed       ChainStatus = "update_failed"
)

// ChainSummary is what dashboards render for a tourist.
type ChainSummary struct {
	Status              ChainStatus
	Registered          bool
	Latest              *WorkItem
	LastConfirmedHandle string
}

// SummarizeChain derives the overall ledger state from the ordered work items.
func SummarizeChain(items []WorkItem) ChainSummary {
	if len(items) == 0 {
		return ChainSummary{Status: ChainStatusNotStarted}
	}

	s := ChainSummary{Latest: &items[len(items)-1]}
	registerOutstanding := false
	otherOutstanding := false
	for i := range items {
		w := &items[i]
		if w.Action == ActionRegister && w.Status == StatusConfirmed {
			s.Registered = true
		}
		if w.IsUnresolved() {
			if w.Action == ActionRegister {
				registerOutstanding = true
			} else {
				otherOutstanding = true
			}
		}
	}
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Status == StatusConfirmed && !items[i].IsOffChain() {
			s.LastConfirmedHandle = items[i].LedgerHandle
			break
		}
	}

	switch {
	case !s.Registered && registerOutstanding:
		s.Status = ChainStatusRegistering
	case !s.Registered:
		s.Status = ChainStatusRegistrationFailed
	case otherOutstanding:
		s.Status = ChainStatusUpdating
	case latestNonRegisterFailed(items):
		s.Status = ChainStatusUpdateFailed
	default:
		s.Status = ChainStatusActive
	}
	return s
}

func latestNonRegisterFailed(items []WorkItem) bool {
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Action != ActionRegister {
			return items[i].Status == StatusFailed
		}
	}
	return false
}

// DisplayStatus maps a single item status to the label shown to end users.
func DisplayStatus(s WorkItemStatus) string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSubmitted:
		return "processing"
	case StatusConfirmed:
		return "active"
	case StatusFailed:
		return "registration_failed"
	}
	return "unknown"
}
