package policy

// stateTable lists the legal successors of each state.
type stateTable[S comparable] map[S][]S

func (t stateTable[S]) allows(from, to S) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

type MetadataState uint8

const (
	MetadataStarted MetadataState = iota
	MetadataActive
	MetadataFinished
)

func (s MetadataState) String() string {
	switch s {
	case MetadataStarted:
		return "Started"
	case MetadataActive:
		return "Active"
	case MetadataFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}

var metadataTransitions = stateTable[MetadataState]{
	MetadataStarted: {MetadataActive, MetadataFinished},
	MetadataActive:  {MetadataFinished},
}

type ApplicationState uint8

const (
	ApplicationApplied ApplicationState = iota
	ApplicationRevoked
	ApplicationUnderwritten
	ApplicationDeclined
)

func (s ApplicationState) String() string {
	switch s {
	case ApplicationApplied:
		return "Applied"
	case ApplicationRevoked:
		return "Revoked"
	case ApplicationUnderwritten:
		return "Underwritten"
	case ApplicationDeclined:
		return "Declined"
	default:
		return "Unknown"
	}
}

var applicationTransitions = stateTable[ApplicationState]{
	ApplicationApplied: {ApplicationUnderwritten, ApplicationDeclined, ApplicationRevoked},
}

type PolicyState uint8

const (
	PolicyActive PolicyState = iota
	PolicyExpired
	PolicyClosed
)

func (s PolicyState) String() string {
	switch s {
	case PolicyActive:
		return "Active"
	case PolicyExpired:
		return "Expired"
	case PolicyClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

var policyTransitions = stateTable[PolicyState]{
	PolicyActive:  {PolicyExpired},
	PolicyExpired: {PolicyClosed},
}

type ClaimState uint8

const (
	ClaimApplied ClaimState = iota
	ClaimConfirmed
	ClaimDeclined
	ClaimClosed
)

func (s ClaimState) String() string {
	switch s {
	case ClaimApplied:
		return "Applied"
	case ClaimConfirmed:
		return "Confirmed"
	case ClaimDeclined:
		return "Declined"
	case ClaimClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

var claimTransitions = stateTable[ClaimState]{
	ClaimApplied:   {ClaimConfirmed, ClaimDeclined},
	ClaimConfirmed: {ClaimClosed},
}

type PayoutState uint8

const (
	PayoutExpected PayoutState = iota
	PayoutPaidOut
)

func (s PayoutState) String() string {
	switch s {
	case PayoutExpected:
		return "Expected"
	case PayoutPaidOut:
		return "PaidOut"
	default:
		return "Unknown"
	}
}

var payoutTransitions = stateTable[PayoutState]{
	PayoutExpected: {PayoutPaidOut},
}
