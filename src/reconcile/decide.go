package reconcile

import (
	"time"

	"github.com/dao-forum/reconciler/src/utils/eth"
	"github.com/dao-forum/reconciler/src/utils/model"
)

type Outcome int

const (
	// Stored end time differs from the on-chain one, nothing may change
	OutcomeDrift Outcome = iota

	// Voting is still open
	OutcomePending

	// Voting ended, votes are synced but the status stays ACTIVE
	OutcomeAwaitingExecution

	// Voting ended and the proposal leaves ACTIVE
	OutcomeTransition
)

func (self Outcome) String() string {
	switch self {
	case OutcomeDrift:
		return "drift"
	case OutcomePending:
		return "pending"
	case OutcomeAwaitingExecution:
		return "awaiting_execution"
	case OutcomeTransition:
		return "transition"
	}
	return "unknown"
}

type Decision struct {
	Outcome Outcome

	// Set only for OutcomeTransition
	Status model.ProposalStatus
}

// Votes are synced once voting has ended, whether or not the status changes
func (self Decision) SyncVotes() bool {
	return self.Outcome == OutcomeAwaitingExecution || self.Outcome == OutcomeTransition
}

// Decide evaluates the status machine of an ACTIVE proposal. It's pure, all chain facts are passed in.
// grace is the time after the voting end when an unexecuted proposal with votes is rejected, 0 disables it.
func Decide(localEndTime uint64, onchain *eth.ProposalTuple, now time.Time, grace time.Duration) Decision {
	if localEndTime != onchain.EndTime {
		return Decision{Outcome: OutcomeDrift}
	}

	end := time.Unix(int64(onchain.EndTime), 0)
	if now.Before(end) {
		return Decision{Outcome: OutcomePending}
	}

	switch {
	case onchain.HasNoParticipation():
		// Executed flag doesn't matter when nobody voted
		return Decision{Outcome: OutcomeTransition, Status: model.ProposalStatusFailed}
	case onchain.Executed:
		return Decision{Outcome: OutcomeTransition, Status: model.ProposalStatusExecuted}
	case grace > 0 && !now.Before(end.Add(grace)):
		return Decision{Outcome: OutcomeTransition, Status: model.ProposalStatusRejected}
	}

	return Decision{Outcome: OutcomeAwaitingExecution}
}
