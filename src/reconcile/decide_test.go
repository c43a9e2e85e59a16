package reconcile

import (
	"math/big"
	"testing"
	"time"

	"github.com/dao-forum/reconciler/src/utils/eth"
	"github.com/dao-forum/reconciler/src/utils/model"

	"github.com/stretchr/testify/require"
)

func tuple(endTime uint64, forVotes, againstVotes int64, executed bool) *eth.ProposalTuple {
	return &eth.ProposalTuple{
		ForVotes:     big.NewInt(forVotes),
		AgainstVotes: big.NewInt(againstVotes),
		EndTime:      endTime,
		Executed:     executed,
	}
}

func TestDecide(t *testing.T) {
	const grace = time.Hour
	end := uint64(1000)
	after := time.Unix(1001, 0)

	tests := []struct {
		name     string
		local    uint64
		onchain  *eth.ProposalTuple
		now      time.Time
		grace    time.Duration
		expected Decision
	}{
		{"drift, earlier local end", 999, tuple(end, 7, 2, true), after, grace, Decision{Outcome: OutcomeDrift}},
		{"drift, later local end", 1001, tuple(end, 0, 0, false), after, grace, Decision{Outcome: OutcomeDrift}},
		{"drift before end", 0, tuple(end, 1, 0, true), time.Unix(1, 0), grace, Decision{Outcome: OutcomeDrift}},
		{"voting open", end, tuple(end, 7, 2, true), time.Unix(999, 0), grace, Decision{Outcome: OutcomePending}},
		{"ends exactly now", end, tuple(end, 7, 2, true), time.Unix(1000, 0), grace, Decision{Outcome: OutcomeTransition, Status: model.ProposalStatusExecuted}},
		{"executed", end, tuple(end, 7, 2, true), after, grace, Decision{Outcome: OutcomeTransition, Status: model.ProposalStatusExecuted}},
		{"only against votes executed", end, tuple(end, 0, 3, true), after, grace, Decision{Outcome: OutcomeTransition, Status: model.ProposalStatusExecuted}},
		{"nobody voted", end, tuple(end, 0, 0, false), after, grace, Decision{Outcome: OutcomeTransition, Status: model.ProposalStatusFailed}},
		{"nobody voted but executed", end, tuple(end, 0, 0, true), after, grace, Decision{Outcome: OutcomeTransition, Status: model.ProposalStatusFailed}},
		{"awaiting execution", end, tuple(end, 3, 1, false), after, grace, Decision{Outcome: OutcomeAwaitingExecution}},
		{"grace elapsed", end, tuple(end, 3, 1, false), time.Unix(1000, 0).Add(grace), grace, Decision{Outcome: OutcomeTransition, Status: model.ProposalStatusRejected}},
		{"grace disabled", end, tuple(end, 3, 1, false), time.Unix(1000, 0).Add(1000 * time.Hour), 0, Decision{Outcome: OutcomeAwaitingExecution}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := Decide(tt.local, tt.onchain, tt.now, tt.grace)
			require.Equal(t, tt.expected, decision)
		})
	}
}

func TestDecideSyncVotes(t *testing.T) {
	require.False(t, Decision{Outcome: OutcomeDrift}.SyncVotes())
	require.False(t, Decision{Outcome: OutcomePending}.SyncVotes())
	require.True(t, Decision{Outcome: OutcomeAwaitingExecution}.SyncVotes())
	require.True(t, Decision{Outcome: OutcomeTransition, Status: model.ProposalStatusFailed}.SyncVotes())
}
