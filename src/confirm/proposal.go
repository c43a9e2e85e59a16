package confirm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/dao-forum/reconciler/src/utils/eth"
	"github.com/dao-forum/reconciler/src/utils/logger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// Answers questions about proposals and votes of one organization's core contract
type ProposalService struct {
	log    *logrus.Entry
	client *eth.Client
	core   common.Address
}

func NewProposalService(client *eth.Client, core common.Address) (self *ProposalService) {
	self = new(ProposalService)
	self.client = client
	self.core = core
	self.log = logger.NewSublogger("confirm-proposal").WithField("core", core)
	return
}

// GetProposalCount returns the highest proposal id, -1 if there are no proposals.
// The call is retried and only the last failure is returned.
func (self *ProposalService) GetProposalCount(ctx context.Context) (last int64, err error) {
	core, err := self.client.Abi(eth.AbiCore)
	if err != nil {
		return
	}

	output, err := self.client.Call(ctx, eth.AbiCore, self.core, "proposalCount")
	if err != nil {
		return
	}

	count, err := eth.DecodeBigInt(core, "proposalCount", output)
	if err != nil {
		return
	}

	if !count.IsInt64() {
		return 0, fmt.Errorf("%w: proposal count %s out of range", eth.ErrDecode, count)
	}
	last = count.Int64() - 1
	self.log.WithField("count", count).Debug("Proposal count")
	return
}

// GetProposal reads a single proposal tuple
func (self *ProposalService) GetProposal(ctx context.Context, id uint64) (out *eth.ProposalTuple, err error) {
	core, err := self.client.Abi(eth.AbiCore)
	if err != nil {
		return
	}

	output, err := self.client.Call(ctx, eth.AbiCore, self.core, "getProposal", new(big.Int).SetUint64(id))
	if err != nil {
		return
	}
	return eth.DecodeProposal(core, id, output)
}

// GetProposals enumerates proposals from the newest to id 0, skipping the excluded ids
func (self *ProposalService) GetProposals(ctx context.Context, excluded map[uint64]struct{}) (out []*eth.ProposalTuple, err error) {
	last, err := self.GetProposalCount(ctx)
	if err != nil {
		return
	}

	for id := last; id >= 0; id-- {
		if _, ok := excluded[uint64(id)]; ok {
			continue
		}

		var proposal *eth.ProposalTuple
		proposal, err = self.GetProposal(ctx, uint64(id))
		if err != nil {
			return nil, err
		}
		out = append(out, proposal)
	}
	return
}

// GetType reads the type specific data. Unknown discriminators give UnknownPayload without a call.
func (self *ProposalService) GetType(ctx context.Context, id uint64, t eth.ProposalType) (out eth.Payload, err error) {
	method, ok := t.PayloadMethod()
	if !ok {
		self.log.WithField("proposal_id", id).WithField("type", uint8(t)).Error("Invalid proposal type")
		return &eth.UnknownPayload{Discriminator: uint8(t)}, nil
	}

	core, err := self.client.Abi(eth.AbiCore)
	if err != nil {
		return
	}

	output, err := self.client.Call(ctx, eth.AbiCore, self.core, method, new(big.Int).SetUint64(id))
	if err != nil {
		self.log.WithError(err).WithField("proposal_id", id).Error("Failed to get proposal data")
		return
	}
	return eth.DecodePayload(core, t, output)
}

// GetPresaleContract returns the presale deployed by an executed presale proposal.
// The zero address means there's none.
func (self *ProposalService) GetPresaleContract(ctx context.Context, id uint64) (out common.Address, err error) {
	core, err := self.client.Abi(eth.AbiCore)
	if err != nil {
		return
	}

	output, err := self.client.Call(ctx, eth.AbiCore, self.core, "getPresaleContract", new(big.Int).SetUint64(id))
	if err != nil {
		return
	}
	return eth.DecodeAddress(core, "getPresaleContract", output)
}

// ReadVotes returns votes cast on the proposal within the lookback window.
// Returns nil, not an empty slice, when there are none.
func (self *ProposalService) ReadVotes(ctx context.Context, id uint64) (out []*eth.VoteCast, err error) {
	core, err := self.client.Abi(eth.AbiCore)
	if err != nil {
		return
	}

	from, to, err := self.client.LookbackWindow(ctx)
	if err != nil {
		return
	}

	logs, err := self.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{self.core},
		Topics: [][]common.Hash{
			{core.Events[eth.EventVoteCast].ID},
			{eth.IntTopic(id)},
		},
	})
	if err != nil {
		return
	}

	for i := range logs {
		var vote *eth.VoteCast
		vote, err = eth.DecodeVoteCast(core, &logs[i])
		if err != nil {
			self.log.WithError(err).WithField("proposal_id", id).Error("Failed to decode vote")
			return nil, err
		}
		out = append(out, vote)
	}

	self.log.WithField("proposal_id", id).WithField("votes", len(out)).Debug("Read votes")
	return
}
