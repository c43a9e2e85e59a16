package reconcile

import (
	"context"
	"fmt"

	"github.com/dao-forum/reconciler/src/confirm"
	"github.com/dao-forum/reconciler/src/utils/eth"
	"github.com/dao-forum/reconciler/src/utils/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Stores on-chain proposals that aren't known locally yet. A matching draft is
// bound to the on-chain id, otherwise a new ACTIVE proposal is created.
func (self *Service) discoverProposals(ctx context.Context, organization *model.Organization, client *eth.Client) (err error) {
	terminal, err := self.store.TerminalChainIds(ctx, organization.Id)
	if err != nil {
		return
	}

	service := confirm.NewProposalService(client, common.HexToAddress(organization.ContractSet.CoreAddress))
	proposals, err := service.GetProposals(ctx, terminal)
	if err != nil {
		return
	}

	for _, onchain := range proposals {
		err = self.discoverProposal(ctx, organization, service, onchain)
		if err != nil {
			return
		}
	}
	return
}

func (self *Service) discoverProposal(ctx context.Context, organization *model.Organization, service *confirm.ProposalService, onchain *eth.ProposalTuple) (err error) {
	existing, err := self.store.FindProposalByChainId(ctx, organization.Id, onchain.Id)
	if err != nil || existing != nil {
		return
	}

	log := self.organizationLog(organization).WithFields(logrus.Fields{
		"chain_proposal_id": onchain.Id,
		"type":              onchain.Type.String(),
	})

	data, err := service.GetType(ctx, onchain.Id, onchain.Type)
	if err != nil {
		return
	}

	payload, err := model.NewPayload(data.Fields())
	if err != nil {
		return
	}

	draft, err := self.store.FindMatchingDraft(ctx, organization.Id, uint8(onchain.Type), onchain.EndTime)
	if err != nil {
		return
	}
	if draft != nil {
		var bound bool
		bound, err = self.store.BindDraft(ctx, draft.Id, onchain.Id, payload)
		if err != nil {
			return
		}
		if bound {
			self.report.State.DraftsBound.Inc()
			log.WithField("proposal_id", draft.Id).Info("Draft bound to on-chain proposal")
			return
		}
	}

	chainId := onchain.Id
	proposal := &model.Proposal{
		OrganizationId:  organization.Id,
		ChainProposalId: &chainId,
		Type:            uint8(onchain.Type),
		Status:          model.ProposalStatusActive,
		EndTime:         onchain.EndTime,
		Payload:         payload,
	}
	err = self.store.CreateProposal(ctx, proposal)
	if isUniqueViolation(err) {
		log.Debug("Proposal discovered concurrently")
		return nil
	}
	if err != nil {
		return
	}

	self.report.State.ProposalsDiscovered.Inc()
	log.WithField("proposal_id", proposal.Id).Info("Discovered proposal")
	return
}

// Facts needed to apply the effects of an executed proposal, read before the transaction
type executionEffects struct {
	balances map[string]interface{}

	// Presale to create, nil when there's nothing to create
	presale *model.Presale

	// Presale contract completed by a withdraw proposal
	withdrawnPresale string
}

// Evaluates one ACTIVE proposal. All chain reads happen first, then every write is applied in one transaction.
func (self *Service) syncProposal(ctx context.Context, organization *model.Organization, client *eth.Client, id uint64) (err error) {
	proposal, err := self.store.GetProposal(ctx, id)
	if err != nil {
		return
	}

	log := self.organizationLog(organization).WithField("proposal_id", proposal.Id)

	if proposal.Status != model.ProposalStatusActive {
		log.WithField("status", proposal.Status).Debug("Proposal isn't active, skipping")
		return
	}
	if proposal.ChainProposalId == nil {
		log.Warn("Active proposal without on-chain id, skipping")
		return
	}
	chainId := *proposal.ChainProposalId
	log = log.WithField("chain_proposal_id", chainId)

	service := confirm.NewProposalService(client, common.HexToAddress(organization.ContractSet.CoreAddress))
	onchain, err := service.GetProposal(ctx, chainId)
	if err != nil {
		return
	}

	decision := Decide(proposal.EndTime, onchain, self.now(), self.config.Reconciler.ExecutionGracePeriod)
	switch decision.Outcome {
	case OutcomeDrift:
		self.report.State.DriftsDetected.Inc()
		log.WithFields(logrus.Fields{
			"local_end_time":   proposal.EndTime,
			"onchain_end_time": onchain.EndTime,
		}).Warn("End time differs from the chain, skipping")
		return
	case OutcomePending:
		log.WithField("end_time", onchain.EndTime).Debug("Voting still open")
		return
	}

	var votes []*eth.VoteCast
	if decision.SyncVotes() {
		votes, err = service.ReadVotes(ctx, chainId)
		if err != nil {
			return
		}
	}

	var effects *executionEffects
	if decision.Status == model.ProposalStatusExecuted {
		effects, err = self.gatherExecutionEffects(ctx, organization, client, service, proposal)
		if err != nil {
			return
		}
	}

	var (
		inserted     int64
		transitioned bool
		created      bool
		completed    bool
	)
	err = self.store.Transaction(ctx, func(tx *Store) (err error) {
		inserted, err = tx.InsertVotes(ctx, voteRows(proposal.Id, votes))
		if err != nil {
			return
		}

		if decision.Outcome != OutcomeTransition {
			return
		}

		transitioned, err = tx.TransitionProposal(ctx, proposal.Id, decision.Status,
			decimal.NewFromBigInt(onchain.ForVotes, 0),
			decimal.NewFromBigInt(onchain.AgainstVotes, 0))
		if err != nil || !transitioned || effects == nil {
			// Another sync got here first, its effects are already applied
			return
		}

		created, completed, err = self.applyExecutionEffects(ctx, tx, organization, effects)
		return
	})
	if err != nil {
		return
	}

	self.report.State.VotesInserted.Add(uint64(inserted))
	if inserted > 0 {
		log.WithField("count", inserted).Info("Inserted votes")
	}

	if !transitioned {
		if decision.Outcome == OutcomeAwaitingExecution {
			log.Debug("Voting ended, awaiting execution")
		}
		return
	}

	self.report.State.ProposalsTransitioned.Inc()
	log.WithFields(logrus.Fields{
		"status":        decision.Status,
		"for_votes":     onchain.ForVotes.String(),
		"against_votes": onchain.AgainstVotes.String(),
	}).Info("Proposal status changed")

	if effects != nil {
		self.report.State.TreasuriesUpdated.Inc()
	}
	if created {
		self.report.State.PresalesCreated.Inc()
		log.WithField("presale", effects.presale.PresaleContract).Info("Presale created")
	}
	if completed {
		self.report.State.PresalesCompleted.Inc()
		log.WithField("presale", effects.withdrawnPresale).Info("Presale completed by withdraw")
	}
	return
}

func voteRows(proposalId uint64, votes []*eth.VoteCast) (out []*model.Vote) {
	for _, vote := range votes {
		out = append(out, &model.Vote{
			ProposalId:   proposalId,
			VoterAddress: vote.Voter.Hex(),
			Support:      vote.Support,
			VotingPower:  decimal.NewFromBigInt(vote.VotingPower, 0),
		})
	}
	return
}

func (self *Service) gatherExecutionEffects(ctx context.Context, organization *model.Organization, client *eth.Client, service *confirm.ProposalService, proposal *model.Proposal) (out *executionEffects, err error) {
	contracts := organization.ContractSet
	out = new(executionEffects)

	balances, err := confirm.NewTreasuryService(client, common.HexToAddress(contracts.TreasuryAddress)).
		GetBalances(ctx, common.HexToAddress(contracts.TokenAddress))
	if err != nil {
		return
	}
	out.balances = make(map[string]interface{}, len(balances))
	for address, amount := range balances {
		out.balances[address.Hex()] = amount.String()
	}

	chainId := *proposal.ChainProposalId
	switch eth.ProposalType(proposal.Type) {
	case eth.ProposalTypePresale:
		out.presale, err = self.readNewPresale(ctx, organization, client, service, proposal)
	case eth.ProposalTypePresaleWithdraw:
		out.withdrawnPresale, err = self.readWithdrawnPresale(ctx, service, proposal, chainId)
	}
	return
}

// Reads the presale deployed by an executed presale proposal, nil if it shouldn't be created
func (self *Service) readNewPresale(ctx context.Context, organization *model.Organization, client *eth.Client, service *confirm.ProposalService, proposal *model.Proposal) (out *model.Presale, err error) {
	log := self.organizationLog(organization).WithField("proposal_id", proposal.Id)
	chainId := *proposal.ChainProposalId

	active, err := self.store.ActivePresale(ctx, organization.Id)
	if err != nil {
		return
	}
	if active != nil {
		log.WithField("presale", active.PresaleContract).Info("Organization already has an active presale, not creating another")
		return nil, nil
	}

	address, err := service.GetPresaleContract(ctx, chainId)
	if err != nil {
		return
	}
	if address == (common.Address{}) {
		log.Warn("Executed presale proposal has no presale contract")
		return nil, nil
	}

	data, err := service.GetType(ctx, chainId, eth.ProposalTypePresale)
	if err != nil {
		return
	}
	payload, ok := data.(*eth.PresalePayload)
	if !ok {
		return nil, fmt.Errorf("%w: presale proposal %d has %s payload", eth.ErrDecode, chainId, data.Type())
	}

	state, err := confirm.NewPresaleService(client).GetPresaleState(ctx, address)
	if err != nil {
		return
	}

	out = &model.Presale{
		OrganizationId:   organization.Id,
		ProposalId:       proposal.Id,
		PresaleContract:  address.Hex(),
		TotalTokenAmount: decimal.NewFromBigInt(payload.Amount, 0),
		InitialPrice:     decimal.NewFromBigInt(payload.InitialPrice, 0),
		Status:           model.PresaleStatusActive,
	}
	applyPresaleState(out, state)
	return
}

// Presale contract named in the payload of a withdraw proposal
func (self *Service) readWithdrawnPresale(ctx context.Context, service *confirm.ProposalService, proposal *model.Proposal, chainId uint64) (out string, err error) {
	fields, err := proposal.PayloadMap()
	if err != nil {
		return
	}
	if contract, ok := fields["presale_contract"].(string); ok && contract != "" {
		return contract, nil
	}

	// Payload wasn't stored, read it from the chain
	data, err := service.GetType(ctx, chainId, eth.ProposalTypePresaleWithdraw)
	if err != nil {
		return
	}
	payload, ok := data.(*eth.PresaleWithdrawPayload)
	if !ok {
		return "", fmt.Errorf("%w: presale withdraw proposal %d has %s payload", eth.ErrDecode, chainId, data.Type())
	}
	return payload.PresaleContract.Hex(), nil
}

func (self *Service) applyExecutionEffects(ctx context.Context, tx *Store, organization *model.Organization, effects *executionEffects) (created, completed bool, err error) {
	err = tx.UpsertTreasury(ctx, organization.Id, effects.balances)
	if err != nil {
		return
	}

	if effects.presale != nil {
		var active *model.Presale
		active, err = tx.ActivePresale(ctx, organization.Id)
		if err != nil {
			return
		}
		if active == nil {
			err = tx.CreatePresale(ctx, effects.presale)
			if err != nil {
				return
			}
			created = true
		}
	}

	if effects.withdrawnPresale != "" {
		completed, err = tx.CompletePresaleByContract(ctx, organization.Id, effects.withdrawnPresale)
		if err != nil {
			return
		}
		if !completed {
			self.organizationLog(organization).WithField("presale", effects.withdrawnPresale).Warn("No active presale to complete")
		}
	}
	return
}

func applyPresaleState(presale *model.Presale, state *eth.PresaleState) {
	presale.CurrentTier = decimal.NewFromBigInt(state.CurrentTier, 0)
	presale.CurrentPrice = decimal.NewFromBigInt(state.CurrentPrice, 0)
	presale.RemainingInTier = decimal.NewFromBigInt(state.RemainingInTier, 0)
	presale.TotalRemaining = decimal.NewFromBigInt(state.TotalRemaining, 0)
	presale.TotalRaised = decimal.NewFromBigInt(state.TotalRaised, 0)
	if state.IsCompleted() {
		presale.Status = model.PresaleStatusCompleted
	}
}

// Pulls the live state of every active presale. Sold out presales become COMPLETED.
func (self *Service) refreshPresales(ctx context.Context, organization *model.Organization, client *eth.Client) (err error) {
	presales, err := self.store.ActivePresales(ctx, organization.Id)
	if err != nil {
		return
	}

	service := confirm.NewPresaleService(client)
	for _, presale := range presales {
		var state *eth.PresaleState
		state, err = service.GetPresaleState(ctx, common.HexToAddress(presale.PresaleContract))
		if err != nil {
			return
		}

		applyPresaleState(presale, state)

		_, err = self.store.UpdatePresaleState(ctx, presale)
		if err != nil {
			return
		}

		if presale.Status == model.PresaleStatusCompleted {
			self.report.State.PresalesCompleted.Inc()
			self.organizationLog(organization).WithField("presale", presale.PresaleContract).Info("Presale sold out")
		}
	}
	return
}
