package reconcile

import (
	"context"

	"github.com/dao-forum/reconciler/src/confirm"
	"github.com/dao-forum/reconciler/src/utils/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CreateOrganization stores the organization and its contracts unless an organization
// with the same core address already exists, in which case the existing one is returned untouched.
// Safe to call concurrently: the unique core address decides which call wins.
func (self *Service) CreateOrganization(ctx context.Context, data *confirm.InitialOrganizationData) (organization *model.Organization, created bool, err error) {
	core := data.Organization.Hex()
	log := self.log.WithField("core", core).WithField("network", data.Network)

	organization, err = self.findOrganization(ctx, core)
	if err != nil || organization != nil {
		return
	}

	organization = &model.Organization{
		Name:         data.Name,
		TokenName:    data.TokenName,
		Symbol:       data.Symbol,
		TotalSupply:  decimal.NewFromBigInt(data.TotalSupply, 0),
		Version:      data.Version,
		OwnerAddress: data.Initiator.Hex(),
		Network:      data.Network,
	}
	contracts := &model.ContractSet{
		CoreAddress:     core,
		TokenAddress:    data.Token.Hex(),
		TreasuryAddress: data.Treasury.Hex(),
		StakingAddress:  data.Staking.Hex(),
	}

	err = self.store.CreateOrganization(ctx, organization, contracts)
	if isUniqueViolation(err) {
		// Someone else created it in the meantime
		log.WithError(err).Info("Organization created concurrently, looking it up again")
		var existing *model.Organization
		existing, err = self.findOrganization(ctx, core)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, ErrOrganizationNotFound
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	self.report.State.OrganizationsCreated.Inc()
	log.WithFields(logrus.Fields{
		"organization_id": organization.Id,
		"owner":           organization.OwnerAddress,
		"name":            organization.Name,
	}).Info("Organization created")

	return organization, true, nil
}

func (self *Service) findOrganization(ctx context.Context, core string) (organization *model.Organization, err error) {
	contracts, err := self.store.FindContractSetByCore(ctx, core)
	if err != nil || contracts == nil {
		return
	}
	return self.store.GetOrganization(ctx, contracts.OrganizationId)
}

// FetchAndCreate confirms the organization deployed at address on chain and creates it
func (self *Service) FetchAndCreate(ctx context.Context, network int64, address common.Address) (organization *model.Organization, created bool, err error) {
	// Skip the chain when it's already known
	organization, err = self.findOrganization(ctx, address.Hex())
	if err != nil || organization != nil {
		return
	}

	client, err := self.pool.Get(ctx, network)
	if err != nil {
		return
	}
	defer func() { self.evictOnFailure(client, err) }()

	data, err := confirm.NewOrganizationService(client).FetchInitialOrganizationData(ctx, address)
	if err != nil {
		return
	}

	return self.CreateOrganization(ctx, data)
}

// RefreshStake reads the user's current stake and voting power and stores them
func (self *Service) RefreshStake(ctx context.Context, slug string, user common.Address) (stake *model.Stake, err error) {
	organization, err := self.store.GetOrganizationBySlug(ctx, slug)
	if err != nil {
		return
	}

	client, contracts, err := self.connect(ctx, organization)
	if err != nil {
		return
	}
	defer func() { self.evictOnFailure(client, err) }()

	service := confirm.NewOrganizationService(client)
	staking := common.HexToAddress(contracts.StakingAddress)

	amount, err := service.ReadStakedAmount(ctx, staking, user)
	if err != nil {
		return
	}

	power, err := service.ReadVotingPower(ctx, staking, user)
	if err != nil {
		return
	}

	stake = &model.Stake{
		OrganizationId: organization.Id,
		UserAddress:    user.Hex(),
		Amount:         decimal.NewFromBigInt(amount, 0),
		VotingPower:    decimal.NewFromBigInt(power, 0),
	}
	err = self.store.UpsertStake(ctx, stake)
	if err != nil {
		return nil, err
	}

	self.report.State.StakesRefreshed.Inc()
	self.organizationLog(organization).WithField("user", stake.UserAddress).WithField("amount", stake.Amount).Debug("Stake refreshed")
	return
}
