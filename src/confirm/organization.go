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

// Everything needed to create an organization, as confirmed on chain
type InitialOrganizationData struct {
	eth.OrganizationCreated

	Network     int64
	Initiator   common.Address
	TokenName   string
	Symbol      string
	TotalSupply *big.Int
}

// Answers questions about an organization deployed through the factory
type OrganizationService struct {
	log    *logrus.Entry
	client *eth.Client
}

func NewOrganizationService(client *eth.Client) (self *OrganizationService) {
	self = new(OrganizationService)
	self.client = client
	self.log = logger.NewSublogger("confirm-organization").WithField("network", client.Network())
	return
}

// FetchInitialOrganizationData finds the creation event of the organization within
// the lookback window and reads its token metadata.
func (self *OrganizationService) FetchInitialOrganizationData(ctx context.Context, organization common.Address) (out *InitialOrganizationData, err error) {
	factory, err := self.client.Abi(eth.AbiFactory)
	if err != nil {
		return
	}

	factoryAddress, err := self.client.FactoryAddress()
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
		Addresses: []common.Address{factoryAddress},
		Topics: [][]common.Hash{
			{factory.Events[eth.EventOrganizationCreated].ID},
			{eth.AddressTopic(organization)},
		},
	})
	if err != nil {
		return
	}

	if len(logs) == 0 {
		self.log.WithField("organization", organization).WithField("from", from).WithField("to", to).Warn("No creation event in the lookback window")
		return nil, fmt.Errorf("%w: creation event of %s in blocks %d-%d", eth.ErrNotFound, organization, from, to)
	}
	if len(logs) > 1 {
		self.log.WithField("count", len(logs)).Warn("Multiple creation events, using the first one")
	}

	event, err := eth.DecodeOrganizationCreated(factory, &logs[0])
	if err != nil {
		return
	}

	out = &InitialOrganizationData{
		OrganizationCreated: *event,
		Network:             self.client.Network(),
	}

	out.Initiator, err = self.client.TransactionSender(ctx, event.TxHash)
	if err != nil {
		return nil, err
	}

	err = self.readToken(ctx, out)
	if err != nil {
		return nil, err
	}

	self.log.WithFields(logrus.Fields{
		"organization": out.Organization,
		"token":        out.Token,
		"treasury":     out.Treasury,
		"staking":      out.Staking,
		"initiator":    out.Initiator,
		"name":         out.Name,
	}).Info("Confirmed organization")
	return
}

func (self *OrganizationService) readToken(ctx context.Context, out *InitialOrganizationData) (err error) {
	token, err := self.client.Abi(eth.AbiToken)
	if err != nil {
		return
	}

	output, err := self.client.Call(ctx, eth.AbiToken, out.Token, "symbol")
	if err != nil {
		return
	}
	out.Symbol, err = eth.DecodeString(token, "symbol", output)
	if err != nil {
		return
	}

	output, err = self.client.Call(ctx, eth.AbiToken, out.Token, "name")
	if err != nil {
		return
	}
	out.TokenName, err = eth.DecodeString(token, "name", output)
	if err != nil {
		return
	}

	output, err = self.client.Call(ctx, eth.AbiToken, out.Token, "totalSupply")
	if err != nil {
		return
	}
	out.TotalSupply, err = eth.DecodeBigInt(token, "totalSupply", output)
	return
}

// Live read, never cached
func (self *OrganizationService) ReadStakedAmount(ctx context.Context, staking, user common.Address) (*big.Int, error) {
	return self.readStaking(ctx, staking, "stakedAmount", user)
}

// Live read, never cached
func (self *OrganizationService) ReadVotingPower(ctx context.Context, staking, user common.Address) (*big.Int, error) {
	return self.readStaking(ctx, staking, "getVotingPower", user)
}

func (self *OrganizationService) readStaking(ctx context.Context, staking common.Address, method string, user common.Address) (out *big.Int, err error) {
	contract, err := self.client.Abi(eth.AbiStaking)
	if err != nil {
		return
	}

	output, err := self.client.Call(ctx, eth.AbiStaking, staking, method, user)
	if err != nil {
		return
	}
	return eth.DecodeBigInt(contract, method, output)
}
