package ethtest

import (
	"errors"
	"math/big"
	"sync"

	"github.com/dao-forum/reconciler/src/utils/eth"

	"github.com/ethereum/go-ethereum/common"
)

type Proposal struct {
	Type         uint8
	ForVotes     *big.Int
	AgainstVotes *big.Int
	EndTime      uint64
	Executed     bool

	// Values returned by the type specific getter
	Payload []interface{}

	// Returned by getPresaleContract
	PresaleContract common.Address
}

// Dao simulates the contracts deployed by the factory for one organization.
// State may be changed between calls, handlers read it on every call.
type Dao struct {
	mtx sync.Mutex

	backend *Backend
	abis    *eth.AbiRegistry

	Factory   common.Address
	Core      common.Address
	Token     common.Address
	Treasury  common.Address
	Staking   common.Address
	Initiator common.Address

	Name        string
	Version     string
	TokenName   string
	Symbol      string
	TotalSupply *big.Int

	TreasuryTokenBalance *big.Int

	proposals   []*Proposal
	stakes      map[common.Address]*big.Int
	votingPower map[common.Address]*big.Int
	presales    map[common.Address][]interface{}
}

// NewDao deploys a DAO whose addresses are derived from seed and emits its creation event
func NewDao(backend *Backend, abis *eth.AbiRegistry, factory common.Address, seed int64) (self *Dao, err error) {
	self = new(Dao)
	self.backend = backend
	self.abis = abis
	self.Factory = factory
	self.Core = common.BigToAddress(big.NewInt(seed*16 + 1))
	self.Token = common.BigToAddress(big.NewInt(seed*16 + 2))
	self.Treasury = common.BigToAddress(big.NewInt(seed*16 + 3))
	self.Staking = common.BigToAddress(big.NewInt(seed*16 + 4))
	self.Name = "Organization"
	self.Version = "1.0.0"
	self.TokenName = "Governance"
	self.Symbol = "GOV"
	self.TotalSupply, _ = new(big.Int).SetString("1000000000000000000000000000", 10)
	self.TreasuryTokenBalance = big.NewInt(0)
	self.stakes = make(map[common.Address]*big.Int)
	self.votingPower = make(map[common.Address]*big.Int)
	self.presales = make(map[common.Address][]interface{})

	factoryAbi, err := abis.Get(eth.AbiFactory)
	if err != nil {
		return
	}

	tx, sender, err := backend.AddSignedTransaction()
	if err != nil {
		return
	}
	self.Initiator = sender

	log, err := EventLog(factoryAbi, eth.EventOrganizationCreated, factory, backend.Height-10, tx.Hash(),
		[]common.Hash{eth.AddressTopic(self.Core), eth.AddressTopic(self.Token), eth.AddressTopic(self.Treasury)},
		self.Staking, self.Name, self.Version)
	if err != nil {
		return
	}
	backend.AddLog(log)

	err = self.registerHandlers()
	return
}

func (self *Dao) registerHandlers() (err error) {
	core, err := self.abis.Get(eth.AbiCore)
	if err != nil {
		return
	}
	token, err := self.abis.Get(eth.AbiToken)
	if err != nil {
		return
	}
	staking, err := self.abis.Get(eth.AbiStaking)
	if err != nil {
		return
	}

	self.backend.
		Handle(self.Core, core, "proposalCount", func([]interface{}) ([]interface{}, error) {
			self.mtx.Lock()
			defer self.mtx.Unlock()
			return []interface{}{big.NewInt(int64(len(self.proposals)))}, nil
		}).
		Handle(self.Core, core, "getProposal", self.withProposal(func(p *Proposal) []interface{} {
			return []interface{}{p.Type, p.ForVotes, p.AgainstVotes, new(big.Int).SetUint64(p.EndTime), p.Executed}
		})).
		Handle(self.Core, core, "getPresaleContract", self.withProposal(func(p *Proposal) []interface{} {
			return []interface{}{p.PresaleContract}
		}))

	payload := self.withProposal(func(p *Proposal) []interface{} { return p.Payload })
	for _, method := range []string{"getTransferData", "getUpgradeData", "getPresaleData", "getPresaleWithdrawData"} {
		self.backend.Handle(self.Core, core, method, payload)
	}

	self.backend.
		Handle(self.Token, token, "name", self.constant(func() interface{} { return self.TokenName })).
		Handle(self.Token, token, "symbol", self.constant(func() interface{} { return self.Symbol })).
		Handle(self.Token, token, "totalSupply", self.constant(func() interface{} { return self.TotalSupply })).
		Handle(self.Token, token, "balanceOf", func(args []interface{}) ([]interface{}, error) {
			self.mtx.Lock()
			defer self.mtx.Unlock()
			if args[0].(common.Address) == self.Treasury {
				return []interface{}{self.TreasuryTokenBalance}, nil
			}
			return []interface{}{big.NewInt(0)}, nil
		}).
		Handle(self.Staking, staking, "stakedAmount", self.perUser(self.stakes)).
		Handle(self.Staking, staking, "getVotingPower", self.perUser(self.votingPower))
	return
}

func (self *Dao) constant(f func() interface{}) Handler {
	return func([]interface{}) ([]interface{}, error) {
		self.mtx.Lock()
		defer self.mtx.Unlock()
		return []interface{}{f()}, nil
	}
}

func (self *Dao) perUser(values map[common.Address]*big.Int) Handler {
	return func(args []interface{}) ([]interface{}, error) {
		self.mtx.Lock()
		defer self.mtx.Unlock()
		v, ok := values[args[0].(common.Address)]
		if !ok {
			v = big.NewInt(0)
		}
		return []interface{}{v}, nil
	}
}

func (self *Dao) withProposal(f func(p *Proposal) []interface{}) Handler {
	return func(args []interface{}) ([]interface{}, error) {
		self.mtx.Lock()
		defer self.mtx.Unlock()
		id := args[0].(*big.Int)
		if !id.IsUint64() || id.Uint64() >= uint64(len(self.proposals)) {
			return nil, errors.New("execution reverted: invalid proposal")
		}
		return f(self.proposals[id.Uint64()]), nil
	}
}

// AddProposal stores the proposal under the next id
func (self *Dao) AddProposal(p *Proposal) (id uint64) {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	if p.ForVotes == nil {
		p.ForVotes = big.NewInt(0)
	}
	if p.AgainstVotes == nil {
		p.AgainstVotes = big.NewInt(0)
	}
	self.proposals = append(self.proposals, p)
	return uint64(len(self.proposals) - 1)
}

// Update changes a stored proposal
func (self *Dao) Update(id uint64, f func(p *Proposal)) {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	f(self.proposals[id])
}

// Vote emits a vote event
func (self *Dao) Vote(id uint64, voter common.Address, support bool, power *big.Int) (err error) {
	core, err := self.abis.Get(eth.AbiCore)
	if err != nil {
		return
	}

	log, err := EventLog(core, eth.EventVoteCast, self.Core, self.backend.Height-5, common.Hash{},
		[]common.Hash{eth.IntTopic(id), eth.AddressTopic(voter)}, support, power)
	if err != nil {
		return
	}
	self.backend.AddLog(log)
	return
}

func (self *Dao) SetStake(user common.Address, amount, votingPower *big.Int) {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	self.stakes[user] = amount
	self.votingPower[user] = votingPower
}

// SetPresaleState deploys or updates a presale contract
func (self *Dao) SetPresaleState(presale common.Address, tier, price, remainingInTier, totalRemaining, totalRaised int64) (err error) {
	contract, err := self.abis.Get(eth.AbiPresale)
	if err != nil {
		return
	}

	self.mtx.Lock()
	self.presales[presale] = []interface{}{big.NewInt(tier), big.NewInt(price), big.NewInt(remainingInTier), big.NewInt(totalRemaining), big.NewInt(totalRaised)}
	self.mtx.Unlock()

	self.backend.Handle(presale, contract, "getPresaleState", func([]interface{}) ([]interface{}, error) {
		self.mtx.Lock()
		defer self.mtx.Unlock()
		return self.presales[presale], nil
	})
	return
}
