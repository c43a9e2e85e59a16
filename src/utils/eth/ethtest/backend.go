// Package ethtest provides an in-memory eth.Backend. Contract calls go through
// the real ABI codec so decoding paths run exactly as against a node.
package ethtest

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/dao-forum/reconciler/src/utils/eth"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/atomic"
)

type Handler func(args []interface{}) ([]interface{}, error)

type contract struct {
	abi      *abi.ABI
	handlers map[string]Handler
}

type Backend struct {
	mtx sync.Mutex

	ChainId int64
	Height  uint64

	// Returned by the capability probe and dialing
	ProbeErr error
	DialErr  error

	// Returned by every CallContract, overrides handlers
	CallErr error

	// Returned by every BalanceAt
	BalanceErr error

	logs         []types.Log
	contracts    map[common.Address]*contract
	balances     map[common.Address]*big.Int
	transactions map[common.Hash]*types.Transaction

	Dials  atomic.Int64
	Probes atomic.Int64
	Calls  atomic.Int64
	Closed atomic.Bool
}

func NewBackend(chainId int64) (self *Backend) {
	self = new(Backend)
	self.ChainId = chainId
	self.Height = 1_000_000
	self.contracts = make(map[common.Address]*contract)
	self.balances = make(map[common.Address]*big.Int)
	self.transactions = make(map[common.Hash]*types.Transaction)
	return
}

func (self *Backend) Dialer() eth.Dialer {
	return func(ctx context.Context, url string) (eth.Backend, error) {
		self.Dials.Inc()
		if self.DialErr != nil {
			return nil, self.DialErr
		}
		return self, nil
	}
}

// Handle registers the implementation of a view method of a contract deployed at address
func (self *Backend) Handle(address common.Address, contractAbi *abi.ABI, method string, handler Handler) *Backend {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	c, ok := self.contracts[address]
	if !ok {
		c = &contract{abi: contractAbi, handlers: make(map[string]Handler)}
		self.contracts[address] = c
	}
	c.handlers[method] = handler
	return self
}

// Return registers a method always returning the given values
func (self *Backend) Return(address common.Address, contractAbi *abi.ABI, method string, values ...interface{}) *Backend {
	return self.Handle(address, contractAbi, method, func([]interface{}) ([]interface{}, error) {
		return values, nil
	})
}

func (self *Backend) AddLog(log types.Log) *Backend {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	self.logs = append(self.logs, log)
	return self
}

func (self *Backend) SetBalance(address common.Address, balance *big.Int) *Backend {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	self.balances[address] = balance
	return self
}

// AddSignedTransaction stores a transaction signed by a fresh key and returns it with its sender
func (self *Backend) AddSignedTransaction() (tx *types.Transaction, sender common.Address, err error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return
	}
	tx, err = SignedTransaction(key, self.ChainId)
	if err != nil {
		return
	}

	self.mtx.Lock()
	defer self.mtx.Unlock()
	self.transactions[tx.Hash()] = tx
	sender = crypto.PubkeyToAddress(key.PublicKey)
	return
}

func SignedTransaction(key *ecdsa.PrivateKey, chainId int64) (*types.Transaction, error) {
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    0,
		GasPrice: big.NewInt(1),
		Gas:      21000,
		Value:    big.NewInt(0),
	})
	return types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(chainId)), key)
}

func (self *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	self.Probes.Inc()
	if self.ProbeErr != nil {
		return nil, self.ProbeErr
	}
	return big.NewInt(self.ChainId), nil
}

func (self *Backend) BlockNumber(ctx context.Context) (uint64, error) {
	if self.ProbeErr != nil {
		return 0, self.ProbeErr
	}
	return self.Height, nil
}

func (self *Backend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) (out []types.Log, err error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	for _, log := range self.logs {
		if matches(&q, &log) {
			out = append(out, log)
		}
	}
	return
}

func matches(q *ethereum.FilterQuery, log *types.Log) bool {
	if q.FromBlock != nil && log.BlockNumber < q.FromBlock.Uint64() {
		return false
	}
	if q.ToBlock != nil && log.BlockNumber > q.ToBlock.Uint64() {
		return false
	}

	if len(q.Addresses) > 0 {
		found := false
		for _, address := range q.Addresses {
			if address == log.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for i, alternatives := range q.Topics {
		if len(alternatives) == 0 {
			continue
		}
		if i >= len(log.Topics) {
			return false
		}
		found := false
		for _, topic := range alternatives {
			if topic == log.Topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (self *Backend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	self.Calls.Inc()
	if self.CallErr != nil {
		return nil, self.CallErr
	}
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errors.New("invalid call")
	}

	self.mtx.Lock()
	c, ok := self.contracts[*msg.To]
	self.mtx.Unlock()
	if !ok {
		return nil, fmt.Errorf("no contract at %s", msg.To)
	}

	method, err := c.abi.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}

	handler, ok := c.handlers[method.Name]
	if !ok {
		return nil, fmt.Errorf("execution reverted: %s not implemented", method.Name)
	}

	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}

	values, err := handler(args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(values...)
}

func (self *Backend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if self.BalanceErr != nil {
		return nil, self.BalanceErr
	}

	self.mtx.Lock()
	defer self.mtx.Unlock()

	balance, ok := self.balances[account]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(balance), nil
}

func (self *Backend) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	tx, ok := self.transactions[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return tx, false, nil
}

func (self *Backend) Close() {
	self.Closed.Store(true)
}
