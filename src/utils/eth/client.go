package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/dao-forum/reconciler/src/utils/config"
	"github.com/dao-forum/reconciler/src/utils/logger"
	"github.com/dao-forum/reconciler/src/utils/task"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
)

// Read-only subset of the JSON-RPC API. Implemented by *ethclient.Client.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	Close()
}

type Dialer func(ctx context.Context, url string) (Backend, error)

func DialEthClient(ctx context.Context, url string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Client is a connection to one network. All calls are retried with a fixed delay.
type Client struct {
	log      *logrus.Entry
	config   *config.Chain
	registry *Registry
	abis     *AbiRegistry
	dialer   Dialer
	limiter  ratelimit.Limiter

	network int64
	backend Backend
}

func NewClient(config *config.Chain) (self *Client) {
	self = new(Client)
	self.config = config
	self.log = logger.NewSublogger("eth-client")
	self.registry = NewRegistry(config)
	self.dialer = DialEthClient

	if config.RequestsPerSecond > 0 {
		self.limiter = ratelimit.New(config.RequestsPerSecond)
	} else {
		self.limiter = ratelimit.NewUnlimited()
	}
	return
}

func (self *Client) WithNetwork(network int64) *Client {
	self.network = network
	self.log = self.log.WithField("network", network)
	return self
}

func (self *Client) WithDialer(dialer Dialer) *Client {
	self.dialer = dialer
	return self
}

func (self *Client) WithAbiRegistry(abis *AbiRegistry) *Client {
	self.abis = abis
	return self
}

func (self *Client) Network() int64 {
	return self.network
}

// Connect resolves the endpoint and dials it until the capability probe passes.
// Configuration errors are returned immediately, exhaustion gives *ConnectionError.
func (self *Client) Connect(ctx context.Context) (err error) {
	if self.abis == nil {
		self.abis, err = defaultAbiRegistry()
		if err != nil {
			return
		}
	}

	url, err := self.registry.RpcUrl(self.network)
	if err != nil {
		return
	}

	attempts := 0
	err = task.NewRetry().
		WithContext(ctx).
		WithMaxAttempts(self.config.ConnectAttempts).
		WithDelay(self.config.ConnectDelay).
		WithOnError(func(err error, attempt int) {
			self.log.WithError(err).WithField("attempt", attempt).Warn("Connection attempt failed")
		}).
		Run(func() (err error) {
			attempts++
			self.backend, err = self.dial(ctx, url)
			return
		})
	if err != nil {
		self.log.WithError(err).WithField("attempts", attempts).Error("Failed to connect")
		return &ConnectionError{Network: self.network, Attempts: attempts, Err: err}
	}

	self.log.Info("Connection established")
	return
}

// Dials and checks the endpoint answers real calls
func (self *Client) dial(ctx context.Context, url string) (backend Backend, err error) {
	ctx, cancel := self.withTimeout(ctx)
	defer cancel()

	backend, err = self.dialer(ctx, url)
	if err != nil {
		return
	}

	chainId, err := backend.ChainID(ctx)
	if err != nil {
		backend.Close()
		return nil, err
	}

	_, err = backend.BlockNumber(ctx)
	if err != nil {
		backend.Close()
		return nil, err
	}

	if chainId.Cmp(big.NewInt(self.network)) != 0 {
		self.log.WithField("chain_id", chainId).Warn("Endpoint reports a different chain id")
	}
	return
}

func (self *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if self.config.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, self.config.RequestTimeout)
}

func (self *Client) retry(ctx context.Context, op string, f func(ctx context.Context) error) error {
	if self.backend == nil {
		return ErrConnection
	}

	attempts := 0
	err := task.NewRetry().
		WithContext(ctx).
		WithMaxAttempts(self.config.CallAttempts).
		WithDelay(self.config.CallDelay).
		WithIsRetryable(IsRetryable).
		WithOnError(func(err error, attempt int) {
			self.log.WithError(err).WithField("op", op).WithField("attempt", attempt).Warn("RPC call failed, retrying")
		}).
		Run(func() error {
			attempts++
			self.limiter.Take()
			ctx, cancel := self.withTimeout(ctx)
			defer cancel()
			return f(ctx)
		})
	if err != nil && IsRetryable(err) && ctx.Err() == nil {
		// Endpoint kept failing, the last failure stays in the chain
		return fmt.Errorf("%w: %s on network %d failed %d times: %w", ErrConnection, op, self.network, attempts, err)
	}
	return err
}

// Close releases the connection, calls in flight fail
func (self *Client) Close() {
	if self.backend != nil {
		self.backend.Close()
	}
}

func (self *Client) Abi(name string) (*abi.ABI, error) {
	if self.abis == nil {
		return nil, configurationError("abi registry not loaded")
	}
	return self.abis.Get(name)
}

func (self *Client) FactoryAddress() (common.Address, error) {
	return self.registry.FactoryAddress(self.network)
}

func (self *Client) BlockNumber(ctx context.Context) (height uint64, err error) {
	err = self.retry(ctx, "block_number", func(ctx context.Context) (err error) {
		height, err = self.backend.BlockNumber(ctx)
		return
	})
	return
}

// LookbackWindow returns the block range searched for historical events
func (self *Client) LookbackWindow(ctx context.Context) (from, to uint64, err error) {
	to, err = self.BlockNumber(ctx)
	if err != nil {
		return
	}
	from = LookbackStart(to, self.config.LookbackBlocks)
	return
}

func LookbackStart(height, lookback uint64) uint64 {
	if height < lookback {
		return 0
	}
	return height - lookback
}

// Call packs the arguments with the named descriptor and performs a static call.
// Returns the raw output; decoding is left to the caller.
func (self *Client) Call(ctx context.Context, contractName string, address common.Address, method string, args ...interface{}) (output []byte, err error) {
	contract, err := self.Abi(contractName)
	if err != nil {
		return
	}

	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, configurationError("cannot pack %s.%s: %v", contractName, method, err)
	}

	msg := ethereum.CallMsg{To: &address, Data: data}
	err = self.retry(ctx, method, func(ctx context.Context) (err error) {
		output, err = self.backend.CallContract(ctx, msg, nil)
		return
	})
	return
}

func (self *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) (logs []types.Log, err error) {
	err = self.retry(ctx, "filter_logs", func(ctx context.Context) (err error) {
		logs, err = self.backend.FilterLogs(ctx, query)
		return
	})
	return
}

// Native asset balance at the latest block
func (self *Client) BalanceAt(ctx context.Context, address common.Address) (balance *big.Int, err error) {
	err = self.retry(ctx, "balance", func(ctx context.Context) (err error) {
		balance, err = self.backend.BalanceAt(ctx, address, nil)
		return
	})
	return
}

func (self *Client) TransactionSender(ctx context.Context, hash common.Hash) (sender common.Address, err error) {
	var tx *types.Transaction
	err = self.retry(ctx, "transaction", func(ctx context.Context) (err error) {
		tx, _, err = self.backend.TransactionByHash(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return ErrNotFound
		}
		return
	})
	if err != nil {
		return
	}

	sender, err = types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return common.Address{}, decodeError(err, "sender of %s", hash)
	}
	return
}

// Pool keeps one connected client per network. Connecting to one network
// doesn't block clients of the other networks.
type Pool struct {
	config  *config.Chain
	abis    *AbiRegistry
	dialer  Dialer
	mtx     sync.Mutex
	clients map[int64]*poolEntry
	closed  bool
}

// Callers asking for the same network while it connects share the outcome
type poolEntry struct {
	ready  chan struct{}
	client *Client
	err    error
}

func NewPool(config *config.Chain) (self *Pool) {
	self = new(Pool)
	self.config = config
	self.dialer = DialEthClient
	self.clients = make(map[int64]*poolEntry)
	return
}

func (self *Pool) WithDialer(dialer Dialer) *Pool {
	self.dialer = dialer
	return self
}

func (self *Pool) WithAbiRegistry(abis *AbiRegistry) *Pool {
	self.abis = abis
	return self
}

// Get returns a connected client, connecting on first use
func (self *Pool) Get(ctx context.Context, network int64) (client *Client, err error) {
	self.mtx.Lock()
	if self.closed {
		self.mtx.Unlock()
		return nil, ErrConnection
	}
	entry, ok := self.clients[network]
	if !ok {
		entry = &poolEntry{ready: make(chan struct{})}
		self.clients[network] = entry
	}
	self.mtx.Unlock()

	if ok {
		select {
		case <-entry.ready:
			return entry.client, entry.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	entry.client, entry.err = self.connect(ctx, network)

	self.mtx.Lock()
	if entry.err == nil && self.closed {
		entry.client.Close()
		entry.client, entry.err = nil, ErrConnection
	}
	if entry.err != nil && self.clients[network] == entry {
		// Next Get tries again
		delete(self.clients, network)
	}
	self.mtx.Unlock()

	close(entry.ready)
	return entry.client, entry.err
}

func (self *Pool) connect(ctx context.Context, network int64) (client *Client, err error) {
	client = NewClient(self.config).
		WithNetwork(network).
		WithDialer(self.dialer).
		WithAbiRegistry(self.abis)
	err = client.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return
}

// Evict drops the client so the next Get dials and probes the endpoint again.
// Does nothing if the pool already holds a different client for that network.
func (self *Pool) Evict(client *Client) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	entry, ok := self.clients[client.Network()]
	if !ok || !entry.isReady() || entry.client != client {
		return
	}
	delete(self.clients, client.Network())
	client.Close()
}

func (self *Pool) Close() {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	self.closed = true
	for network, entry := range self.clients {
		// Connecting clients are closed once they finish
		if entry.isReady() && entry.client != nil {
			entry.client.Close()
		}
		delete(self.clients, network)
	}
}

func (self *poolEntry) isReady() bool {
	select {
	case <-self.ready:
		return true
	default:
		return false
	}
}
