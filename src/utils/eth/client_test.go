package eth_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/dao-forum/reconciler/src/utils/config"
	"github.com/dao-forum/reconciler/src/utils/eth"
	"github.com/dao-forum/reconciler/src/utils/eth/ethtest"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const localNetwork = 1337

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

type ClientTestSuite struct {
	suite.Suite
	ctx     context.Context
	config  *config.Config
	backend *ethtest.Backend
}

func (s *ClientTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.config = config.Default()
	s.config.Chain.ConnectDelay = time.Millisecond
	s.config.Chain.CallDelay = time.Millisecond
	s.config.Chain.RequestsPerSecond = 0
	s.backend = ethtest.NewBackend(localNetwork)
}

func (s *ClientTestSuite) client() *eth.Client {
	return eth.NewClient(&s.config.Chain).
		WithNetwork(localNetwork).
		WithDialer(s.backend.Dialer())
}

func (s *ClientTestSuite) TestUnknownNetwork() {
	client := eth.NewClient(&s.config.Chain).WithNetwork(999).WithDialer(s.backend.Dialer())
	err := client.Connect(s.ctx)
	require.ErrorIs(s.T(), err, eth.ErrConfiguration)
	require.False(s.T(), eth.IsRetryable(err))
	require.Equal(s.T(), int64(0), s.backend.Dials.Load())
}

func (s *ClientTestSuite) TestMissingApiKey() {
	s.config.Chain.RpcApiKey = ""
	client := eth.NewClient(&s.config.Chain).WithNetwork(11155111).WithDialer(s.backend.Dialer())
	err := client.Connect(s.ctx)
	require.ErrorIs(s.T(), err, eth.ErrConfiguration)
	require.Equal(s.T(), int64(0), s.backend.Dials.Load())
}

func (s *ClientTestSuite) TestApiKeySubstitution() {
	s.config.Chain.RpcApiKey = "secret"
	url, err := eth.NewRegistry(&s.config.Chain).RpcUrl(11155111)
	require.Nil(s.T(), err)
	require.Equal(s.T(), "https://rpc.ankr.com/eth_sepolia/secret", url)
}

func (s *ClientTestSuite) TestFactoryAddress() {
	address, err := eth.NewRegistry(&s.config.Chain).FactoryAddress(localNetwork)
	require.Nil(s.T(), err)
	require.Equal(s.T(), common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"), address)

	_, err = eth.NewRegistry(&s.config.Chain).FactoryAddress(2)
	require.ErrorIs(s.T(), err, eth.ErrConfiguration)
}

func (s *ClientTestSuite) TestConnectExhaustion() {
	s.backend.ProbeErr = errors.New("probe failed")

	client := s.client()
	err := client.Connect(s.ctx)
	require.Error(s.T(), err)
	require.ErrorIs(s.T(), err, eth.ErrConnection)

	var connErr *eth.ConnectionError
	require.True(s.T(), errors.As(err, &connErr))
	require.Equal(s.T(), 3, connErr.Attempts)
	require.Equal(s.T(), int64(localNetwork), connErr.Network)
	require.Equal(s.T(), int64(3), s.backend.Dials.Load())
	require.Equal(s.T(), int64(3), s.backend.Probes.Load())

	// No usable client
	_, err = client.BlockNumber(s.ctx)
	require.Error(s.T(), err)
}

func (s *ClientTestSuite) TestConnectAttemptsFromConfig() {
	s.config.Chain.ConnectAttempts = 5
	s.backend.DialErr = errors.New("refused")

	err := s.client().Connect(s.ctx)
	var connErr *eth.ConnectionError
	require.True(s.T(), errors.As(err, &connErr))
	require.Equal(s.T(), 5, connErr.Attempts)
	require.Equal(s.T(), int64(5), s.backend.Dials.Load())
}

func (s *ClientTestSuite) TestLookbackWindow() {
	client := s.client()
	require.Nil(s.T(), client.Connect(s.ctx))

	from, to, err := client.LookbackWindow(s.ctx)
	require.Nil(s.T(), err)
	require.Equal(s.T(), uint64(1_000_000), to)
	require.Equal(s.T(), uint64(900_000), from)

	require.Equal(s.T(), uint64(0), eth.LookbackStart(50, 100_000))
	require.Equal(s.T(), uint64(0), eth.LookbackStart(100_000, 100_000))
}

func (s *ClientTestSuite) TestCallRetriesTransientFailures() {
	client := s.client()
	require.Nil(s.T(), client.Connect(s.ctx))

	timeout := errors.New("timeout")
	s.backend.CallErr = timeout
	_, err := client.Call(s.ctx, eth.AbiToken, common.HexToAddress("0x01"), "totalSupply")
	require.ErrorIs(s.T(), err, timeout)
	require.ErrorIs(s.T(), err, eth.ErrConnection)
	require.True(s.T(), eth.IsRetryable(err))
	require.Equal(s.T(), int64(3), s.backend.Calls.Load())
}

func (s *ClientTestSuite) TestCallUnknownMethod() {
	client := s.client()
	require.Nil(s.T(), client.Connect(s.ctx))

	_, err := client.Call(s.ctx, eth.AbiToken, common.HexToAddress("0x01"), "mint")
	require.ErrorIs(s.T(), err, eth.ErrConfiguration)
	require.Equal(s.T(), int64(0), s.backend.Calls.Load())
}

func (s *ClientTestSuite) TestCallRoundTrip() {
	client := s.client()
	require.Nil(s.T(), client.Connect(s.ctx))

	token, err := client.Abi(eth.AbiToken)
	require.Nil(s.T(), err)

	address := common.HexToAddress("0x02")
	s.backend.Return(address, token, "totalSupply", big.NewInt(12345))

	out, err := client.Call(s.ctx, eth.AbiToken, address, "totalSupply")
	require.Nil(s.T(), err)

	supply, err := eth.DecodeBigInt(token, "totalSupply", out)
	require.Nil(s.T(), err)
	require.Equal(s.T(), int64(12345), supply.Int64())
}

func (s *ClientTestSuite) TestTransactionSender() {
	client := s.client()
	require.Nil(s.T(), client.Connect(s.ctx))

	tx, sender, err := s.backend.AddSignedTransaction()
	require.Nil(s.T(), err)

	got, err := client.TransactionSender(s.ctx, tx.Hash())
	require.Nil(s.T(), err)
	require.Equal(s.T(), sender, got)

	_, err = client.TransactionSender(s.ctx, common.HexToHash("0xdead"))
	require.ErrorIs(s.T(), err, eth.ErrNotFound)
}

func (s *ClientTestSuite) TestPoolReusesClient() {
	pool := eth.NewPool(&s.config.Chain).WithDialer(s.backend.Dialer())
	defer pool.Close()

	a, err := pool.Get(s.ctx, localNetwork)
	require.Nil(s.T(), err)
	b, err := pool.Get(s.ctx, localNetwork)
	require.Nil(s.T(), err)
	require.Same(s.T(), a, b)
	require.Equal(s.T(), int64(1), s.backend.Dials.Load())

	pool.Evict(a)
	require.True(s.T(), s.backend.Closed.Load())

	// Evicted client is dialed and probed again
	c, err := pool.Get(s.ctx, localNetwork)
	require.Nil(s.T(), err)
	require.NotSame(s.T(), a, c)
	require.Equal(s.T(), int64(2), s.backend.Dials.Load())

	// A stale client doesn't evict its replacement
	pool.Evict(a)
	d, err := pool.Get(s.ctx, localNetwork)
	require.Nil(s.T(), err)
	require.Same(s.T(), c, d)
	require.Equal(s.T(), int64(2), s.backend.Dials.Load())
}

func (s *ClientTestSuite) TestPoolRetriesFailedConnect() {
	pool := eth.NewPool(&s.config.Chain).WithDialer(s.backend.Dialer())
	defer pool.Close()

	s.backend.DialErr = errors.New("refused")
	_, err := pool.Get(s.ctx, localNetwork)
	require.ErrorIs(s.T(), err, eth.ErrConnection)

	s.backend.DialErr = nil
	client, err := pool.Get(s.ctx, localNetwork)
	require.Nil(s.T(), err)
	require.NotNil(s.T(), client)
}

func (s *ClientTestSuite) TestPoolConnectDoesNotBlockOtherNetworks() {
	s.config.Chain.RpcApiKey = "key"
	s.config.Chain.ConnectAttempts = 1

	localUrl, err := eth.NewRegistry(&s.config.Chain).RpcUrl(localNetwork)
	require.Nil(s.T(), err)

	// Mainnet endpoint hangs until released
	dialing := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	local := s.backend.Dialer()
	pool := eth.NewPool(&s.config.Chain).WithDialer(func(ctx context.Context, url string) (eth.Backend, error) {
		if url == localUrl {
			return local(ctx, url)
		}
		once.Do(func() { close(dialing) })
		<-release
		return nil, errors.New("refused")
	})

	cached, err := pool.Get(s.ctx, localNetwork)
	require.Nil(s.T(), err)

	connecting := make(chan error, 1)
	go func() {
		_, err := pool.Get(s.ctx, 1)
		connecting <- err
	}()
	<-dialing

	got := make(chan *eth.Client, 1)
	go func() {
		client, _ := pool.Get(s.ctx, localNetwork)
		got <- client
	}()

	select {
	case client := <-got:
		require.Same(s.T(), cached, client)
	case <-time.After(time.Second):
		close(release)
		s.FailNow("cached client waited for another network to connect")
	}

	close(release)
	require.ErrorIs(s.T(), <-connecting, eth.ErrConnection)
	pool.Close()
}

func (s *ClientTestSuite) TestPoolSharesConnectOutcome() {
	release := make(chan struct{})
	local := s.backend.Dialer()
	pool := eth.NewPool(&s.config.Chain).WithDialer(func(ctx context.Context, url string) (eth.Backend, error) {
		<-release
		return local(ctx, url)
	})
	defer pool.Close()

	var wg sync.WaitGroup
	clients := make([]*eth.Client, 4)
	for i := range clients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			clients[i], _ = pool.Get(s.ctx, localNetwork)
		}(i)
	}
	close(release)
	wg.Wait()

	for _, client := range clients {
		require.NotNil(s.T(), client)
		require.Same(s.T(), clients[0], client)
	}
	require.Equal(s.T(), int64(1), s.backend.Dials.Load())
}
