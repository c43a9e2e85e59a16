package config

import (
	"time"

	"github.com/spf13/viper"
)

// Network maps a chain id to its RPC endpoint and the DAO factory deployed there
type Network struct {
	Id int64

	// May contain the {api_key} placeholder, substituted with Chain.RpcApiKey
	RpcUrl string

	// Contract emitting the organization creation events
	FactoryAddress string
}

type Chain struct {
	// Networks the service is allowed to talk to
	Networks []Network

	// Secret for authenticated RPC providers
	RpcApiKey string

	// Connection attempts before giving up
	ConnectAttempts int

	// Fixed delay between connection attempts
	ConnectDelay time.Duration

	// Attempts for a single contract call or log query
	CallAttempts int

	// Fixed delay between call attempts
	CallDelay time.Duration

	// Timeout of a single RPC request
	RequestTimeout time.Duration

	// Max RPC requests per second per network, 0 is no limit
	RequestsPerSecond int

	// Number of blocks searched back for historical events
	LookbackBlocks uint64

	// Path to the ABI bundle, empty means the bundle compiled into the binary
	AbiBundlePath string

	// URL of the ABI bundle, takes precedence over AbiBundlePath
	AbiBundleUrl string
}

func setChainDefaults() {
	viper.SetDefault("Chain.Networks", []Network{
		{Id: 1, RpcUrl: "https://mainnet.infura.io/v3/{api_key}", FactoryAddress: "0x1A37E7D5594E3F6a990A412463803daFd7456f91"},
		{Id: 5, RpcUrl: "https://goerli.infura.io/v3/{api_key}", FactoryAddress: "0x1A37E7D5594E3F6a990A412463803daFd7456f91"},
		{Id: 10, RpcUrl: "https://optimism-mainnet.infura.io/v3/{api_key}", FactoryAddress: "0x1A37E7D5594E3F6a990A412463803daFd7456f91"},
		{Id: 56, RpcUrl: "https://bsc-dataseed.binance.org/", FactoryAddress: "0x1A37E7D5594E3F6a990A412463803daFd7456f91"},
		{Id: 137, RpcUrl: "https://polygon-mainnet.infura.io/v3/{api_key}", FactoryAddress: "0x1A37E7D5594E3F6a990A412463803daFd7456f91"},
		{Id: 42161, RpcUrl: "https://arbitrum-mainnet.infura.io/v3/{api_key}", FactoryAddress: "0x1A37E7D5594E3F6a990A412463803daFd7456f91"},
		{Id: 11155111, RpcUrl: "https://rpc.ankr.com/eth_sepolia/{api_key}", FactoryAddress: "0x72d90b94cbe0dC2cd111a1eb6e29d01b9CDC3B38"},
		{Id: 1337, RpcUrl: "http://127.0.0.1:8545", FactoryAddress: "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"},
	})
	viper.SetDefault("Chain.RpcApiKey", "")
	viper.SetDefault("Chain.ConnectAttempts", "3")
	viper.SetDefault("Chain.ConnectDelay", "2s")
	viper.SetDefault("Chain.CallAttempts", "3")
	viper.SetDefault("Chain.CallDelay", "2s")
	viper.SetDefault("Chain.RequestTimeout", "30s")
	viper.SetDefault("Chain.RequestsPerSecond", "20")
	viper.SetDefault("Chain.LookbackBlocks", "100000")
	viper.SetDefault("Chain.AbiBundlePath", "")
	viper.SetDefault("Chain.AbiBundleUrl", "")
}
