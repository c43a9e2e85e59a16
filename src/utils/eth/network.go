package eth

import (
	"strings"

	"github.com/dao-forum/reconciler/src/utils/config"

	"github.com/ethereum/go-ethereum/common"
)

const apiKeyPlaceholder = "{api_key}"

// Registry resolves network ids to endpoints. Networks absent from the
// configuration are rejected.
type Registry struct {
	networks map[int64]config.Network
	apiKey   string
}

func NewRegistry(chain *config.Chain) (self *Registry) {
	self = new(Registry)
	self.apiKey = chain.RpcApiKey
	self.networks = make(map[int64]config.Network, len(chain.Networks))
	for _, network := range chain.Networks {
		self.networks[network.Id] = network
	}
	return
}

func (self *Registry) get(id int64) (network config.Network, err error) {
	network, ok := self.networks[id]
	if !ok {
		err = configurationError("unknown network %d", id)
		return
	}
	return
}

// RpcUrl returns the endpoint with the secret substituted
func (self *Registry) RpcUrl(id int64) (url string, err error) {
	network, err := self.get(id)
	if err != nil {
		return
	}

	url = network.RpcUrl
	if url == "" {
		err = configurationError("no rpc url for network %d", id)
		return
	}

	if strings.Contains(url, apiKeyPlaceholder) {
		if self.apiKey == "" {
			err = configurationError("network %d requires an rpc api key", id)
			return
		}
		url = strings.ReplaceAll(url, apiKeyPlaceholder, self.apiKey)
	}
	return
}

func (self *Registry) FactoryAddress(id int64) (address common.Address, err error) {
	network, err := self.get(id)
	if err != nil {
		return
	}

	if !common.IsHexAddress(network.FactoryAddress) {
		err = configurationError("invalid factory address for network %d", id)
		return
	}
	address = common.HexToAddress(network.FactoryAddress)
	return
}
