package confirm

import (
	"context"

	"github.com/dao-forum/reconciler/src/utils/eth"

	"github.com/ethereum/go-ethereum/common"
)

type PresaleService struct {
	client *eth.Client
}

func NewPresaleService(client *eth.Client) (self *PresaleService) {
	self = new(PresaleService)
	self.client = client
	return
}

// GetPresaleState reads tier, price and remaining amounts of a presale contract
func (self *PresaleService) GetPresaleState(ctx context.Context, presale common.Address) (out *eth.PresaleState, err error) {
	contract, err := self.client.Abi(eth.AbiPresale)
	if err != nil {
		return
	}

	output, err := self.client.Call(ctx, eth.AbiPresale, presale, "getPresaleState")
	if err != nil {
		return
	}
	return eth.DecodePresaleState(contract, output)
}
