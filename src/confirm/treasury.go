package confirm

import (
	"context"
	"math/big"

	"github.com/dao-forum/reconciler/src/utils/eth"

	"github.com/ethereum/go-ethereum/common"
)

// Reads balances held by an organization's treasury contract
type TreasuryService struct {
	client   *eth.Client
	treasury common.Address
}

func NewTreasuryService(client *eth.Client, treasury common.Address) (self *TreasuryService) {
	self = new(TreasuryService)
	self.client = client
	self.treasury = treasury
	return
}

func (self *TreasuryService) GetTokenBalance(ctx context.Context, token common.Address) (out *big.Int, err error) {
	contract, err := self.client.Abi(eth.AbiToken)
	if err != nil {
		return
	}

	output, err := self.client.Call(ctx, eth.AbiToken, token, "balanceOf", self.treasury)
	if err != nil {
		return
	}
	return eth.DecodeBigInt(contract, "balanceOf", output)
}

func (self *TreasuryService) GetNativeBalance(ctx context.Context) (*big.Int, error) {
	return self.client.BalanceAt(ctx, self.treasury)
}

// GetBalances returns the governance token and the native asset balances,
// keyed by token address. The native asset uses the zero address.
func (self *TreasuryService) GetBalances(ctx context.Context, token common.Address) (out map[common.Address]*big.Int, err error) {
	tokenBalance, err := self.GetTokenBalance(ctx, token)
	if err != nil {
		return
	}

	nativeBalance, err := self.GetNativeBalance(ctx)
	if err != nil {
		return
	}

	out = map[common.Address]*big.Int{
		token:            tokenBalance,
		common.Address{}: nativeBalance,
	}
	return
}
