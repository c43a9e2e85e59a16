package eth

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// On-chain proposal type discriminator
type ProposalType uint8

const (
	ProposalTypeTransfer ProposalType = iota
	ProposalTypeUpgrade
	ProposalTypePresale
	ProposalTypePresaleWithdraw
)

func (self ProposalType) String() string {
	switch self {
	case ProposalTypeTransfer:
		return "transfer"
	case ProposalTypeUpgrade:
		return "upgrade"
	case ProposalTypePresale:
		return "presale"
	case ProposalTypePresaleWithdraw:
		return "presale_withdraw"
	}
	return "unknown"
}

// Getter of the type specific data on the core contract
func (self ProposalType) PayloadMethod() (method string, ok bool) {
	switch self {
	case ProposalTypeTransfer:
		return "getTransferData", true
	case ProposalTypeUpgrade:
		return "getUpgradeData", true
	case ProposalTypePresale:
		return "getPresaleData", true
	case ProposalTypePresaleWithdraw:
		return "getPresaleWithdrawData", true
	}
	return "", false
}

func (self ProposalType) IsKnown() bool {
	_, ok := self.PayloadMethod()
	return ok
}

// Payload is the type specific part of a proposal. Implemented by
// TransferPayload, UpgradePayload, PresalePayload, PresaleWithdrawPayload and UnknownPayload.
type Payload interface {
	Type() ProposalType

	// JSON friendly representation, amounts as decimal strings
	Fields() map[string]interface{}
}

type TransferPayload struct {
	Token     common.Address
	Recipient common.Address
	Amount    *big.Int
}

func (self *TransferPayload) Type() ProposalType { return ProposalTypeTransfer }

func (self *TransferPayload) Fields() map[string]interface{} {
	return map[string]interface{}{
		"token":     self.Token.Hex(),
		"recipient": self.Recipient.Hex(),
		"amount":    self.Amount.String(),
	}
}

type UpgradePayload struct {
	Implementations []common.Address
	Version         string
}

func (self *UpgradePayload) Type() ProposalType { return ProposalTypeUpgrade }

func (self *UpgradePayload) Fields() map[string]interface{} {
	implementations := make([]string, 0, len(self.Implementations))
	for _, address := range self.Implementations {
		implementations = append(implementations, address.Hex())
	}
	return map[string]interface{}{
		"new_implementations": implementations,
		"new_version":         self.Version,
	}
}

type PresalePayload struct {
	Token        common.Address
	Amount       *big.Int
	InitialPrice *big.Int
}

func (self *PresalePayload) Type() ProposalType { return ProposalTypePresale }

func (self *PresalePayload) Fields() map[string]interface{} {
	return map[string]interface{}{
		"token":         self.Token.Hex(),
		"amount":        self.Amount.String(),
		"initial_price": self.InitialPrice.String(),
	}
}

type PresaleWithdrawPayload struct {
	PresaleContract common.Address
}

func (self *PresaleWithdrawPayload) Type() ProposalType { return ProposalTypePresaleWithdraw }

func (self *PresaleWithdrawPayload) Fields() map[string]interface{} {
	return map[string]interface{}{
		"presale_contract": self.PresaleContract.Hex(),
	}
}

// Discriminator outside of the known range. Carries no data.
type UnknownPayload struct {
	Discriminator uint8
}

func (self *UnknownPayload) Type() ProposalType { return ProposalType(self.Discriminator) }

func (self *UnknownPayload) Fields() map[string]interface{} {
	return map[string]interface{}{}
}

// DecodePayload decodes the output of the type specific getter
func DecodePayload(contract *abi.ABI, t ProposalType, output []byte) (out Payload, err error) {
	method, ok := t.PayloadMethod()
	if !ok {
		return &UnknownPayload{Discriminator: uint8(t)}, nil
	}

	r, err := unpack(contract, method, output)
	if err != nil {
		return
	}

	switch t {
	case ProposalTypeTransfer:
		out = &TransferPayload{
			Token:     r.address(),
			Recipient: r.address(),
			Amount:    r.bigInt(),
		}
	case ProposalTypeUpgrade:
		out = &UpgradePayload{
			Implementations: r.addresses(),
			Version:         r.string(),
		}
	case ProposalTypePresale:
		out = &PresalePayload{
			Token:        r.address(),
			Amount:       r.bigInt(),
			InitialPrice: r.bigInt(),
		}
	case ProposalTypePresaleWithdraw:
		out = &PresaleWithdrawPayload{
			PresaleContract: r.address(),
		}
	}

	if r.err != nil {
		return nil, r.err
	}
	return
}
