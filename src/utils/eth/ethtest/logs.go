package ethtest

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EventLog builds a log of the named event. Indexed values go to topics, the rest is ABI encoded.
func EventLog(contractAbi *abi.ABI, eventName string, emitter common.Address, block uint64, txHash common.Hash, indexed []common.Hash, data ...interface{}) (log types.Log, err error) {
	event := contractAbi.Events[eventName]
	payload, err := event.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return
	}

	log = types.Log{
		Address:     emitter,
		Topics:      append([]common.Hash{event.ID}, indexed...),
		Data:        payload,
		BlockNumber: block,
		TxHash:      txHash,
	}
	return
}
