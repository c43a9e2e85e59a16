package eth

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	EventOrganizationCreated = "DAOCreated"
	EventVoteCast            = "Voted"
)

type OrganizationCreated struct {
	Organization common.Address
	Token        common.Address
	Treasury     common.Address
	Staking      common.Address
	Name         string
	Version      string

	// Transaction that emitted the event, its sender is the initiator
	TxHash common.Hash
}

type VoteCast struct {
	ProposalId  *big.Int
	Voter       common.Address
	Support     bool
	VotingPower *big.Int
}

type ProposalTuple struct {
	Id           uint64
	Type         ProposalType
	ForVotes     *big.Int
	AgainstVotes *big.Int
	EndTime      uint64
	Executed     bool
}

// Nobody voted
func (self *ProposalTuple) HasNoParticipation() bool {
	return self.ForVotes.Sign() == 0 && self.AgainstVotes.Sign() == 0
}

type PresaleState struct {
	CurrentTier     *big.Int
	CurrentPrice    *big.Int
	RemainingInTier *big.Int
	TotalRemaining  *big.Int
	TotalRaised     *big.Int
}

func (self *PresaleState) IsCompleted() bool {
	return self.TotalRemaining.Sign() == 0
}

// Indexed topics are 32 byte slots, the address is in the last 20 bytes
func topicAddress(topic common.Hash) common.Address {
	return common.BytesToAddress(topic.Bytes()[common.HashLength-common.AddressLength:])
}

func checkTopics(contract *abi.ABI, eventName string, log *types.Log) (event abi.Event, err error) {
	event, ok := contract.Events[eventName]
	if !ok {
		err = configurationError("event %s missing in abi", eventName)
		return
	}

	indexed := 0
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed++
		}
	}

	if len(log.Topics) != indexed+1 {
		err = decodeError(errors.New("unexpected topic count"), "%s log %s", eventName, log.TxHash)
		return
	}
	if log.Topics[0] != event.ID {
		err = decodeError(errors.New("unexpected event signature"), "%s log %s", eventName, log.TxHash)
		return
	}
	return
}

func DecodeOrganizationCreated(contract *abi.ABI, log *types.Log) (out *OrganizationCreated, err error) {
	event, err := checkTopics(contract, EventOrganizationCreated, log)
	if err != nil {
		return
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, decodeError(err, "%s data", EventOrganizationCreated)
	}

	out = &OrganizationCreated{
		Organization: topicAddress(log.Topics[1]),
		Token:        topicAddress(log.Topics[2]),
		Treasury:     topicAddress(log.Topics[3]),
		TxHash:       log.TxHash,
	}

	r := newReader(EventOrganizationCreated, values)
	out.Staking = r.address()
	out.Name = r.string()
	out.Version = r.string()
	err = r.err
	if err != nil {
		return nil, err
	}
	return
}

func DecodeVoteCast(contract *abi.ABI, log *types.Log) (out *VoteCast, err error) {
	event, err := checkTopics(contract, EventVoteCast, log)
	if err != nil {
		return
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, decodeError(err, "%s data", EventVoteCast)
	}

	out = &VoteCast{
		ProposalId: log.Topics[1].Big(),
		Voter:      topicAddress(log.Topics[2]),
	}

	r := newReader(EventVoteCast, values)
	out.Support = r.bool()
	out.VotingPower = r.bigInt()
	err = r.err
	if err != nil {
		return nil, err
	}
	return
}

func DecodeProposal(contract *abi.ABI, id uint64, output []byte) (out *ProposalTuple, err error) {
	r, err := unpack(contract, "getProposal", output)
	if err != nil {
		return
	}

	out = &ProposalTuple{Id: id}
	out.Type = ProposalType(r.uint8())
	out.ForVotes = r.bigInt()
	out.AgainstVotes = r.bigInt()
	endTime := r.bigInt()
	out.Executed = r.bool()
	if r.err != nil {
		return nil, r.err
	}

	// Has to fit a unix timestamp
	if !endTime.IsInt64() {
		return nil, decodeError(errors.New("out of range"), "end time of proposal %d", id)
	}
	out.EndTime = endTime.Uint64()
	return
}

func DecodePresaleState(contract *abi.ABI, output []byte) (out *PresaleState, err error) {
	r, err := unpack(contract, "getPresaleState", output)
	if err != nil {
		return
	}

	out = &PresaleState{
		CurrentTier:     r.bigInt(),
		CurrentPrice:    r.bigInt(),
		RemainingInTier: r.bigInt(),
		TotalRemaining:  r.bigInt(),
		TotalRaised:     r.bigInt(),
	}
	if r.err != nil {
		return nil, r.err
	}
	return
}

// Single uint256 return value
func DecodeBigInt(contract *abi.ABI, method string, output []byte) (out *big.Int, err error) {
	r, err := unpack(contract, method, output)
	if err != nil {
		return
	}
	out = r.bigInt()
	return out, r.err
}

// Single string return value
func DecodeString(contract *abi.ABI, method string, output []byte) (out string, err error) {
	r, err := unpack(contract, method, output)
	if err != nil {
		return
	}
	out = r.string()
	return out, r.err
}

// Single address return value
func DecodeAddress(contract *abi.ABI, method string, output []byte) (out common.Address, err error) {
	r, err := unpack(contract, method, output)
	if err != nil {
		return
	}
	out = r.address()
	return out, r.err
}

func unpack(contract *abi.ABI, method string, output []byte) (r *reader, err error) {
	m, ok := contract.Methods[method]
	if !ok {
		return nil, configurationError("method %s missing in abi", method)
	}

	values, err := m.Outputs.Unpack(output)
	if err != nil {
		return nil, decodeError(err, "%s output", method)
	}
	return newReader(method, values), nil
}

// Positional reader over unpacked values. The first type mismatch is kept in err.
type reader struct {
	name   string
	values []interface{}
	pos    int
	err    error
}

func newReader(name string, values []interface{}) *reader {
	return &reader{name: name, values: values}
}

func (self *reader) next() (v interface{}) {
	if self.err != nil {
		return nil
	}
	if self.pos >= len(self.values) {
		self.err = decodeError(errors.New("missing field"), "%s field %d", self.name, self.pos)
		return nil
	}
	v = self.values[self.pos]
	self.pos++
	return
}

func (self *reader) fail(v interface{}, expected string) {
	if self.err == nil {
		self.err = decodeError(fmt.Errorf("got %T, expected %s", v, expected), "%s field %d", self.name, self.pos-1)
	}
}

func (self *reader) address() common.Address {
	v := self.next()
	out, ok := v.(common.Address)
	if !ok {
		self.fail(v, "address")
	}
	return out
}

func (self *reader) addresses() []common.Address {
	v := self.next()
	out, ok := v.([]common.Address)
	if !ok {
		self.fail(v, "address[]")
	}
	return out
}

func (self *reader) string() string {
	v := self.next()
	out, ok := v.(string)
	if !ok {
		self.fail(v, "string")
	}
	return out
}

func (self *reader) bool() bool {
	v := self.next()
	out, ok := v.(bool)
	if !ok {
		self.fail(v, "bool")
	}
	return out
}

func (self *reader) uint8() uint8 {
	v := self.next()
	out, ok := v.(uint8)
	if !ok {
		self.fail(v, "uint8")
	}
	return out
}

func (self *reader) bigInt() *big.Int {
	v := self.next()
	out, ok := v.(*big.Int)
	if !ok || out == nil {
		self.fail(v, "uint256")
		return new(big.Int)
	}
	return out
}

// Topic matching an indexed address
func AddressTopic(address common.Address) common.Hash {
	return common.BytesToHash(address.Bytes())
}

// Topic matching an indexed uint256
func IntTopic(v uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(v))
}
