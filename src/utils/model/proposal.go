package model

import (
	"time"

	"github.com/jackc/pgtype"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const TableProposal = "proposals"

type ProposalStatus string

const (
	// Created off-chain, not yet bound to an on-chain proposal id
	ProposalStatusDraft ProposalStatus = "DRAFT"
	// Bound to an on-chain proposal, voting or awaiting execution
	ProposalStatusActive   ProposalStatus = "ACTIVE"
	ProposalStatusExecuted ProposalStatus = "EXECUTED"
	ProposalStatusFailed   ProposalStatus = "FAILED"
	// Had votes but was not executed within the grace period after voting ended
	ProposalStatusRejected ProposalStatus = "REJECTED"
)

// Statuses a proposal never leaves
var TerminalProposalStatuses = []ProposalStatus{
	ProposalStatusExecuted,
	ProposalStatusFailed,
	ProposalStatusRejected,
}

// Proposal (DIP) is a governance action voted on chain
type Proposal struct {
	Id             uint64 `gorm:"primaryKey" json:"id"`
	OrganizationId uint64 `gorm:"not null;uniqueIndex:idx_proposals_chain_id" json:"organization_id"`

	// Empty for drafts. Unique within the organization.
	ChainProposalId *uint64 `gorm:"uniqueIndex:idx_proposals_chain_id" json:"proposal_id,omitempty"`

	Type   uint8          `gorm:"not null" json:"proposal_type"`
	Status ProposalStatus `gorm:"size:16;not null;index" json:"status"`

	// Unix timestamp of the voting end, equal to the on-chain value once synchronized
	EndTime uint64 `gorm:"not null" json:"end_time"`

	// Tally observed when the proposal left the ACTIVE state
	ForVotes     decimal.Decimal `gorm:"type:numeric(78,0);not null;default:0" json:"for_votes"`
	AgainstVotes decimal.Decimal `gorm:"type:numeric(78,0);not null;default:0" json:"against_votes"`

	Payload pgtype.JSONB `gorm:"type:jsonb" json:"proposal_data"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Proposal) TableName() string {
	return TableProposal
}

func (self *Proposal) BeforeSave(tx *gorm.DB) (err error) {
	if self.Payload.Status == pgtype.Undefined {
		self.Payload.Status = pgtype.Null
	}
	return
}

// Payload as a generic JSON object, empty when the payload is null
func (self *Proposal) PayloadMap() (out map[string]interface{}, err error) {
	out = make(map[string]interface{})
	if self.Payload.Status != pgtype.Present {
		return
	}
	err = self.Payload.AssignTo(&out)
	return
}

func NewPayload(v interface{}) (out pgtype.JSONB, err error) {
	err = out.Set(v)
	return
}
