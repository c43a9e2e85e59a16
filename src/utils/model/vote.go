package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const TableVote = "votes"

// Vote is written once per (voter, proposal); on-chain votes are immutable
type Vote struct {
	Id           uint64          `gorm:"primaryKey" json:"id"`
	ProposalId   uint64          `gorm:"not null;uniqueIndex:idx_votes_voter" json:"dip"`
	VoterAddress string          `gorm:"size:42;not null;uniqueIndex:idx_votes_voter" json:"voter_address"`
	Support      bool            `gorm:"not null" json:"support"`
	VotingPower  decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"voting_power"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (Vote) TableName() string {
	return TableVote
}
