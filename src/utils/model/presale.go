package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const TablePresale = "presales"

type PresaleStatus string

const (
	PresaleStatusActive    PresaleStatus = "ACTIVE"
	PresaleStatusCompleted PresaleStatus = "COMPLETED"
)

// Presale is a token sale contract created by an executed presale proposal.
// The partial unique index allows at most one ACTIVE presale per organization.
type Presale struct {
	Id              uint64 `gorm:"primaryKey" json:"id"`
	OrganizationId  uint64 `gorm:"not null;index;uniqueIndex:idx_presales_active,where:status = 'ACTIVE'" json:"dao"`
	ProposalId      uint64 `gorm:"not null" json:"dip"`
	PresaleContract string `gorm:"size:42;not null;uniqueIndex" json:"presale_contract"`

	TotalTokenAmount decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"total_token_amount"`
	InitialPrice     decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"initial_price"`

	// Live state read from the presale contract
	CurrentTier     decimal.Decimal `gorm:"type:numeric(78,0);not null;default:0" json:"current_tier"`
	CurrentPrice    decimal.Decimal `gorm:"type:numeric(78,0);not null;default:0" json:"current_price"`
	RemainingInTier decimal.Decimal `gorm:"type:numeric(78,0);not null;default:0" json:"remaining_in_tier"`
	TotalRemaining  decimal.Decimal `gorm:"type:numeric(78,0);not null;default:0" json:"total_remaining"`
	TotalRaised     decimal.Decimal `gorm:"type:numeric(78,0);not null;default:0" json:"total_raised"`

	Status PresaleStatus `gorm:"size:16;not null;index" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Presale) TableName() string {
	return TablePresale
}
