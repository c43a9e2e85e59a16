package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const TableStake = "stakes"

type Stake struct {
	Id             uint64          `gorm:"primaryKey" json:"-"`
	OrganizationId uint64          `gorm:"not null;uniqueIndex:idx_stakes_user" json:"dao"`
	UserAddress    string          `gorm:"size:42;not null;uniqueIndex:idx_stakes_user" json:"user_address"`
	Amount         decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"amount"`
	VotingPower    decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"voting_power"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (Stake) TableName() string {
	return TableStake
}
