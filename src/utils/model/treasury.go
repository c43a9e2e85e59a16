package model

import (
	"time"

	"gorm.io/datatypes"
)

const TableTreasury = "treasuries"

// Address used as the key of the native asset balance
const NativeAssetAddress = "0x0000000000000000000000000000000000000000"

// Treasury is the latest balance snapshot of an organization's treasury contract.
// Balances maps token address to a base-10 amount string.
type Treasury struct {
	Id             uint64            `gorm:"primaryKey" json:"-"`
	OrganizationId uint64            `gorm:"not null;uniqueIndex" json:"dao"`
	Balances       datatypes.JSONMap `json:"balances"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func (Treasury) TableName() string {
	return TableTreasury
}
