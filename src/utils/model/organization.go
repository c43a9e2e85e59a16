package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TableOrganization = "organizations"
	TableContractSet  = "contract_sets"
)

// Organization is the off-chain record of a DAO deployed through the factory
type Organization struct {
	Id           uint64          `gorm:"primaryKey" json:"id"`
	Name         string          `gorm:"not null" json:"name"`
	TokenName    string          `gorm:"not null" json:"token_name"`
	Symbol       string          `gorm:"not null" json:"symbol"`
	TotalSupply  decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"total_supply"`
	Version      string          `gorm:"not null;default:'1.0.0'" json:"version"`
	OwnerAddress string          `gorm:"size:42;not null;index" json:"owner_address"`
	Network      int64           `gorm:"not null" json:"network"`
	IsActive     bool            `gorm:"not null;default:false" json:"is_active"`

	// Assigned once by an administrator, never changed afterwards
	Slug *string `gorm:"size:10;uniqueIndex" json:"slug,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ContractSet *ContractSet `gorm:"foreignKey:OrganizationId" json:"contracts,omitempty"`
}

func (Organization) TableName() string {
	return TableOrganization
}

// ContractSet holds the four contracts deployed for an organization.
// CoreAddress is the deployment address and identifies the organization on chain.
type ContractSet struct {
	Id              uint64 `gorm:"primaryKey" json:"-"`
	OrganizationId  uint64 `gorm:"not null;uniqueIndex" json:"-"`
	CoreAddress     string `gorm:"size:42;not null;uniqueIndex" json:"core_address"`
	TokenAddress    string `gorm:"size:42;not null" json:"token_address"`
	TreasuryAddress string `gorm:"size:42;not null" json:"treasury_address"`
	StakingAddress  string `gorm:"size:42;not null" json:"staking_address"`
}

func (ContractSet) TableName() string {
	return TableContractSet
}
