package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/dao-forum/reconciler/src/utils/model"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store wraps all queries of the reconciliation. Every method runs on the
// transaction the store was created in, if any.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (self *Store) Transaction(ctx context.Context, f func(tx *Store) error) error {
	return self.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return f(&Store{db: tx})
	})
}

func (self *Store) conn(ctx context.Context) *gorm.DB {
	return self.db.WithContext(ctx)
}

// Organizations

func (self *Store) FindContractSetByCore(ctx context.Context, core string) (out *model.ContractSet, err error) {
	out = new(model.ContractSet)
	err = self.conn(ctx).Where("core_address = ?", core).Take(out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return
}

func (self *Store) GetOrganization(ctx context.Context, id uint64) (out *model.Organization, err error) {
	out = new(model.Organization)
	err = self.conn(ctx).Preload("ContractSet").Where("id = ?", id).Take(out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrganizationNotFound
	}
	return
}

func (self *Store) GetOrganizationBySlug(ctx context.Context, slug string) (out *model.Organization, err error) {
	out = new(model.Organization)
	err = self.conn(ctx).Preload("ContractSet").Where("slug = ?", slug).Take(out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrganizationNotFound
	}
	return
}

// Organizations included in the periodic sweep
func (self *Store) ActiveOrganizationIds(ctx context.Context) (out []uint64, err error) {
	err = self.conn(ctx).Model(&model.Organization{}).
		Where("is_active = ?", true).
		Order("id").
		Pluck("id", &out).Error
	return
}

// Creates the organization together with its contract set
func (self *Store) CreateOrganization(ctx context.Context, organization *model.Organization, contracts *model.ContractSet) error {
	return self.Transaction(ctx, func(tx *Store) (err error) {
		err = tx.db.Omit("ContractSet").Create(organization).Error
		if err != nil {
			return
		}

		contracts.OrganizationId = organization.Id
		err = tx.db.Create(contracts).Error
		if err != nil {
			return
		}

		organization.ContractSet = contracts
		return
	})
}

// AssignSlug sets the slug once. Setting the same value again is a no-op.
func (self *Store) AssignSlug(ctx context.Context, id uint64, slug string, activate bool) (err error) {
	updates := map[string]interface{}{"slug": slug}
	if activate {
		updates["is_active"] = true
	}

	result := self.conn(ctx).Model(&model.Organization{}).
		Where("id = ? AND slug IS NULL", id).
		Updates(updates)
	if result.Error != nil || result.RowsAffected > 0 {
		return result.Error
	}

	organization, err := self.GetOrganization(ctx, id)
	if err != nil {
		return
	}
	if organization.Slug == nil || *organization.Slug != slug {
		return ErrSlugAlreadyAssigned
	}

	if activate && !organization.IsActive {
		err = self.conn(ctx).Model(&model.Organization{}).Where("id = ?", id).Update("is_active", true).Error
	}
	return
}

// Proposals

func (self *Store) GetProposal(ctx context.Context, id uint64) (out *model.Proposal, err error) {
	out = new(model.Proposal)
	err = self.conn(ctx).Where("id = ?", id).Take(out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProposalNotFound
	}
	return
}

func (self *Store) FindProposalByChainId(ctx context.Context, organizationId, chainId uint64) (out *model.Proposal, err error) {
	out = new(model.Proposal)
	err = self.conn(ctx).
		Where("organization_id = ? AND chain_proposal_id = ?", organizationId, chainId).
		Take(out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return
}

// On-chain ids of proposals that won't change anymore
func (self *Store) TerminalChainIds(ctx context.Context, organizationId uint64) (out map[uint64]struct{}, err error) {
	var ids []uint64
	err = self.conn(ctx).Model(&model.Proposal{}).
		Where("organization_id = ? AND chain_proposal_id IS NOT NULL AND status IN ?", organizationId, model.TerminalProposalStatuses).
		Pluck("chain_proposal_id", &ids).Error
	if err != nil {
		return
	}

	out = make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return
}

// Oldest unbound draft with the same type and end time
func (self *Store) FindMatchingDraft(ctx context.Context, organizationId uint64, proposalType uint8, endTime uint64) (out *model.Proposal, err error) {
	out = new(model.Proposal)
	err = self.conn(ctx).
		Where("organization_id = ? AND status = ? AND chain_proposal_id IS NULL AND type = ? AND end_time = ?",
			organizationId, model.ProposalStatusDraft, proposalType, endTime).
		Order("created_at, id").
		Take(out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return
}

// BindDraft attaches the on-chain id to a draft and activates it. False if the draft was bound meanwhile.
func (self *Store) BindDraft(ctx context.Context, id, chainId uint64, payload interface{}) (ok bool, err error) {
	result := self.conn(ctx).Model(&model.Proposal{}).
		Where("id = ? AND status = ? AND chain_proposal_id IS NULL", id, model.ProposalStatusDraft).
		Updates(map[string]interface{}{
			"chain_proposal_id": chainId,
			"status":            model.ProposalStatusActive,
			"payload":           payload,
		})
	return result.RowsAffected > 0, result.Error
}

func (self *Store) CreateProposal(ctx context.Context, proposal *model.Proposal) error {
	return self.conn(ctx).Create(proposal).Error
}

func (self *Store) ActiveProposalIds(ctx context.Context, organizationId uint64) (out []uint64, err error) {
	err = self.conn(ctx).Model(&model.Proposal{}).
		Where("organization_id = ? AND status = ?", organizationId, model.ProposalStatusActive).
		Order("id").
		Pluck("id", &out).Error
	return
}

// TransitionProposal moves an ACTIVE proposal to the given status. False if it already left ACTIVE.
func (self *Store) TransitionProposal(ctx context.Context, id uint64, status model.ProposalStatus, forVotes, againstVotes decimal.Decimal) (ok bool, err error) {
	result := self.conn(ctx).Model(&model.Proposal{}).
		Where("id = ? AND status = ?", id, model.ProposalStatusActive).
		Updates(map[string]interface{}{
			"status":        status,
			"for_votes":     forVotes,
			"against_votes": againstVotes,
		})
	return result.RowsAffected > 0, result.Error
}

// Removes drafts created before the given time that were never bound to an on-chain proposal
func (self *Store) DeleteStaleDrafts(ctx context.Context, before time.Time) (deleted int64, err error) {
	result := self.conn(ctx).
		Where("status = ? AND chain_proposal_id IS NULL AND created_at < ?", model.ProposalStatusDraft, before).
		Delete(&model.Proposal{})
	return result.RowsAffected, result.Error
}

// Votes

// InsertVotes creates missing votes. Existing votes are never updated.
func (self *Store) InsertVotes(ctx context.Context, votes []*model.Vote) (inserted int64, err error) {
	if len(votes) == 0 {
		return
	}
	result := self.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "proposal_id"}, {Name: "voter_address"}},
			DoNothing: true,
		}).
		Create(votes)
	return result.RowsAffected, result.Error
}

func (self *Store) GetVotes(ctx context.Context, proposalId uint64) (out []*model.Vote, err error) {
	err = self.conn(ctx).Where("proposal_id = ?", proposalId).Order("id").Find(&out).Error
	return
}

// Treasury

func (self *Store) UpsertTreasury(ctx context.Context, organizationId uint64, balances map[string]interface{}) error {
	treasury := &model.Treasury{
		OrganizationId: organizationId,
		Balances:       datatypes.JSONMap(balances),
		UpdatedAt:      time.Now(),
	}
	return self.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "organization_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"balances", "updated_at"}),
		}).
		Create(treasury).Error
}

func (self *Store) GetTreasury(ctx context.Context, organizationId uint64) (out *model.Treasury, err error) {
	out = new(model.Treasury)
	err = self.conn(ctx).Where("organization_id = ?", organizationId).Take(out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return
}

// Presales

func (self *Store) ActivePresale(ctx context.Context, organizationId uint64) (out *model.Presale, err error) {
	out = new(model.Presale)
	err = self.conn(ctx).
		Where("organization_id = ? AND status = ?", organizationId, model.PresaleStatusActive).
		Take(out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return
}

func (self *Store) ActivePresales(ctx context.Context, organizationId uint64) (out []*model.Presale, err error) {
	err = self.conn(ctx).
		Where("organization_id = ? AND status = ?", organizationId, model.PresaleStatusActive).
		Order("id").
		Find(&out).Error
	return
}

func (self *Store) CreatePresale(ctx context.Context, presale *model.Presale) error {
	return self.conn(ctx).Create(presale).Error
}

// Marks the organization's presale with the given contract as completed, case insensitive
func (self *Store) CompletePresaleByContract(ctx context.Context, organizationId uint64, contract string) (ok bool, err error) {
	result := self.conn(ctx).Model(&model.Presale{}).
		Where("organization_id = ? AND LOWER(presale_contract) = LOWER(?) AND status = ?", organizationId, contract, model.PresaleStatusActive).
		Update("status", model.PresaleStatusCompleted)
	return result.RowsAffected > 0, result.Error
}

// Stores the live state. Only ACTIVE presales are updated.
func (self *Store) UpdatePresaleState(ctx context.Context, presale *model.Presale) (ok bool, err error) {
	result := self.conn(ctx).Model(&model.Presale{}).
		Where("id = ? AND status = ?", presale.Id, model.PresaleStatusActive).
		Updates(map[string]interface{}{
			"current_tier":      presale.CurrentTier,
			"current_price":     presale.CurrentPrice,
			"remaining_in_tier": presale.RemainingInTier,
			"total_remaining":   presale.TotalRemaining,
			"total_raised":      presale.TotalRaised,
			"status":            presale.Status,
		})
	return result.RowsAffected > 0, result.Error
}

func (self *Store) GetPresales(ctx context.Context, organizationId uint64) (out []*model.Presale, err error) {
	err = self.conn(ctx).Where("organization_id = ?", organizationId).Order("id").Find(&out).Error
	return
}

// Stakes

func (self *Store) UpsertStake(ctx context.Context, stake *model.Stake) error {
	stake.UpdatedAt = time.Now()
	return self.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "organization_id"}, {Name: "user_address"}},
			DoUpdates: clause.AssignmentColumns([]string{"amount", "voting_power", "updated_at"}),
		}).
		Create(stake).Error
}

func (self *Store) GetStake(ctx context.Context, organizationId uint64, user string) (out *model.Stake, err error) {
	out = new(model.Stake)
	err = self.conn(ctx).Where("organization_id = ? AND user_address = ?", organizationId, user).Take(out).Error
	return
}
