package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/dao-forum/reconciler/src/utils/config"
	"github.com/dao-forum/reconciler/src/utils/eth"
	"github.com/dao-forum/reconciler/src/utils/logger"
	"github.com/dao-forum/reconciler/src/utils/model"
	"github.com/dao-forum/reconciler/src/utils/monitoring"
	"github.com/dao-forum/reconciler/src/utils/monitoring/report"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Service makes the local records consistent with the chain. It is the only
// writer of proposal status, presale status and treasury balances.
//
// Calls for the same organization must not run concurrently, callers serialize them.
type Service struct {
	log    *logrus.Entry
	config *config.Config

	store  *Store
	pool   *eth.Pool
	report *report.DaoSyncerReport

	now func() time.Time
}

func NewService(config *config.Config) (self *Service) {
	self = new(Service)
	self.config = config
	self.log = logger.NewSublogger("reconcile")
	self.report = &report.DaoSyncerReport{}
	self.now = time.Now
	return
}

func (self *Service) WithDB(db *gorm.DB) *Service {
	self.store = NewStore(db)
	return self
}

func (self *Service) WithPool(pool *eth.Pool) *Service {
	self.pool = pool
	return self
}

func (self *Service) WithMonitor(monitor monitoring.Monitor) *Service {
	self.report = monitor.GetReport().DaoSyncer
	return self
}

func (self *Service) WithClock(now func() time.Time) *Service {
	self.now = now
	return self
}

func (self *Service) Store() *Store {
	return self.store
}

// Client of the organization's network together with its contracts
func (self *Service) connect(ctx context.Context, organization *model.Organization) (client *eth.Client, contracts *model.ContractSet, err error) {
	contracts = organization.ContractSet
	if contracts == nil {
		return nil, nil, ErrContractsNotFound
	}

	client, err = self.pool.Get(ctx, organization.Network)
	return
}

// Drops a client whose endpoint kept failing, the next sync dials and probes it again
func (self *Service) evictOnFailure(client *eth.Client, err error) {
	if !errors.Is(err, eth.ErrConnection) {
		return
	}
	self.log.WithError(err).WithField("network", client.Network()).Warn("Dropping RPC client")
	self.pool.Evict(client)
}

func (self *Service) organizationLog(organization *model.Organization) *logrus.Entry {
	return self.log.WithFields(logrus.Fields{
		"organization_id": organization.Id,
		"network":         organization.Network,
	})
}

// SyncOrganization discovers new on-chain proposals of the organization, evaluates
// every ACTIVE one and refreshes its presales. A failure of one proposal doesn't
// stop the others, all failures are returned together.
func (self *Service) SyncOrganization(ctx context.Context, organizationId uint64) (err error) {
	organization, err := self.store.GetOrganization(ctx, organizationId)
	if err != nil {
		return
	}
	log := self.organizationLog(organization)

	client, contracts, err := self.connect(ctx, organization)
	if err != nil {
		return
	}
	defer func() { self.evictOnFailure(client, err) }()

	err = self.discoverProposals(ctx, organization, client)
	if err != nil {
		log.WithError(err).Error("Failed to discover proposals")
		return
	}

	ids, err := self.store.ActiveProposalIds(ctx, organization.Id)
	if err != nil {
		return
	}

	var errs []error
	for _, id := range ids {
		err = self.syncProposal(ctx, organization, client, id)
		if err != nil {
			log.WithError(err).WithField("proposal_id", id).Error("Failed to sync proposal")
			errs = append(errs, err)
		}
	}

	err = self.refreshPresales(ctx, organization, client)
	if err != nil {
		errs = append(errs, err)
	}

	err = eth.JoinErrors(errs...)
	if err != nil {
		return
	}

	self.report.State.OrganizationsSynced.Inc()
	log.WithField("core", contracts.CoreAddress).WithField("active", len(ids)).Debug("Organization synced")
	return
}

// SyncProposal evaluates one proposal. Only ACTIVE proposals may change.
func (self *Service) SyncProposal(ctx context.Context, proposalId uint64) (err error) {
	proposal, err := self.store.GetProposal(ctx, proposalId)
	if err != nil {
		return
	}

	organization, err := self.store.GetOrganization(ctx, proposal.OrganizationId)
	if err != nil {
		return
	}

	client, _, err := self.connect(ctx, organization)
	if err != nil {
		return
	}
	defer func() { self.evictOnFailure(client, err) }()

	return self.syncProposal(ctx, organization, client, proposal.Id)
}

func (self *Service) OrganizationBySlug(ctx context.Context, slug string) (*model.Organization, error) {
	return self.store.GetOrganizationBySlug(ctx, slug)
}

func (self *Service) Proposal(ctx context.Context, id uint64) (*model.Proposal, error) {
	return self.store.GetProposal(ctx, id)
}

// Organizations visited by the periodic sweep
func (self *Service) ActiveOrganizationIds(ctx context.Context) ([]uint64, error) {
	return self.store.ActiveOrganizationIds(ctx)
}

// AssignSlug names the organization and optionally includes it in the periodic sweep
func (self *Service) AssignSlug(ctx context.Context, organizationId uint64, slug string, activate bool) (err error) {
	if len(slug) == 0 || len(slug) > 10 {
		return ErrInvalidSlug
	}

	err = self.store.AssignSlug(ctx, organizationId, slug, activate)
	if err != nil {
		return
	}

	self.log.WithFields(logrus.Fields{
		"organization_id": organizationId,
		"slug":            slug,
		"active":          activate,
	}).Info("Slug assigned")
	return
}

// CleanupDrafts removes drafts older than maxAge that were never confirmed on chain
func (self *Service) CleanupDrafts(ctx context.Context, maxAge time.Duration) (deleted int64, err error) {
	deleted, err = self.store.DeleteStaleDrafts(ctx, self.now().Add(-maxAge))
	if err != nil {
		return
	}

	self.report.State.DraftsDeleted.Add(uint64(deleted))
	if deleted > 0 {
		self.log.WithField("count", deleted).WithField("max_age", maxAge).Info("Removed stale drafts")
	}
	return
}
