package dao_sync

import (
	"context"
	"fmt"

	"github.com/dao-forum/reconciler/src/reconcile"

	"github.com/rs/xid"
)

type JobKind string

const (
	JobKindOrganization JobKind = "organization"
	JobKindProposal     JobKind = "proposal"
)

// Job is one synchronization unit. Every job belongs to an organization,
// jobs of the same organization never run at the same time.
type Job struct {
	Id             string
	Kind           JobKind
	OrganizationId uint64

	// Set for JobKindProposal
	ProposalId uint64
}

func NewOrganizationJob(organizationId uint64) *Job {
	return &Job{
		Id:             xid.New().String(),
		Kind:           JobKindOrganization,
		OrganizationId: organizationId,
	}
}

func NewProposalJob(organizationId, proposalId uint64) *Job {
	return &Job{
		Id:             xid.New().String(),
		Kind:           JobKindProposal,
		OrganizationId: organizationId,
		ProposalId:     proposalId,
	}
}

func (self *Job) LockKey() string {
	return fmt.Sprintf("organization:%d", self.OrganizationId)
}

func (self *Job) Run(ctx context.Context, service *reconcile.Service) error {
	switch self.Kind {
	case JobKindOrganization:
		return service.SyncOrganization(ctx, self.OrganizationId)
	case JobKindProposal:
		return service.SyncProposal(ctx, self.ProposalId)
	}
	return fmt.Errorf("unknown job kind: %s", self.Kind)
}
