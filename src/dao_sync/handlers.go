package dao_sync

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dao-forum/reconciler/src/reconcile"
	"github.com/dao-forum/reconciler/src/utils/eth"
	"github.com/dao-forum/reconciler/src/utils/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Sync triggers and organization endpoints. Triggers only queue the work,
// the outcome is visible in the database once the job finishes.
type Handlers struct {
	log        *logrus.Entry
	service    *reconcile.Service
	dispatcher *Dispatcher
}

type AcceptedResponse struct {
	Message string `json:"message"`
	JobId   string `json:"job_id"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type CreateOrganizationRequest struct {
	Network int64  `json:"network" binding:"required"`
	Address string `json:"address" binding:"required"`
}

func NewHandlers(service *reconcile.Service, dispatcher *Dispatcher) (self *Handlers) {
	self = new(Handlers)
	self.log = logger.NewSublogger("handlers")
	self.service = service
	self.dispatcher = dispatcher
	return
}

func (self *Handlers) Register(v1 *gin.RouterGroup) {
	v1.POST("organizations", self.OnCreateOrganization)
	v1.POST("organizations/:slug/sync", self.OnSyncOrganization)
	v1.POST("organizations/:slug/stakes/:address", self.OnRefreshStake)
	v1.POST("proposals/:id/sync", self.OnSyncProposal)
}

// Maps errors to status codes
func (self *Handlers) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, eth.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, eth.ErrConfiguration), errors.Is(err, reconcile.ErrSlugAlreadyAssigned):
		status = http.StatusBadRequest
	case errors.Is(err, eth.ErrConnection):
		status = http.StatusBadGateway
	default:
		self.log.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

func (self *Handlers) accepted(c *gin.Context, jobId string, ok bool) {
	if !ok {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "sync queue is full"})
		return
	}
	c.JSON(http.StatusAccepted, AcceptedResponse{Message: "sync started", JobId: jobId})
}

func (self *Handlers) OnSyncOrganization(c *gin.Context) {
	organization, err := self.service.OrganizationBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		self.fail(c, err)
		return
	}

	jobId, ok := self.dispatcher.SubmitOrganization(organization.Id)
	self.accepted(c, jobId, ok)
}

func (self *Handlers) OnSyncProposal(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid proposal id"})
		return
	}

	proposal, err := self.service.Proposal(c.Request.Context(), id)
	if err != nil {
		self.fail(c, err)
		return
	}

	jobId, ok := self.dispatcher.SubmitProposal(proposal.OrganizationId, proposal.Id)
	self.accepted(c, jobId, ok)
}

func (self *Handlers) OnCreateOrganization(c *gin.Context) {
	var request CreateOrganizationRequest
	err := c.ShouldBindJSON(&request)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if !common.IsHexAddress(request.Address) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid address"})
		return
	}

	organization, created, err := self.service.FetchAndCreate(c.Request.Context(), request.Network, common.HexToAddress(request.Address))
	if err != nil {
		self.fail(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, organization)
}

func (self *Handlers) OnRefreshStake(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid address"})
		return
	}

	stake, err := self.service.RefreshStake(c.Request.Context(), c.Param("slug"), common.HexToAddress(address))
	if err != nil {
		self.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stake)
}
