package dao_sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dao-forum/reconciler/src/reconcile"
	"github.com/dao-forum/reconciler/src/utils/config"
	"github.com/dao-forum/reconciler/src/utils/eth"
	"github.com/dao-forum/reconciler/src/utils/eth/ethtest"
	"github.com/dao-forum/reconciler/src/utils/lock"
	"github.com/dao-forum/reconciler/src/utils/model"
	"github.com/dao-forum/reconciler/src/utils/monitoring"
	monitor_dao_syncer "github.com/dao-forum/reconciler/src/utils/monitoring/dao_syncer"
	"github.com/dao-forum/reconciler/src/utils/monitoring/report"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

const network = 1337

func TestDaoSyncTestSuite(t *testing.T) {
	suite.Run(t, new(DaoSyncTestSuite))
}

type DaoSyncTestSuite struct {
	suite.Suite
	ctx        context.Context
	config     *config.Config
	db         *gorm.DB
	abis       *eth.AbiRegistry
	backend    *ethtest.Backend
	dao        *ethtest.Dao
	service    *reconcile.Service
	monitor    *monitor_dao_syncer.Monitor
	locker     *lock.LocalLocker
	dispatcher *Dispatcher
	server     *monitoring.Server
}

func (s *DaoSyncTestSuite) SetupTest() {
	var err error
	s.ctx = context.Background()
	s.config = config.Default()
	s.config.Database.Driver = config.DatabaseDriverSqlite
	s.config.Database.SqlitePath = ":memory:"
	s.config.Chain.ConnectDelay = time.Millisecond
	s.config.Chain.CallDelay = time.Millisecond
	s.config.Chain.RequestsPerSecond = 0
	s.config.Reconciler.JobDelay = time.Millisecond
	s.config.Reconciler.NumWorkers = 2
	s.config.Reconciler.WorkerQueueSize = 4
	s.config.StopTimeout = 5 * time.Second

	s.db, err = model.NewConnection(s.ctx, s.config, "test")
	require.Nil(s.T(), err)

	s.abis, err = eth.LoadAbiRegistry(s.ctx, &s.config.Chain)
	require.Nil(s.T(), err)

	s.backend = ethtest.NewBackend(network)
	pool := eth.NewPool(&s.config.Chain).
		WithDialer(s.backend.Dialer()).
		WithAbiRegistry(s.abis)

	factory, err := eth.NewRegistry(&s.config.Chain).FactoryAddress(network)
	require.Nil(s.T(), err)

	s.dao, err = ethtest.NewDao(s.backend, s.abis, factory, 1)
	require.Nil(s.T(), err)

	s.monitor = monitor_dao_syncer.NewMonitor()
	s.locker = lock.NewLocalLocker()

	s.service = reconcile.NewService(s.config).
		WithDB(s.db).
		WithPool(pool).
		WithMonitor(s.monitor).
		WithClock(func() time.Time { return time.Unix(10_000, 0) })

	s.dispatcher = NewDispatcher(s.config).
		WithService(s.service).
		WithLocker(s.locker).
		WithMonitor(s.monitor)

	s.server = monitoring.NewServer(s.config).
		WithMonitor(s.monitor).
		WithRoutes(NewHandlers(s.service, s.dispatcher).Register)
}

func (s *DaoSyncTestSuite) TearDownTest() {
	db, err := s.db.DB()
	require.Nil(s.T(), err)
	db.Close()
}

func (s *DaoSyncTestSuite) report() *report.DaoSyncerReport {
	return s.monitor.GetReport().DaoSyncer
}

func (s *DaoSyncTestSuite) request(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.Nil(s.T(), json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, path, &buf)
	require.Nil(s.T(), err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	s.server.Router.ServeHTTP(w, req)
	return w
}

func (s *DaoSyncTestSuite) organization(slug string) *model.Organization {
	organization, _, err := s.service.FetchAndCreate(s.ctx, network, s.dao.Core)
	require.Nil(s.T(), err)
	require.Nil(s.T(), s.service.AssignSlug(s.ctx, organization.Id, slug, true))
	return organization
}

func (s *DaoSyncTestSuite) endedProposal(organization *model.Organization, executed bool) *model.Proposal {
	id := s.dao.AddProposal(&ethtest.Proposal{
		EndTime:  1000,
		ForVotes: big.NewInt(1),
		Executed: executed,
		Payload:  []interface{}{common.HexToAddress("0xaaaa"), common.HexToAddress("0xbbbb"), big.NewInt(1)},
	})
	proposal := &model.Proposal{
		OrganizationId:  organization.Id,
		ChainProposalId: &id,
		Status:          model.ProposalStatusActive,
		EndTime:         1000,
	}
	require.Nil(s.T(), s.service.Store().CreateProposal(s.ctx, proposal))
	return proposal
}

func (s *DaoSyncTestSuite) status(proposal *model.Proposal) model.ProposalStatus {
	stored, err := s.service.Proposal(s.ctx, proposal.Id)
	require.Nil(s.T(), err)
	return stored.Status
}

func (s *DaoSyncTestSuite) TestHealth() {
	w := s.request(http.MethodGet, "/v1/health", nil)
	require.Equal(s.T(), http.StatusOK, w.Code)

	w = s.request(http.MethodGet, "/v1/state", nil)
	require.Equal(s.T(), http.StatusOK, w.Code)
	require.Contains(s.T(), w.Body.String(), "jobs_started")
}

func (s *DaoSyncTestSuite) TestMetrics() {
	s.report().State.VotesInserted.Add(3)

	w := s.request(http.MethodGet, "/metrics", nil)
	require.Equal(s.T(), http.StatusOK, w.Code)
	require.Contains(s.T(), w.Body.String(), "dao_syncer_votes_inserted 3")
}

func (s *DaoSyncTestSuite) TestSyncOrganizationTrigger() {
	organization := s.organization("dao")

	w := s.request(http.MethodPost, "/v1/organizations/dao/sync", nil)
	require.Equal(s.T(), http.StatusAccepted, w.Code)

	var response AcceptedResponse
	require.Nil(s.T(), json.Unmarshal(w.Body.Bytes(), &response))
	require.NotEmpty(s.T(), response.JobId)
	require.Equal(s.T(), "sync started", response.Message)

	job := <-s.dispatcher.input
	require.Equal(s.T(), response.JobId, job.Id)
	require.Equal(s.T(), JobKindOrganization, job.Kind)
	require.Equal(s.T(), organization.Id, job.OrganizationId)
}

func (s *DaoSyncTestSuite) TestSyncOrganizationTriggerUnknownSlug() {
	w := s.request(http.MethodPost, "/v1/organizations/missing/sync", nil)
	require.Equal(s.T(), http.StatusNotFound, w.Code)
	require.Empty(s.T(), s.dispatcher.input)
}

func (s *DaoSyncTestSuite) TestSyncProposalTrigger() {
	organization := s.organization("dao")
	proposal := s.endedProposal(organization, true)

	w := s.request(http.MethodPost, "/v1/proposals/"+strconv.FormatUint(proposal.Id, 10)+"/sync", nil)
	require.Equal(s.T(), http.StatusAccepted, w.Code)

	job := <-s.dispatcher.input
	require.Equal(s.T(), JobKindProposal, job.Kind)
	require.Equal(s.T(), proposal.Id, job.ProposalId)
	require.Equal(s.T(), organization.Id, job.OrganizationId)

	// Nothing happens until the job runs
	require.Equal(s.T(), model.ProposalStatusActive, s.status(proposal))
}

func (s *DaoSyncTestSuite) TestSyncProposalTriggerErrors() {
	require.Equal(s.T(), http.StatusNotFound, s.request(http.MethodPost, "/v1/proposals/12345/sync", nil).Code)
	require.Equal(s.T(), http.StatusBadRequest, s.request(http.MethodPost, "/v1/proposals/abc/sync", nil).Code)
}

func (s *DaoSyncTestSuite) TestTriggerQueueFull() {
	s.organization("dao")
	for i := 0; i < s.config.Reconciler.WorkerQueueSize; i++ {
		require.Equal(s.T(), http.StatusAccepted, s.request(http.MethodPost, "/v1/organizations/dao/sync", nil).Code)
	}

	require.Equal(s.T(), http.StatusServiceUnavailable, s.request(http.MethodPost, "/v1/organizations/dao/sync", nil).Code)
	require.Equal(s.T(), uint64(1), s.report().Errors.JobsDropped.Load())
}

func (s *DaoSyncTestSuite) TestCreateOrganization() {
	body := CreateOrganizationRequest{Network: network, Address: s.dao.Core.Hex()}

	w := s.request(http.MethodPost, "/v1/organizations", body)
	require.Equal(s.T(), http.StatusCreated, w.Code)

	var organization model.Organization
	require.Nil(s.T(), json.Unmarshal(w.Body.Bytes(), &organization))
	require.Equal(s.T(), "Organization", organization.Name)
	require.Equal(s.T(), s.dao.Core.Hex(), organization.ContractSet.CoreAddress)

	w = s.request(http.MethodPost, "/v1/organizations", body)
	require.Equal(s.T(), http.StatusOK, w.Code)
}

func (s *DaoSyncTestSuite) TestCreateOrganizationErrors() {
	require.Equal(s.T(), http.StatusBadRequest, s.request(http.MethodPost, "/v1/organizations", map[string]string{}).Code)
	require.Equal(s.T(), http.StatusBadRequest, s.request(http.MethodPost, "/v1/organizations", CreateOrganizationRequest{Network: network, Address: "nope"}).Code)
	require.Equal(s.T(), http.StatusBadRequest, s.request(http.MethodPost, "/v1/organizations", CreateOrganizationRequest{Network: 999, Address: s.dao.Core.Hex()}).Code)
	require.Equal(s.T(), http.StatusNotFound, s.request(http.MethodPost, "/v1/organizations", CreateOrganizationRequest{Network: network, Address: "0x0000000000000000000000000000000000001234"}).Code)
}

func (s *DaoSyncTestSuite) TestRefreshStake() {
	s.organization("dao")
	user := common.HexToAddress("0xbeef")
	s.dao.SetStake(user, big.NewInt(500), big.NewInt(700))

	w := s.request(http.MethodPost, "/v1/organizations/dao/stakes/"+user.Hex(), nil)
	require.Equal(s.T(), http.StatusOK, w.Code)

	var stake model.Stake
	require.Nil(s.T(), json.Unmarshal(w.Body.Bytes(), &stake))
	require.Equal(s.T(), "500", stake.Amount.String())
	require.Equal(s.T(), "700", stake.VotingPower.String())

	require.Equal(s.T(), http.StatusBadRequest, s.request(http.MethodPost, "/v1/organizations/dao/stakes/xyz", nil).Code)
	require.Equal(s.T(), http.StatusNotFound, s.request(http.MethodPost, "/v1/organizations/missing/stakes/"+user.Hex(), nil).Code)
}

func (s *DaoSyncTestSuite) TestExecuteJob() {
	organization := s.organization("dao")
	proposal := s.endedProposal(organization, true)

	s.dispatcher.execute(NewProposalJob(organization.Id, proposal.Id))

	require.Equal(s.T(), model.ProposalStatusExecuted, s.status(proposal))
	require.Equal(s.T(), uint64(1), s.report().State.JobsStarted.Load())
	require.Equal(s.T(), uint64(1), s.report().State.JobsSucceeded.Load())
	require.Equal(s.T(), uint64(1), s.report().State.ProposalsTransitioned.Load())
	require.Equal(s.T(), 1, s.monitor.JobDurations.Len())
}

func (s *DaoSyncTestSuite) TestExecuteSkipsLockedOrganization() {
	organization := s.organization("dao")
	proposal := s.endedProposal(organization, true)

	job := NewProposalJob(organization.Id, proposal.Id)
	_, unlock, ok, err := s.locker.TryLock(s.ctx, job.LockKey())
	require.Nil(s.T(), err)
	require.True(s.T(), ok)

	s.dispatcher.execute(job)
	require.Equal(s.T(), model.ProposalStatusActive, s.status(proposal))
	require.Equal(s.T(), uint64(1), s.report().State.JobsSkippedLocked.Load())
	require.Equal(s.T(), uint64(0), s.report().State.JobsStarted.Load())

	// Released lock lets the next job through
	unlock()
	s.dispatcher.execute(job)
	require.Equal(s.T(), model.ProposalStatusExecuted, s.status(proposal))
}

func (s *DaoSyncTestSuite) TestExecuteRetriesTransientFailures() {
	organization := s.organization("dao")
	proposal := s.endedProposal(organization, true)

	calls := s.backend.Calls.Load()
	s.backend.CallErr = errors.New("connection reset")
	s.dispatcher.execute(NewProposalJob(organization.Id, proposal.Id))

	require.Equal(s.T(), model.ProposalStatusActive, s.status(proposal))
	require.Equal(s.T(), uint64(s.config.Reconciler.JobAttempts-1), s.report().Errors.JobRetries.Load())
	require.Equal(s.T(), uint64(1), s.report().Errors.JobFailures.Load())
	require.Equal(s.T(), int64(1), s.report().State.ConsecutiveFailures.Load())
	require.Equal(s.T(), int64(s.config.Reconciler.JobAttempts*s.config.Chain.CallAttempts), s.backend.Calls.Load()-calls)

	// Success resets the failure streak
	s.backend.CallErr = nil
	s.dispatcher.execute(NewProposalJob(organization.Id, proposal.Id))
	require.Equal(s.T(), model.ProposalStatusExecuted, s.status(proposal))
	require.Equal(s.T(), int64(0), s.report().State.ConsecutiveFailures.Load())
}

func (s *DaoSyncTestSuite) TestExecuteDoesNotRetryFatalFailures() {
	organization := s.organization("dao")

	s.dispatcher.execute(NewProposalJob(organization.Id, 12345))

	require.Equal(s.T(), uint64(0), s.report().Errors.JobRetries.Load())
	require.Equal(s.T(), uint64(1), s.report().Errors.JobFailures.Load())
}

func (s *DaoSyncTestSuite) TestExecuteCountsDecodeErrors() {
	organization := s.organization("dao")
	proposal := s.endedProposal(organization, true)

	core, err := s.abis.Get(eth.AbiCore)
	require.Nil(s.T(), err)

	// Vote log with a truncated data payload
	s.backend.AddLog(types.Log{
		Address:     s.dao.Core,
		BlockNumber: s.backend.Height - 1,
		Topics:      []common.Hash{core.Events[eth.EventVoteCast].ID, eth.IntTopic(*proposal.ChainProposalId), eth.AddressTopic(common.HexToAddress("0x1"))},
		Data:        []byte{1, 2, 3},
	})

	s.dispatcher.execute(NewProposalJob(organization.Id, proposal.Id))

	require.Equal(s.T(), model.ProposalStatusActive, s.status(proposal))
	require.Equal(s.T(), uint64(1), s.report().Errors.DecodeErrors.Load())
	require.Equal(s.T(), uint64(0), s.report().Errors.JobRetries.Load())
	require.Equal(s.T(), uint64(1), s.report().Errors.JobFailures.Load())
}

func (s *DaoSyncTestSuite) TestSweepRetriesWhenAnyProposalFailsTransiently() {
	organization := s.organization("dao")
	undecodable := s.endedProposal(organization, false)
	executed := s.endedProposal(organization, true)

	core, err := s.abis.Get(eth.AbiCore)
	require.Nil(s.T(), err)
	s.backend.AddLog(types.Log{
		Address:     s.dao.Core,
		BlockNumber: s.backend.Height - 1,
		Topics:      []common.Hash{core.Events[eth.EventVoteCast].ID, eth.IntTopic(*undecodable.ChainProposalId), eth.AddressTopic(common.HexToAddress("0x1"))},
		Data:        []byte{1, 2, 3},
	})

	// Treasury of the executed proposal can't be read
	s.backend.BalanceErr = errors.New("connection reset")
	s.dispatcher.execute(NewOrganizationJob(organization.Id))

	require.Equal(s.T(), uint64(s.config.Reconciler.JobAttempts-1), s.report().Errors.JobRetries.Load())
	require.Equal(s.T(), uint64(1), s.report().Errors.DecodeErrors.Load())
	require.Equal(s.T(), model.ProposalStatusActive, s.status(executed))

	// Only the decode failure is left, it isn't retried
	s.backend.BalanceErr = nil
	s.dispatcher.execute(NewOrganizationJob(organization.Id))

	require.Equal(s.T(), model.ProposalStatusExecuted, s.status(executed))
	require.Equal(s.T(), model.ProposalStatusActive, s.status(undecodable))
	require.Equal(s.T(), uint64(s.config.Reconciler.JobAttempts-1), s.report().Errors.JobRetries.Load())
	require.Equal(s.T(), uint64(2), s.report().Errors.DecodeErrors.Load())
}

func (s *DaoSyncTestSuite) TestDispatcherRunsSubmittedJobs() {
	organization := s.organization("dao")
	proposal := s.endedProposal(organization, true)

	require.Nil(s.T(), s.dispatcher.Start())

	s.dispatcher.Sweep()
	require.Eventually(s.T(), func() bool {
		return s.report().State.JobsSucceeded.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(s.T(), model.ProposalStatusExecuted, s.status(proposal))

	s.dispatcher.StopWait()

	_, ok := s.dispatcher.SubmitOrganization(organization.Id)
	require.False(s.T(), ok)
}

func (s *DaoSyncTestSuite) TestCleanupDrafts() {
	organization := s.organization("dao")
	draft := &model.Proposal{OrganizationId: organization.Id, Status: model.ProposalStatusDraft, CreatedAt: time.Unix(10_000, 0).Add(-48 * time.Hour)}
	require.Nil(s.T(), s.service.Store().CreateProposal(s.ctx, draft))

	s.dispatcher.CleanupDrafts()
	require.Equal(s.T(), uint64(1), s.report().State.DraftsDeleted.Load())
	require.Equal(s.T(), uint64(0), s.report().Errors.DraftCleanupFailures.Load())
}

func (s *DaoSyncTestSuite) TestSchedulerRejectsInvalidSchedule() {
	s.config.Reconciler.SweepSchedule = "every now and then"
	scheduler := NewScheduler(s.config).WithDispatcher(s.dispatcher)

	err := scheduler.Start()
	require.NotNil(s.T(), err)
	require.True(s.T(), strings.Contains(err.Error(), "sweep"))
}

func (s *DaoSyncTestSuite) TestSchedulerStartsAndStops() {
	s.config.Reconciler.DraftCleanupSchedule = ""
	scheduler := NewScheduler(s.config).WithDispatcher(s.dispatcher)

	require.Nil(s.T(), scheduler.Start())
	scheduler.StopWait()

	select {
	case <-scheduler.CtxRunning.Done():
	default:
		s.T().Fatal("scheduler still running")
	}
}
