package batch_scan

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"fieldops-insight-service/service/context_quality"
	"fieldops-insight-service/service/distributed_lock"
	"fieldops-insight-service/service/intelligence"
	"fieldops-insight-service/service/models"
	"fieldops-insight-service/testutil"

	"github.com/spf13/cast"
	"github.com/stretchr/testify/suite"
)

type stubAnalyzer struct {
	calls int32
	err   error
}

func (a *stubAnalyzer) Analyze(_ context.Context, _ *intelligence.AnalysisRequest) (*intelligence.AnalysisResult, error) {
	atomic.AddInt32(&a.calls, 1)
	if a.err != nil {
		return nil, a.err
	}
	return &intelligence.AnalysisResult{Title: "ok", TokensUsed: 100}, nil
}

type fixedSettings struct {
	concurrency int
	lookback    int
}

func (s fixedSettings) GetBatchConcurrency() int  { return s.concurrency }
func (s fixedSettings) GetBatchLookbackDays() int { return s.lookback }

type ScannerTestSuite struct {
	suite.Suite
	testDB   *testutil.TestDB
	factory  *testutil.TestDataFactory
	analyzer *stubAnalyzer
	lock     *distributed_lock.LocalLock
	gate     *intelligence.QualityGate
	scanner  *Scanner
	ctx      context.Context
}

func TestScannerTestSuite(t *testing.T) {
	suite.Run(t, new(ScannerTestSuite))
}

func (suite *ScannerTestSuite) SetupTest() {
	suite.testDB = testutil.NewTestDB()
	suite.factory = testutil.NewTestDataFactory(suite.testDB.DB)
	suite.analyzer = &stubAnalyzer{}
	suite.lock = distributed_lock.NewLocalLock()
	suite.ctx = context.Background()

	personas, err := intelligence.NewPersonaRegistry()
	suite.Require().NoError(err)
	suite.gate = intelligence.NewQualityGate(suite.testDB.DB, personas, context_quality.MustNewRegistry(), suite.analyzer, nil)
	suite.scanner = NewScanner(suite.testDB.DB, suite.gate, fixedSettings{concurrency: 2, lookback: 7}, suite.lock)
}

func (suite *ScannerTestSuite) TearDownTest() {
	suite.testDB.Close()
}

func (suite *ScannerTestSuite) age(table string, id int64, d time.Duration) {
	suite.Require().NoError(suite.testDB.DB.Table(table).Where("id = ?", id).
		UpdateColumn("updated_at", time.Now().Add(-d)).Error)
}

func (suite *ScannerTestSuite) scorer(domain string) *context_quality.Scorer {
	scorer, err := context_quality.MustNewRegistry().Get(domain)
	suite.Require().NoError(err)
	return scorer
}

func (suite *ScannerTestSuite) TestFilterCandidatesKeepsOrder() {
	full1 := suite.factory.CreateFullTicket()
	bare := suite.factory.CreateTicket()
	full2 := suite.factory.CreateFullTicket()

	candidates := []models.Candidate{
		{EntityType: "ticket", EntityID: cast.ToString(full2.ID)},
		{EntityType: "ticket", EntityID: cast.ToString(bare.ID)},
		{EntityType: "ticket", EntityID: "999999"},
		{EntityType: "ticket", EntityID: cast.ToString(full1.ID), Params: map[string]interface{}{"ticket_id": full1.ID}},
	}

	retained, err := FilterCandidates(suite.ctx, suite.testDB.DB, suite.scorer(models.DomainTickets), candidates, 0.3)

	suite.Require().NoError(err)
	suite.Require().Len(retained, 2)
	suite.Equal(cast.ToString(full2.ID), retained[0].EntityID)
	suite.Equal(cast.ToString(full1.ID), retained[1].EntityID)
	suite.Nil(candidates[0].Params)
	suite.Len(candidates[3].Params, 1)
}

func (suite *ScannerTestSuite) TestFilterCandidatesEmpty() {
	retained, err := FilterCandidates(suite.ctx, suite.testDB.DB, suite.scorer(models.DomainTickets), nil, 0.3)
	suite.Require().NoError(err)
	suite.Empty(retained)
}

func (suite *ScannerTestSuite) TestFilterCandidatesPropagatesDatabaseError() {
	candidates := []models.Candidate{{EntityType: "ticket", EntityID: "1"}}
	suite.testDB.Close()

	_, err := FilterCandidates(suite.ctx, suite.testDB.DB, suite.scorer(models.DomainTickets), candidates, 0.3)
	suite.Error(err)
}

func (suite *ScannerTestSuite) TestDiscoverCandidatesLookbackAndLimit() {
	recent := suite.factory.CreateTicket()
	stale := suite.factory.CreateTicket()
	suite.age("tickets", stale.ID, 30*24*time.Hour)
	deleted := suite.factory.CreateTicket()
	suite.Require().NoError(suite.testDB.DB.Delete(deleted).Error)

	def := suite.scorer(models.DomainTickets).Definition()
	candidates, err := DiscoverCandidates(suite.ctx, suite.testDB.DB, def, time.Now().AddDate(0, 0, -7), 10)

	suite.Require().NoError(err)
	suite.Require().Len(candidates, 1)
	suite.Equal(cast.ToString(recent.ID), candidates[0].EntityID)
	suite.Equal("ticket", candidates[0].EntityType)
	suite.Equal(recent.ID, candidates[0].Params["ticket_id"])

	suite.factory.CreateTicket()
	suite.factory.CreateTicket()
	candidates, err = DiscoverCandidates(suite.ctx, suite.testDB.DB, def, time.Now().AddDate(0, 0, -7), 2)
	suite.Require().NoError(err)
	suite.Len(candidates, 2)
}

func (suite *ScannerTestSuite) TestRunAnalyzesOnlySufficientCandidates() {
	suite.factory.CreateFullTicket()
	suite.factory.CreateFullTicket()
	suite.factory.CreateTicket()

	result, err := suite.scanner.Run(suite.ctx, "ticket_analyst", "")

	suite.Require().NoError(err)
	suite.Equal(3, result.Discovered)
	suite.Equal(2, result.Retained)
	suite.Equal(2, result.Completed)
	suite.Equal(0, result.Skipped)
	suite.Equal(models.TriggerManual, result.Trigger)
	suite.Equal(int32(2), atomic.LoadInt32(&suite.analyzer.calls))

	var records []models.InsightRecord
	suite.Require().NoError(suite.testDB.DB.Find(&records).Error)
	suite.Len(records, 2)
	for _, r := range records {
		suite.Equal("batch_scanner", r.Initiator)
		suite.Equal(models.InsightStatusCompleted, r.Status)
	}
}

func (suite *ScannerTestSuite) TestRunCountsFailures() {
	suite.analyzer.err = errors.New("orchestrator unavailable")
	suite.factory.CreateFullVendor()

	result, err := suite.scanner.Run(suite.ctx, "vendor_analyst", models.TriggerScheduled)

	suite.Require().NoError(err)
	suite.Equal(1, result.Retained)
	suite.Equal(1, result.Failed)
	suite.Equal(models.TriggerScheduled, result.Trigger)
}

func (suite *ScannerTestSuite) TestRunRejectsConcurrentScan() {
	ok, err := suite.lock.TryLock(suite.ctx, "batch_scan:ticket_analyst", time.Minute)
	suite.Require().NoError(err)
	suite.Require().True(ok)

	_, err = suite.scanner.Run(suite.ctx, "ticket_analyst", "")
	suite.True(errors.Is(err, ErrScanInProgress))

	// 其他角色不受影响
	_, err = suite.scanner.Run(suite.ctx, "inbox_analyst", "")
	suite.NoError(err)
}

func (suite *ScannerTestSuite) TestRunUnknownPersona() {
	_, err := suite.scanner.Run(suite.ctx, "nobody", "")
	suite.True(errors.Is(err, intelligence.ErrUnknownPersona))
}

func (suite *ScannerTestSuite) TestStartRegistersSchedules() {
	suite.Require().NoError(suite.scanner.Start())
	defer suite.scanner.Stop()

	suite.Len(suite.scanner.NextRuns(), len(intelligence.DefaultPersonas()))
	// 调度循环启动后才计算下次执行时间
	suite.Eventually(func() bool {
		return suite.scanner.NextRuns()["ticket_analyst"].After(time.Now())
	}, 2*time.Second, 20*time.Millisecond)
}
