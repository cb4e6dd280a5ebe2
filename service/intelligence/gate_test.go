/*
 * @module service/intelligence/gate_test
 * @description 质量门控测试
 * @architecture 测试层 - 内存 SQLite + Mock 下游分析服务
 * @documentReference DESIGN.md
 * @stateFlow 构造实体 -> 门控调用 -> 校验洞察记录与下游调用次数
 * @rules 跳过路径零下游调用；不跳过角色必定调用一次；失败保留评分
 * @dependencies testing, testify, fieldops-insight-service/testutil
 * @refs gate.go, insight_store.go
 */

package intelligence

import (
	"context"
	"errors"
	"sync"
	"testing"

	"fieldops-insight-service/service/context_quality"
	"fieldops-insight-service/service/models"
	"fieldops-insight-service/testutil"

	"github.com/spf13/cast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// MockAnalyzer 模拟下游分析服务
type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) Analyze(ctx context.Context, req *AnalysisRequest) (*AnalysisResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*AnalysisResult), args.Error(1)
}

// recordingPublisher 记录发布的事件
type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.InsightEvent
	err    error
}

func (p *recordingPublisher) Name() string { return "recording" }

func (p *recordingPublisher) Publish(_ context.Context, e *models.InsightEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type GateTestSuite struct {
	suite.Suite
	testDB    *testutil.TestDB
	factory   *testutil.TestDataFactory
	analyzer  *MockAnalyzer
	publisher *recordingPublisher
	gate      *QualityGate
	ctx       context.Context
}

func TestGateTestSuite(t *testing.T) {
	suite.Run(t, new(GateTestSuite))
}

func (suite *GateTestSuite) SetupTest() {
	suite.testDB = testutil.NewTestDB()
	suite.factory = testutil.NewTestDataFactory(suite.testDB.DB)
	suite.analyzer = new(MockAnalyzer)
	suite.publisher = &recordingPublisher{}
	suite.ctx = context.Background()

	personas, err := NewPersonaRegistry()
	suite.Require().NoError(err)
	suite.gate = NewQualityGate(suite.testDB.DB, personas, context_quality.MustNewRegistry(), suite.analyzer, suite.publisher)
}

func (suite *GateTestSuite) TearDownTest() {
	suite.testDB.Close()
}

func (suite *GateTestSuite) countRecords() int64 {
	var count int64
	suite.Require().NoError(suite.testDB.DB.Model(&models.InsightRecord{}).Count(&count).Error)
	return count
}

func (suite *GateTestSuite) TestSkipPersonaLowQualityWritesSkippedRecord() {
	ticket := suite.factory.CreateTicket()
	params := map[string]interface{}{"ticket_id": ticket.ID}

	record, err := suite.gate.Invoke(suite.ctx, InvokeRequest{PersonaKey: "ticket_analyst", Params: params, Initiator: "alice"})

	suite.Require().NoError(err)
	suite.Equal(models.InsightStatusSkipped, record.Status)
	suite.Require().NotNil(record.ContextQualityScore)
	suite.Equal(0.15, *record.ContextQualityScore)
	suite.Equal(0, record.TokensUsed)
	suite.Equal(0.0, record.CostUSD)
	suite.Equal(int64(0), record.DurationMS)
	suite.Equal("ticket", record.EntityType)
	suite.Equal(cast.ToString(ticket.ID), record.EntityID)
	suite.Equal(models.TriggerManual, record.Trigger)
	suite.Equal("alice", record.Initiator)

	suite.analyzer.AssertNotCalled(suite.T(), "Analyze", mock.Anything, mock.Anything)
	suite.Equal(int64(1), suite.countRecords())

	stored, err := suite.gate.Store().Get(suite.ctx, record.ID)
	suite.Require().NoError(err)
	suite.Equal(SkipReasonInsufficientContext, stored.StructuredOutput["reason"])
	suite.InDelta(0.30, stored.StructuredOutput["threshold"], 0.0001)
	suite.Contains(stored.StructuredOutput, "field_scores")
	suite.Equal([]string{"description", "status", "priority", "customer", "assignee", "comments", "sla_events"},
		stored.StructuredOutput.StringSlice("missing_fields"))

	suite.Len(suite.publisher.events, 1)
	suite.Equal("insight.skipped", suite.publisher.events[0].EventType)
}

func (suite *GateTestSuite) TestSkipSummaryNamesAtMostFiveFields() {
	ticket := suite.factory.CreateTicket()

	record, err := suite.gate.Invoke(suite.ctx, InvokeRequest{PersonaKey: "ticket_analyst", Params: map[string]interface{}{"ticket_id": ticket.ID}})
	suite.Require().NoError(err)

	suite.Contains(record.Summary, "Description")
	suite.Contains(record.Summary, "Customer")
	suite.Contains(record.Summary, "Assignee")
	suite.NotContains(record.Summary, "Comments")
	suite.NotContains(record.Summary, "Sla Events")
	suite.Contains(record.Summary, "7")
}

func (suite *GateTestSuite) TestSufficientContextProceedsToAnalysis() {
	ticket := suite.factory.CreateFullTicket()
	confidence := 0.82

	suite.analyzer.On("Analyze", mock.Anything, mock.MatchedBy(func(req *AnalysisRequest) bool {
		return req.PersonaKey == "ticket_analyst" && req.Quality.Sufficient && req.InsightID != ""
	})).Return(&AnalysisResult{
		Title:            "建议升级到二线",
		Summary:          "光猫 LOS 告警持续，建议派工",
		StructuredOutput: map[string]interface{}{"action": "dispatch"},
		ConfidenceScore:  &confidence,
		TokensUsed:       1200,
		CostUSD:          0.018,
	}, nil).Once()

	record, err := suite.gate.Invoke(suite.ctx, InvokeRequest{
		PersonaKey: "ticket_analyst",
		Params:     map[string]interface{}{"ticket_id": ticket.ID},
		Trigger:    models.TriggerEvent,
	})

	suite.Require().NoError(err)
	suite.analyzer.AssertNumberOfCalls(suite.T(), "Analyze", 1)
	suite.Equal(models.InsightStatusCompleted, record.Status)
	suite.Equal(1.0, *record.ContextQualityScore)
	suite.Require().NotNil(record.ConfidenceScore)
	suite.Equal(0.82, *record.ConfidenceScore)
	suite.Equal(1200, record.TokensUsed)
	suite.Equal("dispatch", record.StructuredOutput["action"])
	suite.Equal(models.TriggerEvent, record.Trigger)
	suite.Equal(int64(1), suite.countRecords())

	suite.Len(suite.publisher.events, 1)
	suite.Equal("insight.completed", suite.publisher.events[0].EventType)
}

func (suite *GateTestSuite) TestNonSkipPersonaAnalyzesLowQualityEntity() {
	vendor := suite.factory.CreateVendor()

	suite.analyzer.On("Analyze", mock.Anything, mock.MatchedBy(func(req *AnalysisRequest) bool {
		return !req.Quality.Sufficient
	})).Return(&AnalysisResult{Title: "供应商数据稀疏"}, nil).Once()

	record, err := suite.gate.Invoke(suite.ctx, InvokeRequest{PersonaKey: "vendor_analyst", Params: map[string]interface{}{"vendor_id": vendor.ID}})

	suite.Require().NoError(err)
	suite.analyzer.AssertNumberOfCalls(suite.T(), "Analyze", 1)
	suite.Equal(models.InsightStatusCompleted, record.Status)
	suite.Require().NotNil(record.ContextQualityScore)
	suite.Equal(0.1, *record.ContextQualityScore)
	suite.Equal(int64(1), suite.countRecords())
}

func (suite *GateTestSuite) TestAnalysisFailureKeepsScore() {
	ticket := suite.factory.CreateFullTicket()
	suite.analyzer.On("Analyze", mock.Anything, mock.Anything).Return(nil, errors.New("orchestrator unavailable")).Once()

	record, err := suite.gate.Invoke(suite.ctx, InvokeRequest{PersonaKey: "ticket_analyst", Params: map[string]interface{}{"ticket_id": ticket.ID}})

	suite.Error(err)
	suite.Require().NotNil(record)
	suite.Equal(models.InsightStatusFailed, record.Status)
	suite.Require().NotNil(record.ContextQualityScore)
	suite.Equal(1.0, *record.ContextQualityScore)
	suite.Contains(record.ErrorMessage, "orchestrator unavailable")
	suite.Equal(int64(1), suite.countRecords())
	suite.Equal("insight.failed", suite.publisher.events[0].EventType)
}

func (suite *GateTestSuite) TestUnknownPersona() {
	record, err := suite.gate.Invoke(suite.ctx, InvokeRequest{PersonaKey: "fiber_planner", Params: map[string]interface{}{"ticket_id": 1}})

	suite.Nil(record)
	suite.True(errors.Is(err, ErrUnknownPersona))
	suite.Equal(int64(0), suite.countRecords())
	suite.analyzer.AssertNotCalled(suite.T(), "Analyze", mock.Anything, mock.Anything)
}

func (suite *GateTestSuite) TestScorerFailurePersistsNothing() {
	ticket := suite.factory.CreateTicket()
	suite.testDB.Close()

	record, err := suite.gate.Invoke(suite.ctx, InvokeRequest{PersonaKey: "ticket_analyst", Params: map[string]interface{}{"ticket_id": ticket.ID}})

	suite.Nil(record)
	suite.Error(err)
	suite.Empty(suite.publisher.events)
}

func (suite *GateTestSuite) TestCallerParamsAreNotMutated() {
	ticket := suite.factory.CreateTicket()
	params := map[string]interface{}{"ticket_id": ticket.ID}

	_, err := suite.gate.Invoke(suite.ctx, InvokeRequest{PersonaKey: "ticket_analyst", Params: params})
	suite.Require().NoError(err)

	suite.Len(params, 1)
	suite.NotContains(params, context_quality.ThresholdParamKey)
}

func (suite *GateTestSuite) TestPublishFailureIsNotSurfaced() {
	suite.publisher.err = errors.New("broker down")
	ticket := suite.factory.CreateTicket()

	record, err := suite.gate.Invoke(suite.ctx, InvokeRequest{PersonaKey: "ticket_analyst", Params: map[string]interface{}{"ticket_id": ticket.ID}})

	suite.NoError(err)
	suite.Equal(models.InsightStatusSkipped, record.Status)
}

func (suite *GateTestSuite) TestEvaluateUsesPersonaThreshold() {
	campaign := suite.factory.CreateFullCampaign()

	eval, err := suite.gate.Evaluate(suite.ctx, "campaign_optimizer", map[string]interface{}{"campaign_id": campaign.ID})

	suite.Require().NoError(err)
	suite.Equal(0.40, eval.Quality.Threshold)
	suite.False(eval.Skip)
	suite.Equal(int64(0), suite.countRecords())
}

func TestSkipSummary(t *testing.T) {
	short := skipSummary(&models.EntityQualityResult{
		Score:         0.15,
		Threshold:     0.30,
		MissingFields: []string{"description", "sla_events"},
	})
	assert.Equal(t, "上下文质量 0.15 低于阈值 0.30，缺少: Description, Sla Events", short)

	long := skipSummary(&models.EntityQualityResult{
		Score:         0.15,
		Threshold:     0.30,
		MissingFields: []string{"status", "priority", "description", "comments", "sla_events", "customer", "assignee"},
	})
	assert.Equal(t, "上下文质量 0.15 低于阈值 0.30，缺少: Status, Priority, Description, Comments, Sla Events 等，另有 2 项", long)
}
