package domain_health

import (
	"context"
	"testing"
	"time"

	"fieldops-insight-service/service/models"
	"fieldops-insight-service/testutil"

	"github.com/stretchr/testify/suite"
)

type fixedThreshold float64

func (f fixedThreshold) GetReportingThreshold() float64 { return float64(f) }

type AggregatorTestSuite struct {
	suite.Suite
	testDB     *testutil.TestDB
	factory    *testutil.TestDataFactory
	aggregator *Aggregator
	ctx        context.Context
}

func TestAggregatorTestSuite(t *testing.T) {
	suite.Run(t, new(AggregatorTestSuite))
}

func (suite *AggregatorTestSuite) SetupTest() {
	suite.testDB = testutil.NewTestDB()
	suite.factory = testutil.NewTestDataFactory(suite.testDB.DB)
	suite.aggregator = NewAggregator(suite.testDB.DB, fixedThreshold(0.5))
	suite.ctx = context.Background()
}

func (suite *AggregatorTestSuite) TearDownTest() {
	suite.testDB.Close()
}

func (suite *AggregatorTestSuite) insight(status string, score *float64, age time.Duration, opts ...testutil.InsightOption) {
	all := append([]testutil.InsightOption{func(r *models.InsightRecord) {
		r.Status = status
		r.ContextQualityScore = score
		r.CreatedAt = time.Now().Add(-age)
	}}, opts...)
	suite.factory.CreateInsight(all...)
}

func withMissing(fields ...string) testutil.InsightOption {
	return func(r *models.InsightRecord) {
		r.StructuredOutput = models.JSONB{"reason": "insufficient_context", "missing_fields": fields}
	}
}

func withConfidence(v float64) testutil.InsightOption {
	return func(r *models.InsightRecord) { r.ConfidenceScore = &v }
}

func (suite *AggregatorTestSuite) TestEmptyWindow() {
	report, err := suite.aggregator.DomainReport(suite.ctx, models.DomainVendors, 30)

	suite.Require().NoError(err)
	suite.Equal(int64(0), report.TotalEntitiesScanned)
	suite.Equal(0.0, report.AvgContextQuality)
	suite.Equal(0.0, report.PctAboveThreshold)
	suite.Empty(report.CommonMissingFields)
	suite.NotNil(report.CommonMissingFields)
	suite.Nil(report.AvgConfidenceScore)
	suite.Equal(30, report.WindowDays)
	suite.Equal(0.5, report.ReportingThreshold)
}

func (suite *AggregatorTestSuite) TestAggregatesWindow() {
	suite.insight(models.InsightStatusSkipped, testutil.Float64Ptr(0.2), time.Hour)
	suite.insight(models.InsightStatusSkipped, testutil.Float64Ptr(0.4), 2*time.Hour)
	suite.insight(models.InsightStatusCompleted, testutil.Float64Ptr(0.6), 3*time.Hour, withConfidence(0.9))
	suite.insight(models.InsightStatusCompleted, testutil.Float64Ptr(0.8), 4*time.Hour, withConfidence(0.7))
	// 以下记录不计入
	suite.insight(models.InsightStatusFailed, nil, time.Hour)
	suite.insight(models.InsightStatusCompleted, testutil.Float64Ptr(1.0), 40*24*time.Hour)
	suite.insight(models.InsightStatusCompleted, testutil.Float64Ptr(1.0), time.Hour, func(r *models.InsightRecord) {
		r.Domain = models.DomainInbox
	})

	report, err := suite.aggregator.DomainReport(suite.ctx, models.DomainTickets, 30)

	suite.Require().NoError(err)
	suite.Equal(int64(4), report.TotalEntitiesScanned)
	suite.Equal(0.5, report.AvgContextQuality)
	suite.Equal(50.0, report.PctAboveThreshold)
	suite.Equal(int64(2), report.InsightCountCompleted)
	suite.Equal(int64(2), report.InsightCountSkipped)
	suite.Require().NotNil(report.AvgConfidenceScore)
	suite.Equal(0.8, *report.AvgConfidenceScore)
}

func (suite *AggregatorTestSuite) TestAcknowledgedNotCountedAsCompleted() {
	suite.insight(models.InsightStatusAcknowledged, testutil.Float64Ptr(0.9), time.Hour, withConfidence(0.9))

	report, err := suite.aggregator.DomainReport(suite.ctx, models.DomainTickets, 7)

	suite.Require().NoError(err)
	suite.Equal(int64(1), report.TotalEntitiesScanned)
	suite.Equal(int64(0), report.InsightCountCompleted)
	suite.Nil(report.AvgConfidenceScore)
	suite.Equal(100.0, report.PctAboveThreshold)
}

func (suite *AggregatorTestSuite) TestPercentageRoundsToOneDecimal() {
	suite.insight(models.InsightStatusCompleted, testutil.Float64Ptr(0.9), time.Hour)
	suite.insight(models.InsightStatusSkipped, testutil.Float64Ptr(0.1), time.Hour)
	suite.insight(models.InsightStatusSkipped, testutil.Float64Ptr(0.1), time.Hour)

	report, err := suite.aggregator.DomainReport(suite.ctx, models.DomainTickets, 30)

	suite.Require().NoError(err)
	suite.Equal(33.3, report.PctAboveThreshold)
	suite.Equal(0.3667, report.AvgContextQuality)
}

func (suite *AggregatorTestSuite) TestCommonMissingFieldsTieBreak() {
	suite.insight(models.InsightStatusSkipped, testutil.Float64Ptr(0.1), time.Hour, withMissing("description", "comments"))
	suite.insight(models.InsightStatusSkipped, testutil.Float64Ptr(0.1), 2*time.Hour, withMissing("priority", "description"))

	report, err := suite.aggregator.DomainReport(suite.ctx, models.DomainTickets, 30)

	suite.Require().NoError(err)
	suite.Equal([]string{"description", "comments", "priority"}, report.CommonMissingFields)
}

func (suite *AggregatorTestSuite) TestCommonMissingFieldsTopFive() {
	suite.insight(models.InsightStatusSkipped, testutil.Float64Ptr(0.1), time.Hour,
		withMissing("a", "b", "c", "d", "e", "f", "g"))
	suite.insight(models.InsightStatusSkipped, testutil.Float64Ptr(0.1), time.Hour, withMissing("g"))

	report, err := suite.aggregator.DomainReport(suite.ctx, models.DomainTickets, 30)

	suite.Require().NoError(err)
	suite.Equal([]string{"g", "a", "b", "c", "d"}, report.CommonMissingFields)
}

func (suite *AggregatorTestSuite) TestUnknownDomain() {
	_, err := suite.aggregator.DomainReport(suite.ctx, "fiber", 30)
	suite.Error(err)
}

func (suite *AggregatorTestSuite) TestAllDomainsReportOrder() {
	reports, err := NewAggregator(suite.testDB.DB, nil).AllDomainsReport(suite.ctx, 500)

	suite.Require().NoError(err)
	suite.Require().Len(reports, len(models.AllDomains))
	for i, domain := range models.AllDomains {
		suite.Equal(domain, reports[i].Domain)
		suite.Equal(MaxWindowDays, reports[i].WindowDays)
		suite.Equal(DefaultReportingThreshold, reports[i].ReportingThreshold)
	}
}

func (suite *AggregatorTestSuite) TestClampWindowDays() {
	suite.Equal(DefaultWindowDays, ClampWindowDays(0))
	suite.Equal(DefaultWindowDays, ClampWindowDays(-3))
	suite.Equal(1, ClampWindowDays(1))
	suite.Equal(MaxWindowDays, ClampWindowDays(91))
}
