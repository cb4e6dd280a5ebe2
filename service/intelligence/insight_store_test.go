package intelligence

import (
	"context"
	"errors"
	"testing"
	"time"

	"fieldops-insight-service/service/models"
	"fieldops-insight-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoreFixture(t *testing.T) (*InsightStore, *testutil.TestDataFactory) {
	t.Helper()
	testDB := testutil.NewTestDB()
	t.Cleanup(testDB.Close)
	return NewInsightStore(testDB.DB), testutil.NewTestDataFactory(testDB.DB)
}

func TestInsightStoreCreateAssignsID(t *testing.T) {
	store, _ := newStoreFixture(t)
	ctx := context.Background()

	record := &models.InsightRecord{
		Domain:              models.DomainInbox,
		PersonaKey:          "inbox_analyst",
		EntityType:          "conversation",
		EntityID:            "3",
		ContextQualityScore: testutil.Float64Ptr(0.4),
	}
	require.NoError(t, store.Create(ctx, nil, record))

	assert.Len(t, record.ID, 36)
	assert.Equal(t, models.InsightStatusPending, record.Status)

	got, err := store.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.4, *got.ContextQualityScore)
}

func TestInsightStoreCompleteOnlyOnce(t *testing.T) {
	store, factory := newStoreFixture(t)
	ctx := context.Background()
	pending := factory.CreateInsight(func(r *models.InsightRecord) {
		r.Status = models.InsightStatusPending
		r.ContextQualityScore = testutil.Float64Ptr(0.66)
	})

	completed, err := store.MarkCompleted(ctx, pending.ID, &AnalysisResult{Title: "ok", TokensUsed: 10}, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, models.InsightStatusCompleted, completed.Status)
	assert.Equal(t, int64(2000), completed.DurationMS)
	assert.Equal(t, 0.66, *completed.ContextQualityScore)

	_, err = store.MarkFailed(ctx, pending.ID, errors.New("late failure"), 0)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	_, err = store.MarkCompleted(ctx, "missing-id", &AnalysisResult{}, 0)
	assert.True(t, errors.Is(err, ErrInsightNotFound))
}

func TestInsightStoreLifecycleTransitions(t *testing.T) {
	store, factory := newStoreFixture(t)
	ctx := context.Background()

	skipped := factory.CreateInsight(func(r *models.InsightRecord) { r.Status = models.InsightStatusSkipped })
	_, err := store.Acknowledge(ctx, skipped.ID, "bob")
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	completed := factory.CreateInsight()
	acked, err := store.Acknowledge(ctx, completed.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.InsightStatusAcknowledged, acked.Status)
	assert.Equal(t, "bob", acked.AcknowledgedBy)
	assert.NotNil(t, acked.AcknowledgedAt)

	actioned, err := store.MarkActioned(ctx, completed.ID, "carol")
	require.NoError(t, err)
	assert.Equal(t, models.InsightStatusActioned, actioned.Status)
	assert.Equal(t, "carol", actioned.ActionedBy)

	_, err = store.Acknowledge(ctx, completed.ID, "bob")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestInsightStoreExpireStalePending(t *testing.T) {
	store, factory := newStoreFixture(t)
	ctx := context.Background()

	stale := factory.CreateInsight(func(r *models.InsightRecord) {
		r.Status = models.InsightStatusPending
		r.CreatedAt = time.Now().Add(-3 * time.Hour)
		r.ContextQualityScore = testutil.Float64Ptr(0.7)
	})
	fresh := factory.CreateInsight(func(r *models.InsightRecord) { r.Status = models.InsightStatusPending })

	n, err := store.ExpireStalePending(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InsightStatusExpired, got.Status)
	assert.Equal(t, 0.7, *got.ContextQualityScore)

	got, err = store.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InsightStatusPending, got.Status)
}

func TestInsightStoreListFiltersAndPaginates(t *testing.T) {
	store, factory := newStoreFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		factory.CreateInsight(func(r *models.InsightRecord) {
			r.CreatedAt = time.Now().Add(-time.Duration(i) * time.Minute)
		})
	}
	factory.CreateInsight(func(r *models.InsightRecord) {
		r.Domain = models.DomainVendors
		r.PersonaKey = "vendor_analyst"
		r.Status = models.InsightStatusSkipped
	})

	records, total, err := store.List(ctx, InsightFilter{Domain: models.DomainTickets}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, records, 2)
	assert.True(t, !records[0].CreatedAt.Before(records[1].CreatedAt))

	records, total, err = store.List(ctx, InsightFilter{Status: models.InsightStatusSkipped}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "vendor_analyst", records[0].PersonaKey)

	_, err = store.Get(ctx, "nope")
	assert.True(t, errors.Is(err, ErrInsightNotFound))
}
