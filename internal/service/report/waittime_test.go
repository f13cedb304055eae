package report

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendly/queue-api/internal/model"
	"github.com/attendly/queue-api/pkg/logger"
)

type fakeSampleRepo struct {
	samples []*model.QueueSample
}

func (r *fakeSampleRepo) Create(_ context.Context, _ *model.QueueEntry, _ model.QueueScope) error {
	return nil
}

func (r *fakeSampleRepo) Get(_ context.Context, _ uuid.UUID) (*model.QueueEntry, error) {
	return nil, nil
}

func (r *fakeSampleRepo) GetByAppointment(_ context.Context, _ uuid.UUID) (*model.QueueEntry, error) {
	return nil, nil
}

func (r *fakeSampleRepo) Update(_ context.Context, _ *model.QueueEntry) error { return nil }

func (r *fakeSampleRepo) CountWaitingBefore(_ context.Context, _ model.QueueScope, _ time.Time) (int, error) {
	return 0, nil
}

func (r *fakeSampleRepo) AvgServiceSeconds(_ context.Context, _ uuid.UUID) (float64, bool, error) {
	return 0, false, nil
}

func (r *fakeSampleRepo) ListSamplesInRange(_ context.Context, _ *model.ReportFilters) ([]*model.QueueSample, error) {
	return r.samples, nil
}

var reportWindow = model.ReportFilters{
	Range: model.DateRange{
		From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	},
}

// makeSample builds a completed queue sample with the given wait and
// service durations.
func makeSample(branchID, serviceID uuid.UUID, wait, service time.Duration) *model.QueueSample {
	created := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	called := created.Add(wait)
	completed := called.Add(service)
	return &model.QueueSample{
		EntryID:     uuid.New(),
		BranchID:    branchID,
		ServiceID:   serviceID,
		CreatedAt:   created,
		CalledAt:    &called,
		CompletedAt: &completed,
	}
}

func TestWaitTimesOverallMetrics(t *testing.T) {
	branchID := uuid.New()
	serviceID := uuid.New()

	repo := &fakeSampleRepo{samples: []*model.QueueSample{
		makeSample(branchID, serviceID, 5*time.Minute, 10*time.Minute),
		makeSample(branchID, serviceID, 10*time.Minute, 10*time.Minute),
		makeSample(branchID, serviceID, 10*time.Second, 10*time.Minute),
	}}
	engine := NewWaitTimeEngine(repo, logger.NewLogger(nil))

	report, err := engine.WaitTimes(context.Background(), &reportWindow)
	require.NoError(t, err)

	// Waits round to [5, 10, 0] minutes.
	assert.Equal(t, 5, report.Overall.Wait.Average)
	assert.Equal(t, 5, report.Overall.Wait.Median)
	assert.Equal(t, 0, report.Overall.Wait.Minimum)
	assert.Equal(t, 10, report.Overall.Wait.Maximum)
	assert.Equal(t, 3, report.Overall.Wait.Count)

	assert.Equal(t, 10, report.Overall.Service.Average)
	require.Len(t, report.Branches, 1)
	assert.Equal(t, branchID, report.Branches[0].Key)
	require.Len(t, report.Services, 1)
	assert.Empty(t, report.ServicePoints, "samples without a service point form no group")
}

func TestWaitTimesEmptyWindow(t *testing.T) {
	engine := NewWaitTimeEngine(&fakeSampleRepo{}, logger.NewLogger(nil))

	report, err := engine.WaitTimes(context.Background(), &reportWindow)
	require.NoError(t, err)

	assert.Equal(t, model.TimeMetrics{}, report.Overall.Wait)
	assert.Equal(t, model.TimeMetrics{}, report.Overall.Service)
	assert.Empty(t, report.Branches)
}

func TestWaitTimesRejectsInvalidSamples(t *testing.T) {
	branchID := uuid.New()
	serviceID := uuid.New()

	created := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	calledBefore := created.Add(-time.Minute)
	completed := created.Add(time.Hour)

	valid := makeSample(branchID, serviceID, 5*time.Minute, 10*time.Minute)
	nonMonotonic := &model.QueueSample{
		EntryID:     uuid.New(),
		BranchID:    branchID,
		ServiceID:   serviceID,
		CreatedAt:   created,
		CalledAt:    &calledBefore,
		CompletedAt: &completed,
	}
	tooLongWait := makeSample(branchID, serviceID, 25*time.Hour, 10*time.Minute)
	tooLongService := makeSample(branchID, serviceID, 5*time.Minute, 9*time.Hour)
	incomplete := &model.QueueSample{
		EntryID:   uuid.New(),
		BranchID:  branchID,
		ServiceID: serviceID,
		CreatedAt: created,
	}

	repo := &fakeSampleRepo{samples: []*model.QueueSample{
		valid, nonMonotonic, tooLongWait, tooLongService, incomplete,
	}}
	engine := NewWaitTimeEngine(repo, logger.NewLogger(nil))

	report, err := engine.WaitTimes(context.Background(), &reportWindow)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Overall.Wait.Count, "only the valid sample survives")
}

func TestComputeMetricsEvenCountMedian(t *testing.T) {
	m := computeMetrics([]int{4, 7, 10, 20})
	assert.Equal(t, 9, m.Median, "even count averages the middle two, rounded")
	assert.Equal(t, 10, m.Average)
	assert.Equal(t, 4, m.Minimum)
	assert.Equal(t, 20, m.Maximum)
	assert.Equal(t, 4, m.Count)
}

func TestSummaryBuckets(t *testing.T) {
	branchID := uuid.New()
	serviceID := uuid.New()

	repo := &fakeSampleRepo{samples: []*model.QueueSample{
		makeSample(branchID, serviceID, 3*time.Minute, 10*time.Minute),
		makeSample(branchID, serviceID, 10*time.Minute, 10*time.Minute),
		makeSample(branchID, serviceID, 20*time.Minute, 10*time.Minute),
		makeSample(branchID, serviceID, 45*time.Minute, 10*time.Minute),
		makeSample(branchID, serviceID, 90*time.Minute, 10*time.Minute),
		makeSample(branchID, serviceID, 90*time.Minute, 10*time.Minute),
	}}
	engine := NewWaitTimeEngine(repo, logger.NewLogger(nil))

	summary, err := engine.Summary(context.Background(), &reportWindow)
	require.NoError(t, err)

	require.Len(t, summary.Buckets, 5)
	labels := []string{"0-5", "6-15", "16-30", "31-60", "60+"}
	counts := []int{1, 1, 1, 1, 2}
	percents := []float64{16.67, 16.67, 16.67, 16.67, 33.33}
	for i, b := range summary.Buckets {
		assert.Equal(t, labels[i], b.Label)
		assert.Equal(t, counts[i], b.Count)
		assert.InDelta(t, percents[i], b.Percent, 0.01)
	}
}

func TestSummaryRanksLowestAverageWaitFirst(t *testing.T) {
	serviceID := uuid.New()

	// Seven branches with distinct average waits; only the five fastest
	// should be ranked.
	repo := &fakeSampleRepo{}
	for i := 1; i <= 7; i++ {
		repo.samples = append(repo.samples,
			makeSample(uuid.New(), serviceID, time.Duration(i*10)*time.Minute, 10*time.Minute))
	}
	engine := NewWaitTimeEngine(repo, logger.NewLogger(nil))

	summary, err := engine.Summary(context.Background(), &reportWindow)
	require.NoError(t, err)

	require.Len(t, summary.TopBranches, 5)
	for i := 1; i < len(summary.TopBranches); i++ {
		assert.LessOrEqual(t,
			summary.TopBranches[i-1].AverageWait,
			summary.TopBranches[i].AverageWait)
	}
	assert.Equal(t, 10, summary.TopBranches[0].AverageWait)
	assert.Equal(t, 50, summary.TopBranches[4].AverageWait)
}
