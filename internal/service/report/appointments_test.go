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

type fakeAppointmentListRepo struct {
	rows []*model.Appointment
}

func (r *fakeAppointmentListRepo) Create(_ context.Context, _ *model.Appointment) error { return nil }

func (r *fakeAppointmentListRepo) Get(_ context.Context, _ uuid.UUID) (*model.Appointment, error) {
	return nil, nil
}

func (r *fakeAppointmentListRepo) Update(_ context.Context, _ *model.Appointment) error { return nil }

func (r *fakeAppointmentListRepo) List(_ context.Context, _ *model.AppointmentFilters) ([]*model.Appointment, error) {
	return r.rows, nil
}

func (r *fakeAppointmentListRepo) FindScheduledBefore(_ context.Context, _ time.Time) ([]*model.Appointment, error) {
	return nil, nil
}

func (r *fakeAppointmentListRepo) MarkNoShow(_ context.Context, _ uuid.UUID, _ time.Time, _ bool) (bool, error) {
	return false, nil
}

func (r *fakeAppointmentListRepo) Reschedule(_ context.Context, _, _ *model.Appointment) error {
	return nil
}

func statusRow(branchID, serviceID uuid.UUID, status model.AppointmentStatus) *model.Appointment {
	return &model.Appointment{
		ID:          uuid.New(),
		ServiceID:   serviceID,
		BranchID:    branchID,
		Status:      status,
		Type:        model.AppointmentTypeAppointment,
		ScheduledAt: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
	}
}

func TestReportRates(t *testing.T) {
	branchID := uuid.New()
	serviceID := uuid.New()

	rows := []*model.Appointment{}
	for i := 0; i < 4; i++ {
		rows = append(rows, statusRow(branchID, serviceID, model.AppointmentStatusCompleted))
	}
	for i := 0; i < 2; i++ {
		rows = append(rows, statusRow(branchID, serviceID, model.AppointmentStatusCheckedIn))
	}
	rows = append(rows, statusRow(branchID, serviceID, model.AppointmentStatusScheduled))
	rows = append(rows, statusRow(branchID, serviceID, model.AppointmentStatusCancelled))
	for i := 0; i < 2; i++ {
		rows = append(rows, statusRow(branchID, serviceID, model.AppointmentStatusNoShow))
	}

	engine := NewAppointmentEngine(&fakeAppointmentListRepo{rows: rows}, logger.NewLogger(nil))
	report, err := engine.Report(context.Background(), &reportWindow)
	require.NoError(t, err)

	assert.Equal(t, 10, report.Total)
	assert.Equal(t, 4, report.StatusCounts[model.AppointmentStatusCompleted])
	assert.InDelta(t, 60.0, report.AttendanceRate, 0.001)
	assert.InDelta(t, 40.0, report.CompletionRate, 0.001)
	assert.InDelta(t, 20.0, report.NoShowRate, 0.001)
}

func TestReportEmptyWindowHasZeroRates(t *testing.T) {
	engine := NewAppointmentEngine(&fakeAppointmentListRepo{}, logger.NewLogger(nil))

	report, err := engine.Report(context.Background(), &reportWindow)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Total)
	assert.Zero(t, report.AttendanceRate)
	assert.Zero(t, report.CompletionRate)
	assert.Zero(t, report.NoShowRate)
	assert.Empty(t, report.Branches)
	assert.Empty(t, report.Services)
}

func TestReportCountsRescheduledByLineage(t *testing.T) {
	branchID := uuid.New()
	serviceID := uuid.New()

	parent := statusRow(branchID, serviceID, model.AppointmentStatusScheduled)
	child := statusRow(branchID, serviceID, model.AppointmentStatusScheduled)
	child.RescheduledFromID = &parent.ID

	engine := NewAppointmentEngine(&fakeAppointmentListRepo{
		rows: []*model.Appointment{parent, child},
	}, logger.NewLogger(nil))

	report, err := engine.Report(context.Background(), &reportWindow)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rescheduled)
}

func TestReportServicePopularityAndTrend(t *testing.T) {
	branchID := uuid.New()
	busy := uuid.New()
	middle := uuid.New()
	quiet := uuid.New()

	rows := []*model.Appointment{}
	for i := 0; i < 5; i++ {
		rows = append(rows, statusRow(branchID, busy, model.AppointmentStatusCompleted))
	}
	for i := 0; i < 3; i++ {
		rows = append(rows, statusRow(branchID, middle, model.AppointmentStatusCompleted))
	}
	rows = append(rows, statusRow(branchID, quiet, model.AppointmentStatusCompleted))

	engine := NewAppointmentEngine(&fakeAppointmentListRepo{rows: rows}, logger.NewLogger(nil))
	report, err := engine.Report(context.Background(), &reportWindow)
	require.NoError(t, err)

	require.Len(t, report.Services, 3)
	assert.Equal(t, busy, report.Services[0].ServiceID)
	assert.Equal(t, 1, report.Services[0].PopularityRank)
	assert.Equal(t, model.DemandTrendIncreasing, report.Services[0].DemandTrend)

	assert.Equal(t, middle, report.Services[1].ServiceID)
	assert.Equal(t, 2, report.Services[1].PopularityRank)
	assert.Equal(t, model.DemandTrendStable, report.Services[1].DemandTrend)

	assert.Equal(t, quiet, report.Services[2].ServiceID)
	assert.Equal(t, 3, report.Services[2].PopularityRank)
	assert.Equal(t, model.DemandTrendDecreasing, report.Services[2].DemandTrend)
}

func TestReportBranchBreakdownSortedByVolume(t *testing.T) {
	serviceID := uuid.New()
	big := uuid.New()
	small := uuid.New()

	rows := []*model.Appointment{}
	for i := 0; i < 3; i++ {
		rows = append(rows, statusRow(big, serviceID, model.AppointmentStatusCompleted))
	}
	rows = append(rows, statusRow(small, serviceID, model.AppointmentStatusNoShow))

	engine := NewAppointmentEngine(&fakeAppointmentListRepo{rows: rows}, logger.NewLogger(nil))
	report, err := engine.Report(context.Background(), &reportWindow)
	require.NoError(t, err)

	require.Len(t, report.Branches, 2)
	assert.Equal(t, big, report.Branches[0].BranchID)
	assert.Equal(t, 3, report.Branches[0].Total)
	assert.InDelta(t, 100.0, report.Branches[0].CompletionRate, 0.001)
	assert.Equal(t, small, report.Branches[1].BranchID)
	assert.InDelta(t, 100.0, report.Branches[1].NoShowRate, 0.001)
}

func TestReportAvgCompletionMinutes(t *testing.T) {
	branchID := uuid.New()
	serviceID := uuid.New()

	first := statusRow(branchID, serviceID, model.AppointmentStatusCompleted)
	attended1 := first.ScheduledAt.Add(10 * time.Minute)
	first.AttendedAt = &attended1

	second := statusRow(branchID, serviceID, model.AppointmentStatusCompleted)
	attended2 := second.ScheduledAt.Add(20 * time.Minute)
	second.AttendedAt = &attended2

	neverAttended := statusRow(branchID, serviceID, model.AppointmentStatusNoShow)

	engine := NewAppointmentEngine(&fakeAppointmentListRepo{
		rows: []*model.Appointment{first, second, neverAttended},
	}, logger.NewLogger(nil))

	report, err := engine.Report(context.Background(), &reportWindow)
	require.NoError(t, err)

	require.Len(t, report.Services, 1)
	assert.Equal(t, 15, report.Services[0].AvgCompletionMinutes)
}
