package report

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/attendly/queue-api/internal/model"
	"github.com/attendly/queue-api/internal/repository"
	"github.com/attendly/queue-api/pkg/logger"
)

// AppointmentEngine aggregates lifecycle outcomes over a filtered window.
// Data-quality problems degrade to zero-valued metrics, never to errors.
type AppointmentEngine struct {
	repo   repository.AppointmentRepository
	logger *logger.Logger
}

func NewAppointmentEngine(repo repository.AppointmentRepository, logger *logger.Logger) *AppointmentEngine {
	return &AppointmentEngine{repo: repo, logger: logger}
}

func (e *AppointmentEngine) Report(ctx context.Context, filters *model.ReportFilters) (*model.AppointmentReport, error) {
	rows, err := e.repo.List(ctx, &model.AppointmentFilters{
		BranchID:       filters.BranchID,
		ServiceID:      filters.ServiceID,
		ServicePointID: filters.ServicePointID,
		From:           filters.Range.From,
		To:             filters.Range.To,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}

	report := &model.AppointmentReport{
		Total:        len(rows),
		StatusCounts: countStatuses(rows),
	}

	// Reschedule lineage is tracked separately from status, so this count
	// is independent of the status grouping above.
	for _, apt := range rows {
		if apt.RescheduledFromID != nil {
			report.Rescheduled++
		}
	}

	report.AttendanceRate, report.CompletionRate, report.NoShowRate = deriveRates(report.StatusCounts, report.Total)
	report.Branches = e.branchBreakdown(rows)
	report.Services = e.serviceBreakdown(rows)

	return report, nil
}

func countStatuses(rows []*model.Appointment) map[model.AppointmentStatus]int {
	counts := make(map[model.AppointmentStatus]int)
	for _, apt := range rows {
		counts[apt.Status]++
	}
	return counts
}

// deriveRates returns attendance, completion and no-show percentages
// rounded to two decimals. All rates are zero when total is zero.
func deriveRates(counts map[model.AppointmentStatus]int, total int) (attendance, completion, noShow float64) {
	if total == 0 {
		return 0, 0, 0
	}

	attended := counts[model.AppointmentStatusCompleted] + counts[model.AppointmentStatusCheckedIn]
	attendance = round2(float64(attended) / float64(total) * 100)
	completion = round2(float64(counts[model.AppointmentStatusCompleted]) / float64(total) * 100)
	noShow = round2(float64(counts[model.AppointmentStatusNoShow]) / float64(total) * 100)
	return attendance, completion, noShow
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (e *AppointmentEngine) branchBreakdown(rows []*model.Appointment) []model.BranchOutcomes {
	byBranch := make(map[uuid.UUID][]*model.Appointment)
	for _, apt := range rows {
		byBranch[apt.BranchID] = append(byBranch[apt.BranchID], apt)
	}

	branches := make([]model.BranchOutcomes, 0, len(byBranch))
	for branchID, group := range byBranch {
		counts := countStatuses(group)
		out := model.BranchOutcomes{
			BranchID:     branchID,
			Total:        len(group),
			StatusCounts: counts,
		}
		out.AttendanceRate, out.CompletionRate, out.NoShowRate = deriveRates(counts, out.Total)
		branches = append(branches, out)
	}

	sort.Slice(branches, func(i, j int) bool {
		if branches[i].Total != branches[j].Total {
			return branches[i].Total > branches[j].Total
		}
		return branches[i].BranchID.String() < branches[j].BranchID.String()
	})
	return branches
}

func (e *AppointmentEngine) serviceBreakdown(rows []*model.Appointment) []model.ServiceOutcomes {
	byService := make(map[uuid.UUID][]*model.Appointment)
	for _, apt := range rows {
		byService[apt.ServiceID] = append(byService[apt.ServiceID], apt)
	}

	services := make([]model.ServiceOutcomes, 0, len(byService))
	for serviceID, group := range byService {
		counts := countStatuses(group)
		out := model.ServiceOutcomes{
			ServiceID:            serviceID,
			Total:                len(group),
			StatusCounts:         counts,
			AvgCompletionMinutes: avgCompletionMinutes(group),
		}
		out.AttendanceRate, out.CompletionRate, out.NoShowRate = deriveRates(counts, out.Total)
		services = append(services, out)
	}

	// Popularity-sorted: rank and trend derive from list position alone.
	sort.Slice(services, func(i, j int) bool {
		if services[i].Total != services[j].Total {
			return services[i].Total > services[j].Total
		}
		return services[i].ServiceID.String() < services[j].ServiceID.String()
	})

	for i := range services {
		services[i].PopularityRank = i + 1
		services[i].DemandTrend = trendForPosition(i, len(services))
	}
	return services
}

func avgCompletionMinutes(rows []*model.Appointment) int {
	sum := 0.0
	count := 0
	for _, apt := range rows {
		if apt.AttendedAt == nil {
			continue
		}
		minutes := apt.AttendedAt.Sub(apt.ScheduledAt).Minutes()
		sum += minutes
		count++
	}
	if count == 0 {
		return 0
	}
	return int(math.Round(sum / float64(count)))
}

// trendForPosition labels a service by its slot in the popularity-sorted
// list: top third increasing, bottom third decreasing, middle stable. It is
// a display heuristic, not a time-series forecast.
func trendForPosition(index, total int) model.DemandTrend {
	if total == 0 {
		return model.DemandTrendStable
	}
	third := float64(index) / float64(total)
	switch {
	case third < 1.0/3.0:
		return model.DemandTrendIncreasing
	case third >= 2.0/3.0:
		return model.DemandTrendDecreasing
	default:
		return model.DemandTrendStable
	}
}
