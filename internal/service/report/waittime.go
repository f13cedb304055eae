package report

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/attendly/queue-api/internal/model"
	"github.com/attendly/queue-api/internal/repository"
	"github.com/attendly/queue-api/pkg/logger"
)

// Validity bounds for queue-time samples. A wait over 24h or a service
// over 8h indicates corrupt or stale data, not a real measurement.
const (
	maxWaitMinutes    = 1440
	maxServiceMinutes = 480
)

// WaitTimeEngine computes validated wait/service-time statistics from
// completed queue entries. Invalid samples are logged and skipped; they
// never surface as errors.
type WaitTimeEngine struct {
	repo   repository.QueueRepository
	logger *logger.Logger
}

func NewWaitTimeEngine(repo repository.QueueRepository, logger *logger.Logger) *WaitTimeEngine {
	return &WaitTimeEngine{repo: repo, logger: logger}
}

type sample struct {
	branchID       uuid.UUID
	serviceID      uuid.UUID
	servicePointID *uuid.UUID
	waitMinutes    int
	serviceMinutes int
}

// WaitTimes returns TimeMetrics grouped by branch, service and service
// point for the filtered window.
func (e *WaitTimeEngine) WaitTimes(ctx context.Context, filters *model.ReportFilters) (*model.WaitTimeReport, error) {
	samples, err := e.collect(ctx, filters)
	if err != nil {
		return nil, err
	}

	report := &model.WaitTimeReport{
		Overall:       overallMetrics(samples),
		Branches:      groupMetrics(samples, func(s sample) (uuid.UUID, bool) { return s.branchID, true }),
		Services:      groupMetrics(samples, func(s sample) (uuid.UUID, bool) { return s.serviceID, true }),
		ServicePoints: groupMetrics(samples, func(s sample) (uuid.UUID, bool) {
			if s.servicePointID == nil {
				return uuid.Nil, false
			}
			return *s.servicePointID, true
		}),
	}
	return report, nil
}

// Summary ranks the five branches and services with the lowest average
// wait and buckets all valid wait times into fixed ranges.
func (e *WaitTimeEngine) Summary(ctx context.Context, filters *model.ReportFilters) (*model.WaitTimeSummary, error) {
	samples, err := e.collect(ctx, filters)
	if err != nil {
		return nil, err
	}

	branches := groupMetrics(samples, func(s sample) (uuid.UUID, bool) { return s.branchID, true })
	services := groupMetrics(samples, func(s sample) (uuid.UUID, bool) { return s.serviceID, true })

	return &model.WaitTimeSummary{
		Overall:     overallMetrics(samples),
		TopBranches: rankByAverageWait(branches, 5),
		TopServices: rankByAverageWait(services, 5),
		Buckets:     bucketWaits(samples),
	}, nil
}

func (e *WaitTimeEngine) collect(ctx context.Context, filters *model.ReportFilters) ([]sample, error) {
	rows, err := e.repo.ListSamplesInRange(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue samples: %w", err)
	}

	samples := make([]sample, 0, len(rows))
	for _, row := range rows {
		s, ok := e.validate(row)
		if !ok {
			continue
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func (e *WaitTimeEngine) validate(row *model.QueueSample) (sample, bool) {
	if row.CalledAt == nil || row.CompletedAt == nil {
		return sample{}, false
	}

	if !row.CalledAt.After(row.CreatedAt) || !row.CompletedAt.After(*row.CalledAt) {
		e.logger.Warn("rejecting queue sample with non-monotonic timestamps",
			"entry_id", row.EntryID.String())
		return sample{}, false
	}

	wait := roundMinutes(row.CalledAt.Sub(row.CreatedAt))
	service := roundMinutes(row.CompletedAt.Sub(*row.CalledAt))

	if wait < 0 || service < 0 || wait > maxWaitMinutes || service > maxServiceMinutes {
		e.logger.Warn("rejecting queue sample outside validity bounds",
			"entry_id", row.EntryID.String(),
			"wait_minutes", wait,
			"service_minutes", service)
		return sample{}, false
	}

	return sample{
		branchID:       row.BranchID,
		serviceID:      row.ServiceID,
		servicePointID: row.ServicePointID,
		waitMinutes:    wait,
		serviceMinutes: service,
	}, true
}

func roundMinutes(d time.Duration) int {
	return int(math.Round(d.Minutes()))
}

// computeMetrics derives TimeMetrics from a set of minute values. Empty
// input yields all-zero metrics rather than an error.
func computeMetrics(values []int) model.TimeMetrics {
	if len(values) == 0 {
		return model.TimeMetrics{}
	}

	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)

	sum := 0
	for _, v := range sorted {
		sum += v
	}

	n := len(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = int(math.Round(float64(sorted[n/2-1]+sorted[n/2]) / 2))
	}

	return model.TimeMetrics{
		Average: int(math.Round(float64(sum) / float64(n))),
		Median:  median,
		Minimum: sorted[0],
		Maximum: sorted[n-1],
		Count:   n,
	}
}

func overallMetrics(samples []sample) model.GroupOverall {
	waits := make([]int, 0, len(samples))
	services := make([]int, 0, len(samples))
	for _, s := range samples {
		waits = append(waits, s.waitMinutes)
		services = append(services, s.serviceMinutes)
	}
	return model.GroupOverall{
		Wait:    computeMetrics(waits),
		Service: computeMetrics(services),
	}
}

func groupMetrics(samples []sample, key func(sample) (uuid.UUID, bool)) []model.GroupTimeMetrics {
	type accum struct {
		waits    []int
		services []int
	}
	groups := make(map[uuid.UUID]*accum)

	for _, s := range samples {
		k, ok := key(s)
		if !ok {
			continue
		}
		g, exists := groups[k]
		if !exists {
			g = &accum{}
			groups[k] = g
		}
		g.waits = append(g.waits, s.waitMinutes)
		g.services = append(g.services, s.serviceMinutes)
	}

	result := make([]model.GroupTimeMetrics, 0, len(groups))
	for k, g := range groups {
		result = append(result, model.GroupTimeMetrics{
			Key:     k,
			Wait:    computeMetrics(g.waits),
			Service: computeMetrics(g.services),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key.String() < result[j].Key.String()
	})
	return result
}

func rankByAverageWait(groups []model.GroupTimeMetrics, limit int) []model.RankedGroup {
	ranked := make([]model.RankedGroup, 0, len(groups))
	for _, g := range groups {
		ranked = append(ranked, model.RankedGroup{
			Key:         g.Key,
			AverageWait: g.Wait.Average,
			Count:       g.Wait.Count,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].AverageWait != ranked[j].AverageWait {
			return ranked[i].AverageWait < ranked[j].AverageWait
		}
		return ranked[i].Key.String() < ranked[j].Key.String()
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

var bucketBounds = []struct {
	label string
	max   int
}{
	{"0-5", 5},
	{"6-15", 15},
	{"16-30", 30},
	{"31-60", 60},
	{"60+", math.MaxInt},
}

func bucketWaits(samples []sample) []model.WaitBucket {
	counts := make([]int, len(bucketBounds))
	for _, s := range samples {
		for i, b := range bucketBounds {
			if s.waitMinutes <= b.max {
				counts[i]++
				break
			}
		}
	}

	total := len(samples)
	buckets := make([]model.WaitBucket, len(bucketBounds))
	for i, b := range bucketBounds {
		percent := 0.0
		if total > 0 {
			percent = math.Round(float64(counts[i])/float64(total)*10000) / 100
		}
		buckets[i] = model.WaitBucket{
			Label:   b.label,
			Count:   counts[i],
			Percent: percent,
		}
	}
	return buckets
}
