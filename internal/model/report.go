package model

import (
	"time"

	"github.com/google/uuid"
)

// DateRange bounds an analytics query. Both ends are required.
type DateRange struct {
	From time.Time `json:"from" form:"from" validate:"required"`
	To   time.Time `json:"to" form:"to" validate:"required,gtfield=From"`
}

func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

// ReportFilters bounds analytics queries. The date range is mandatory;
// branch, service and service point are optional narrowing filters.
type ReportFilters struct {
	Range          DateRange
	BranchID       *uuid.UUID
	ServiceID      *uuid.UUID
	ServicePointID *uuid.UUID
}

// TimeMetrics summarizes a set of minute-valued durations. It is always
// recomputed from samples, never stored.
type TimeMetrics struct {
	Average int `json:"average"`
	Median  int `json:"median"`
	Minimum int `json:"minimum"`
	Maximum int `json:"maximum"`
	Count   int `json:"count"`
}

// GroupTimeMetrics carries wait and service metrics for one grouping key.
type GroupTimeMetrics struct {
	Key     uuid.UUID   `json:"key"`
	Wait    TimeMetrics `json:"wait"`
	Service TimeMetrics `json:"service"`
}

type WaitTimeReport struct {
	Overall       GroupOverall       `json:"overall"`
	Branches      []GroupTimeMetrics `json:"branches"`
	Services      []GroupTimeMetrics `json:"services"`
	ServicePoints []GroupTimeMetrics `json:"service_points"`
}

type GroupOverall struct {
	Wait    TimeMetrics `json:"wait"`
	Service TimeMetrics `json:"service"`
}

// WaitBucket is one fixed histogram range of wait minutes.
type WaitBucket struct {
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

type RankedGroup struct {
	Key         uuid.UUID `json:"key"`
	AverageWait int       `json:"average_wait"`
	Count       int       `json:"count"`
}

type WaitTimeSummary struct {
	Overall     GroupOverall  `json:"overall"`
	TopBranches []RankedGroup `json:"top_branches"`
	TopServices []RankedGroup `json:"top_services"`
	Buckets     []WaitBucket  `json:"buckets"`
}

// AppointmentReport aggregates lifecycle outcomes over a filtered window.
type AppointmentReport struct {
	Total          int                       `json:"total"`
	StatusCounts   map[AppointmentStatus]int `json:"status_counts"`
	Rescheduled    int                       `json:"rescheduled"`
	AttendanceRate float64                   `json:"attendance_rate"`
	CompletionRate float64                   `json:"completion_rate"`
	NoShowRate     float64                   `json:"no_show_rate"`
	Branches       []BranchOutcomes          `json:"branches"`
	Services       []ServiceOutcomes         `json:"services"`
}

type BranchOutcomes struct {
	BranchID       uuid.UUID                 `json:"branch_id"`
	Total          int                       `json:"total"`
	StatusCounts   map[AppointmentStatus]int `json:"status_counts"`
	AttendanceRate float64                   `json:"attendance_rate"`
	CompletionRate float64                   `json:"completion_rate"`
	NoShowRate     float64                   `json:"no_show_rate"`
}

// DemandTrend is a coarse label derived from a service's position in the
// popularity-sorted list. It is a heuristic, not a time-series forecast.
type DemandTrend string

const (
	DemandTrendIncreasing DemandTrend = "increasing"
	DemandTrendStable     DemandTrend = "stable"
	DemandTrendDecreasing DemandTrend = "decreasing"
)

type ServiceOutcomes struct {
	ServiceID            uuid.UUID                 `json:"service_id"`
	Total                int                       `json:"total"`
	StatusCounts         map[AppointmentStatus]int `json:"status_counts"`
	AttendanceRate       float64                   `json:"attendance_rate"`
	CompletionRate       float64                   `json:"completion_rate"`
	NoShowRate           float64                   `json:"no_show_rate"`
	AvgCompletionMinutes int                       `json:"avg_completion_minutes"`
	PopularityRank       int                       `json:"popularity_rank"`
	DemandTrend          DemandTrend               `json:"demand_trend"`
}
