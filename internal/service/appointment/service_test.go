package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendly/queue-api/internal/model"
	"github.com/attendly/queue-api/pkg/errors"
	"github.com/attendly/queue-api/pkg/logger"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakeRepo struct {
	appointments map[uuid.UUID]*model.Appointment
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{appointments: make(map[uuid.UUID]*model.Appointment)}
}

func (r *fakeRepo) Create(_ context.Context, apt *model.Appointment) error {
	cp := *apt
	r.appointments[apt.ID] = &cp
	return nil
}

func (r *fakeRepo) Get(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, ok := r.appointments[id]
	if !ok {
		return nil, errors.NewNotFound("appointment", nil)
	}
	cp := *apt
	return &cp, nil
}

func (r *fakeRepo) Update(_ context.Context, apt *model.Appointment) error {
	if _, ok := r.appointments[apt.ID]; !ok {
		return errors.NewNotFound("appointment", nil)
	}
	cp := *apt
	r.appointments[apt.ID] = &cp
	return nil
}

func (r *fakeRepo) List(_ context.Context, _ *model.AppointmentFilters) ([]*model.Appointment, error) {
	out := make([]*model.Appointment, 0, len(r.appointments))
	for _, apt := range r.appointments {
		cp := *apt
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeRepo) FindScheduledBefore(_ context.Context, cutoff time.Time) ([]*model.Appointment, error) {
	var out []*model.Appointment
	for _, apt := range r.appointments {
		if apt.Status == model.AppointmentStatusScheduled &&
			apt.ScheduledAt.Before(cutoff) &&
			apt.NoShowMarkedAt == nil &&
			apt.RescheduledAt == nil {
			cp := *apt
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeRepo) MarkNoShow(_ context.Context, id uuid.UUID, at time.Time, auto bool) (bool, error) {
	apt, ok := r.appointments[id]
	if !ok {
		return false, nil
	}
	if apt.Status != model.AppointmentStatusScheduled || apt.NoShowMarkedAt != nil {
		return false, nil
	}
	apt.Status = model.AppointmentStatusNoShow
	apt.NoShowMarkedAt = &at
	apt.AutoMarkedAsNoShow = auto
	return true, nil
}

func (r *fakeRepo) Reschedule(_ context.Context, old, replacement *model.Appointment) error {
	oldCp := *old
	newCp := *replacement
	r.appointments[old.ID] = &oldCp
	r.appointments[replacement.ID] = &newCp
	return nil
}

type fakeOutbox struct {
	events []*model.OutboxEvent
}

func (o *fakeOutbox) Create(_ context.Context, event *model.OutboxEvent) error {
	o.events = append(o.events, event)
	return nil
}

func (o *fakeOutbox) GetPendingEventsWithLock(_ context.Context, _ int) ([]*model.OutboxEvent, error) {
	return nil, nil
}

func (o *fakeOutbox) UpdateStatus(_ context.Context, _ uuid.UUID, _ model.OutboxStatus, _ *string) error {
	return nil
}

func (o *fakeOutbox) DeleteProcessedBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (o *fakeOutbox) eventTypes() []string {
	types := make([]string, 0, len(o.events))
	for _, e := range o.events {
		types = append(types, e.EventType)
	}
	return types
}

type fakeNotifier struct {
	rescheduleNotices []string
	noShowNotices     []string
}

func (n *fakeNotifier) SendRescheduleNotice(_ context.Context, to string, _, _ time.Time) error {
	n.rescheduleNotices = append(n.rescheduleNotices, to)
	return nil
}

func (n *fakeNotifier) SendNoShowNotice(_ context.Context, to string, _ time.Time) error {
	n.noShowNotices = append(n.noShowNotices, to)
	return nil
}

func newTestService() (*Service, *fakeRepo, *fakeOutbox, *fakeNotifier, *fakeClock) {
	repo := newFakeRepo()
	outbox := &fakeOutbox{}
	notifier := &fakeNotifier{}
	clk := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	svc := NewService(repo, outbox, notifier, clk, logger.NewLogger(nil))
	return svc, repo, outbox, notifier, clk
}

func seedAppointment(repo *fakeRepo, status model.AppointmentStatus) *model.Appointment {
	userID := uuid.New()
	apt := &model.Appointment{
		ID:          uuid.New(),
		ServiceID:   uuid.New(),
		BranchID:    uuid.New(),
		UserID:      &userID,
		Status:      status,
		Type:        model.AppointmentTypeAppointment,
		ScheduledAt: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
	}
	repo.appointments[apt.ID] = apt
	return apt
}

func TestCreateSetsDefaults(t *testing.T) {
	svc, repo, _, _, clk := newTestService()
	userID := uuid.New()

	apt := &model.Appointment{
		ServiceID:   uuid.New(),
		BranchID:    uuid.New(),
		UserID:      &userID,
		Type:        model.AppointmentTypeAppointment,
		ScheduledAt: clk.now.Add(time.Hour),
	}

	require.NoError(t, svc.Create(context.Background(), apt))
	assert.NotEqual(t, uuid.Nil, apt.ID)
	assert.Equal(t, model.AppointmentStatusScheduled, apt.Status)
	assert.Equal(t, clk.now, apt.CreatedAt)

	stored, err := repo.Get(context.Background(), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusScheduled, stored.Status)
}

func TestCreateValidation(t *testing.T) {
	userID := uuid.New()
	name := "Ada"

	tests := []struct {
		name    string
		apt     model.Appointment
		wantErr bool
	}{
		{
			name: "appointment requires user",
			apt: model.Appointment{
				ServiceID:   uuid.New(),
				BranchID:    uuid.New(),
				Type:        model.AppointmentTypeAppointment,
				ScheduledAt: time.Now(),
			},
			wantErr: true,
		},
		{
			name: "turn requires user",
			apt: model.Appointment{
				ServiceID: uuid.New(),
				BranchID:  uuid.New(),
				Type:      model.AppointmentTypeTurn,
			},
			wantErr: true,
		},
		{
			name: "public rejects user",
			apt: model.Appointment{
				ServiceID:   uuid.New(),
				BranchID:    uuid.New(),
				UserID:      &userID,
				GuestName:   &name,
				Type:        model.AppointmentTypePublic,
				ScheduledAt: time.Now(),
			},
			wantErr: true,
		},
		{
			name: "public requires guest contact",
			apt: model.Appointment{
				ServiceID:   uuid.New(),
				BranchID:    uuid.New(),
				Type:        model.AppointmentTypePublic,
				ScheduledAt: time.Now(),
			},
			wantErr: true,
		},
		{
			name: "unknown type",
			apt: model.Appointment{
				ServiceID:   uuid.New(),
				BranchID:    uuid.New(),
				UserID:      &userID,
				Type:        model.AppointmentType("walk_up"),
				ScheduledAt: time.Now(),
			},
			wantErr: true,
		},
		{
			name: "appointment requires scheduled time",
			apt: model.Appointment{
				ServiceID: uuid.New(),
				BranchID:  uuid.New(),
				UserID:    &userID,
				Type:      model.AppointmentTypeAppointment,
			},
			wantErr: true,
		},
		{
			name: "turn without scheduled time is valid",
			apt: model.Appointment{
				ServiceID: uuid.New(),
				BranchID:  uuid.New(),
				UserID:    &userID,
				Type:      model.AppointmentTypeTurn,
			},
		},
		{
			name: "public with guest contact is valid",
			apt: model.Appointment{
				ServiceID:   uuid.New(),
				BranchID:    uuid.New(),
				GuestName:   &name,
				Type:        model.AppointmentTypePublic,
				ScheduledAt: time.Now(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _, _, _ := newTestService()
			apt := tt.apt
			err := svc.Create(context.Background(), &apt)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckIn(t *testing.T) {
	svc, repo, outbox, _, clk := newTestService()
	apt := seedAppointment(repo, model.AppointmentStatusScheduled)

	checked, err := svc.CheckIn(context.Background(), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCheckedIn, checked.Status)
	require.NotNil(t, checked.AttendedAt)
	assert.Equal(t, clk.now, *checked.AttendedAt)
	assert.Contains(t, outbox.eventTypes(), model.EventAppointmentCheckedIn)
}

func TestTransitionRules(t *testing.T) {
	allStatuses := []model.AppointmentStatus{
		model.AppointmentStatusScheduled,
		model.AppointmentStatusCheckedIn,
		model.AppointmentStatusCompleted,
		model.AppointmentStatusCancelled,
		model.AppointmentStatusNoShow,
	}

	allowed := map[string]map[model.AppointmentStatus]bool{
		"checkin": {
			model.AppointmentStatusScheduled: true,
		},
		"complete": {
			model.AppointmentStatusCheckedIn: true,
		},
		"cancel": {
			model.AppointmentStatusScheduled: true,
			model.AppointmentStatusCheckedIn: true,
		},
		"reschedule": {
			model.AppointmentStatusScheduled: true,
		},
	}

	for op, fromSet := range allowed {
		for _, status := range allStatuses {
			t.Run(op+"/"+string(status), func(t *testing.T) {
				svc, repo, _, _, _ := newTestService()
				apt := seedAppointment(repo, status)

				var err error
				switch op {
				case "checkin":
					_, err = svc.CheckIn(context.Background(), apt.ID)
				case "complete":
					_, err = svc.Complete(context.Background(), apt.ID)
				case "cancel":
					_, err = svc.Cancel(context.Background(), apt.ID, "changed plans")
				case "reschedule":
					_, err = svc.Reschedule(context.Background(), apt.ID, apt.ScheduledAt.Add(24*time.Hour), uuid.New(), "conflict")
				}

				if fromSet[status] {
					assert.NoError(t, err)
				} else {
					require.Error(t, err)
					assert.True(t, errors.IsInvalidTransition(err))
				}
			})
		}
	}
}

func TestCancelStampsReason(t *testing.T) {
	svc, repo, outbox, _, _ := newTestService()
	apt := seedAppointment(repo, model.AppointmentStatusCheckedIn)

	cancelled, err := svc.Cancel(context.Background(), apt.ID, "patient left")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "patient left", *cancelled.CancelReason)
	assert.Contains(t, outbox.eventTypes(), model.EventAppointmentCancelled)
}

func TestRescheduleCreatesReplacement(t *testing.T) {
	svc, repo, outbox, notifier, clk := newTestService()
	apt := seedAppointment(repo, model.AppointmentStatusScheduled)
	guestEmail := "guest@example.com"
	apt.GuestEmail = &guestEmail

	actorID := uuid.New()
	newTime := apt.ScheduledAt.Add(48 * time.Hour)

	replacement, err := svc.Reschedule(context.Background(), apt.ID, newTime, actorID, "doctor unavailable")
	require.NoError(t, err)

	assert.NotEqual(t, apt.ID, replacement.ID)
	assert.Equal(t, model.AppointmentStatusScheduled, replacement.Status)
	assert.Equal(t, newTime, replacement.ScheduledAt)
	require.NotNil(t, replacement.RescheduledFromID)
	assert.Equal(t, apt.ID, *replacement.RescheduledFromID)

	old, err := repo.Get(context.Background(), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusScheduled, old.Status)
	require.NotNil(t, old.RescheduledAt)
	assert.Equal(t, clk.now, *old.RescheduledAt)
	require.NotNil(t, old.RescheduledByID)
	assert.Equal(t, actorID, *old.RescheduledByID)
	require.NotNil(t, old.OriginalScheduledAt)

	assert.Contains(t, outbox.eventTypes(), model.EventAppointmentRescheduled)
	assert.Equal(t, []string{guestEmail}, notifier.rescheduleNotices)
}

func TestRescheduleRejectsSecondAttempt(t *testing.T) {
	svc, repo, _, _, _ := newTestService()
	apt := seedAppointment(repo, model.AppointmentStatusScheduled)

	_, err := svc.Reschedule(context.Background(), apt.ID, apt.ScheduledAt.Add(time.Hour), uuid.New(), "")
	require.NoError(t, err)

	_, err = svc.Reschedule(context.Background(), apt.ID, apt.ScheduledAt.Add(2*time.Hour), uuid.New(), "")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidTransition(err))
}

func TestMarkNoShow(t *testing.T) {
	svc, repo, outbox, notifier, _ := newTestService()
	apt := seedAppointment(repo, model.AppointmentStatusScheduled)
	guestEmail := "guest@example.com"
	apt.GuestEmail = &guestEmail

	require.NoError(t, svc.MarkNoShow(context.Background(), apt.ID, true))

	marked, err := repo.Get(context.Background(), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusNoShow, marked.Status)
	assert.True(t, marked.AutoMarkedAsNoShow)
	require.NotNil(t, marked.NoShowMarkedAt)
	assert.Contains(t, outbox.eventTypes(), model.EventAppointmentNoShow)
	assert.Equal(t, []string{guestEmail}, notifier.noShowNotices)
}

func TestMarkNoShowIsIdempotent(t *testing.T) {
	svc, repo, outbox, _, _ := newTestService()
	apt := seedAppointment(repo, model.AppointmentStatusScheduled)

	require.NoError(t, svc.MarkNoShow(context.Background(), apt.ID, true))
	require.NoError(t, svc.MarkNoShow(context.Background(), apt.ID, true))

	count := 0
	for _, et := range outbox.eventTypes() {
		if et == model.EventAppointmentNoShow {
			count++
		}
	}
	assert.Equal(t, 1, count, "repeat marks must not emit duplicate events")
}

func TestMarkNoShowSkipsNonScheduled(t *testing.T) {
	svc, repo, outbox, _, _ := newTestService()
	apt := seedAppointment(repo, model.AppointmentStatusCheckedIn)

	require.NoError(t, svc.MarkNoShow(context.Background(), apt.ID, true))

	unchanged, err := repo.Get(context.Background(), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCheckedIn, unchanged.Status)
	assert.Empty(t, outbox.eventTypes())
}
