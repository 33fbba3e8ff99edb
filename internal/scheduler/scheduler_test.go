package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hray3182/DoseLine/internal/clock"
	"github.com/hray3182/DoseLine/internal/models"
	"github.com/hray3182/DoseLine/internal/notify"
	"github.com/hray3182/DoseLine/internal/rrule"
)

var taipei = time.FixedZone("CST", 8*60*60)

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, taipei)
}

type doseKey struct {
	reminderID  string
	scheduledAt int64
}

// memStore mirrors the repository contracts: insert-if-absent on
// (reminder_id, scheduled_at) and a conditional bulk sweep.
type memStore struct {
	mu        sync.Mutex
	reminders []*models.Reminder
	logs      map[doseKey]*models.AdherenceLog
	failFor   map[string]bool
	listCalls int
}

func newMemStore(reminders ...*models.Reminder) *memStore {
	return &memStore{
		reminders: reminders,
		logs:      make(map[doseKey]*models.AdherenceLog),
		failFor:   make(map[string]bool),
	}
}

func (s *memStore) ListMaterializable(_ context.Context, today, endFloor time.Time) ([]*models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	var out []*models.Reminder
	for _, r := range s.reminders {
		if r.Status != models.ReminderActive || r.StartDate.After(today) {
			continue
		}
		if r.EndDate != nil && r.EndDate.Before(endFloor) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *memStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func (s *memStore) Materialize(_ context.Context, log *models.AdherenceLog) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[log.ReminderID] {
		return false, errors.New("connection reset")
	}
	key := doseKey{log.ReminderID, log.ScheduledAt.UnixNano()}
	if _, exists := s.logs[key]; exists {
		return false, nil
	}
	c := *log
	s.logs[key] = &c
	return true, nil
}

func (s *memStore) reminder(id string) *models.Reminder {
	for _, r := range s.reminders {
		if r.ReminderID == id {
			return r
		}
	}
	return nil
}

func (s *memStore) ClaimDue(_ context.Context, now time.Time) ([]models.DueDose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DueDose
	for _, l := range s.logs {
		r := s.reminder(l.ReminderID)
		if r.Status != models.ReminderActive || l.Status != models.LogPending || l.NotifiedAt != nil {
			continue
		}
		if l.ScheduledAt.After(now) || !l.ScheduledAt.Add(r.MissedWindow()).After(now) {
			continue
		}
		n := now
		l.NotifiedAt = &n
		out = append(out, models.DueDose{
			LogID: l.LogID, ReminderID: l.ReminderID, PatientID: l.PatientID,
			ScheduledAt: l.ScheduledAt, NotifyVia: r.NotifyVia, MedicationName: "Metformin", Dosage: "500mg",
		})
	}
	return out, nil
}

func (s *memStore) SweepMissed(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, l := range s.logs {
		r := s.reminder(l.ReminderID)
		if l.Status == models.LogPending && !l.ScheduledAt.Add(r.MissedWindow()).After(now) {
			l.Status = models.LogMissed
			n++
		}
	}
	return n, nil
}

func (s *memStore) scheduled(reminderID string) []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Time
	for _, l := range s.logs {
		if l.ReminderID == reminderID {
			out = append(out, l.ScheduledAt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) Notify(userID string, typ notify.Type, _, _ string, _ []models.Channel, metadata map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, string(typ)+":"+metadata["log_id"])
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func twiceDaily(id string) *models.Reminder {
	return &models.Reminder{
		ReminderID:          id,
		PatientID:           "p-1",
		Frequency:           models.FrequencyTwiceDaily,
		TimesOfDay:          []string{"08:00", "20:00"},
		StartDate:           at(2025, 1, 1, 0, 0),
		NotifyVia:           []models.Channel{models.ChannelPush},
		MissedWindowMinutes: 120,
		Status:              models.ReminderActive,
	}
}

func newMaterializer(store *memStore, clk clock.Clock, notifier Notifier, b rrule.Boundary) *Materializer {
	return NewMaterializer(store, store, notifier, clk, taipei, b, zap.NewNop())
}

func TestMaterializeDoses_Idempotent(t *testing.T) {
	store := newMemStore(twiceDaily("r-1"))
	clk := clock.NewManual(at(2025, 1, 5, 6, 0))
	m := newMaterializer(store, clk, &recordingNotifier{}, rrule.BoundaryInclusive)
	ctx := context.Background()

	result, err := m.MaterializeDoses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reminders)
	assert.Equal(t, 2, result.Created)

	result, err = m.MaterializeDoses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)

	assert.Equal(t, []time.Time{at(2025, 1, 5, 8, 0), at(2025, 1, 5, 20, 0)}, store.scheduled("r-1"))
}

func TestMaterializeDoses_ConcurrentReplicas(t *testing.T) {
	store := newMemStore(twiceDaily("r-1"), twiceDaily("r-2"))
	clk := clock.NewManual(at(2025, 1, 5, 6, 0))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := newMaterializer(store, clk, &recordingNotifier{}, rrule.BoundaryInclusive)
			_, err := m.MaterializeDoses(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, store.scheduled("r-1"), 2)
	assert.Len(t, store.scheduled("r-2"), 2)
}

func TestMaterializeDoses_IsolatesFailures(t *testing.T) {
	broken := twiceDaily("r-broken")
	broken.TimesOfDay = []string{"8am"}
	flaky := twiceDaily("r-flaky")
	store := newMemStore(broken, flaky, twiceDaily("r-ok"))
	store.failFor["r-flaky"] = true

	m := newMaterializer(store, clock.NewManual(at(2025, 1, 5, 6, 0)), &recordingNotifier{}, rrule.BoundaryInclusive)
	result, err := m.MaterializeDoses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 2, result.Created)
	assert.Len(t, store.scheduled("r-ok"), 2)
}

func TestMaterializeDoses_Cadences(t *testing.T) {
	eod := twiceDaily("eod")
	eod.Frequency = models.FrequencyEveryOtherDay
	eod.TimesOfDay = []string{"08:00"}
	eod.EndDate = ptr(at(2025, 1, 10, 0, 0))

	weekly := twiceDaily("weekly")
	weekly.Frequency = models.FrequencyWeekly
	weekly.TimesOfDay = []string{"09:00"}

	store := newMemStore(eod, weekly)
	clk := clock.NewManual(at(2025, 1, 1, 0, 30))
	m := newMaterializer(store, clk, &recordingNotifier{}, rrule.BoundaryRollForward)

	for day := 0; day < 15; day++ {
		_, err := m.MaterializeDoses(context.Background())
		require.NoError(t, err)
		clk.Advance(24 * time.Hour)
	}

	// Jan 1, 3, 5, 7, 9 plus Jan 11 rolled forward past the Jan 10 end date
	var eodDays []int
	for _, ts := range store.scheduled("eod") {
		eodDays = append(eodDays, ts.Day())
	}
	assert.Equal(t, []int{1, 3, 5, 7, 9, 11}, eodDays)

	// 2025-01-01 is a Wednesday
	var weeklyDays []int
	for _, ts := range store.scheduled("weekly") {
		assert.Equal(t, time.Wednesday, ts.Weekday())
		weeklyDays = append(weeklyDays, ts.Day())
	}
	assert.Equal(t, []int{1, 8, 15}, weeklyDays)
}

func TestMaterializeDoses_InclusiveBoundary(t *testing.T) {
	eod := twiceDaily("eod")
	eod.Frequency = models.FrequencyEveryOtherDay
	eod.TimesOfDay = []string{"08:00"}
	eod.EndDate = ptr(at(2025, 1, 10, 0, 0))

	store := newMemStore(eod)
	clk := clock.NewManual(at(2025, 1, 11, 0, 30))
	m := newMaterializer(store, clk, &recordingNotifier{}, rrule.BoundaryInclusive)

	result, err := m.MaterializeDoses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Reminders)
	assert.Empty(t, store.scheduled("eod"))
}

func TestMaterializeDoses_SkipsDosesBeforeCreation(t *testing.T) {
	r := twiceDaily("r-1")
	r.CreatedAt = at(2025, 1, 5, 12, 0)
	store := newMemStore(r)

	m := newMaterializer(store, clock.NewManual(at(2025, 1, 5, 12, 1)), &recordingNotifier{}, rrule.BoundaryInclusive)
	_, err := m.MaterializeDoses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(2025, 1, 5, 20, 0)}, store.scheduled("r-1"))
}

func TestMaterializeDoses_NotifiesDueDosesOnce(t *testing.T) {
	store := newMemStore(twiceDaily("r-1"))
	clk := clock.NewManual(at(2025, 1, 5, 7, 0))
	notifier := &recordingNotifier{}
	m := newMaterializer(store, clk, notifier, rrule.BoundaryInclusive)
	ctx := context.Background()

	result, err := m.MaterializeDoses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Notified)

	clk.Set(at(2025, 1, 5, 8, 5))
	result, err = m.MaterializeDoses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Notified)

	result, err = m.MaterializeDoses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Notified)
	assert.Equal(t, 1, notifier.count())
}

func TestSweepMissed(t *testing.T) {
	store := newMemStore(twiceDaily("r-1"))
	clk := clock.NewManual(at(2025, 1, 5, 6, 0))
	ctx := context.Background()
	_, err := newMaterializer(store, clk, &recordingNotifier{}, rrule.BoundaryInclusive).MaterializeDoses(ctx)
	require.NoError(t, err)

	sweeper := NewSweeper(store, clk)

	// 08:00 dose, 120 minute window
	clk.Set(at(2025, 1, 5, 9, 59))
	n, err := sweeper.SweepMissed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	clk.Set(at(2025, 1, 5, 10, 0))
	n, err = sweeper.SweepMissed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = sweeper.SweepMissed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	var statuses []models.LogStatus
	for _, l := range store.logs {
		statuses = append(statuses, l.Status)
	}
	assert.ElementsMatch(t, []models.LogStatus{models.LogMissed, models.LogPending}, statuses)
}

type denyLease struct {
	mu    sync.Mutex
	calls int
}

func (l *denyLease) Acquire(context.Context, string, time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return false, nil
}

func TestSchedulerNotifyBypassesLease(t *testing.T) {
	store := newMemStore(twiceDaily("r-1"))
	clk := clock.NewManual(at(2025, 1, 5, 6, 0))
	s := New(newMaterializer(store, clk, &recordingNotifier{}, rrule.BoundaryInclusive),
		NewSweeper(store, clk), time.Hour, time.Hour, zap.NewNop())
	s.startDelay = 0
	lease := &denyLease{}
	s.SetLease(lease)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		lease.mu.Lock()
		defer lease.mu.Unlock()
		return lease.calls >= 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, store.calls())

	s.Notify()
	require.Eventually(t, func() bool { return len(store.scheduled("r-1")) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, store.calls())

	cancel()
	<-done
}

func ptr[T any](v T) *T { return &v }
