package crm

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stiapanreha-dev/BotOracle/internal/domain"
)

func TestSelectTasks_Scripted(t *testing.T) {
	candidates := []domain.TaskType{domain.TaskDailyPrompt, domain.TaskPing, domain.TaskNudgeSub}
	// pool: D D D P P N -> index 5 draws NUDGE; pool D D D P P -> index 0 draws DAILY
	r := &seqRand{ints: []int{5, 0}}
	got := SelectTasks(r, candidates, 2)
	assert.Equal(t, []domain.TaskType{domain.TaskNudgeSub, domain.TaskDailyPrompt}, got)
}

func TestSelectTasks_Bounds(t *testing.T) {
	all := []domain.TaskType{
		domain.TaskDailyPrompt, domain.TaskPing, domain.TaskNudgeSub,
		domain.TaskRecovery, domain.TaskLimitInfo, domain.TaskPing,
	}
	r := rand.New(rand.NewSource(7))
	for slots := 0; slots <= 7; slots++ {
		for i := 0; i < 50; i++ {
			got := SelectTasks(r, all, slots)
			assert.LessOrEqual(t, len(got), min(slots, 5))
			assert.Len(t, got, min(slots, 5))

			seen := map[domain.TaskType]bool{}
			for _, typ := range got {
				assert.False(t, seen[typ], "duplicate %s", typ)
				seen[typ] = true
			}
		}
	}
	assert.Empty(t, SelectTasks(r, nil, 3))
}

func TestDueTime_Scripted(t *testing.T) {
	prefs := domain.DefaultContactPrefs(1, 3)

	cases := []struct {
		name   string
		prefs  func(p *domain.ContactPrefs)
		rnd    *seqRand
		wantHH int
		wantMM int
	}{
		{
			// sorted names: day(0.3) evening(0.3) morning(0.4); 0.95 lands in morning
			name:   "morning window no jitter",
			rnd:    &seqRand{floats: []float64{0.95}, ints: []int{2, 30, 15}},
			wantHH: 11, wantMM: 30,
		},
		{
			name:   "day window negative jitter",
			rnd:    &seqRand{floats: []float64{0.1}, ints: []int{0, 5, 0}},
			wantHH: 11, wantMM: 50,
		},
		{
			name:   "evening window positive jitter",
			rnd:    &seqRand{floats: []float64{0.5}, ints: []int{3, 59, 30}},
			wantHH: 21, wantMM: 14,
		},
		{
			name: "quiet hours fall back to 09:15",
			prefs: func(p *domain.ContactPrefs) {
				p.Windows = domain.Windows{"late": {22, 24}}
			},
			rnd:    &seqRand{floats: []float64{0.3}, ints: []int{1, 10, 15}},
			wantHH: 9, wantMM: 15,
		},
		{
			name: "custom quiet hours",
			prefs: func(p *domain.ContactPrefs) {
				p.QuietStartM, p.QuietEndM = 12*60, 13*60
			},
			rnd:    &seqRand{floats: []float64{0.1}, ints: []int{0, 30, 0}},
			wantHH: 9, wantMM: 0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := prefs
			p.Windows = domain.DefaultWindows()
			if tc.prefs != nil {
				tc.prefs(&p)
			}
			due := DueTime(tc.rnd, t0, time.UTC, &p)
			want := time.Date(2025, time.March, 10, tc.wantHH, tc.wantMM, 0, 0, time.UTC)
			assert.Equal(t, want, due)
		})
	}
}

func TestDueTime_NeverInQuietHours(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	prefs := domain.DefaultContactPrefs(1, 3)
	prefs.Windows = domain.Windows{
		"morning": {6, 12},
		"evening": {17, 24},
	}
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		due := DueTime(r, t0, loc, &prefs).In(loc)
		m := domain.MinuteOfDay(due)
		// jitter may push a slot up to 15 minutes past a window edge
		assert.False(t, domain.InWindow(m, prefs.QuietStartM+15, prefs.QuietEndM-15),
			"due %s inside quiet hours", due.Format("15:04"))
	}
}

func TestPickWindow_OnlyConfiguredWindows(t *testing.T) {
	w := domain.Windows{"evening": {17, 21}, "night-owl": {21, 23}}
	r := rand.New(rand.NewSource(1))
	counts := map[string]int{}
	for i := 0; i < 1000; i++ {
		counts[pickWindow(r, w)]++
	}
	assert.Len(t, counts, 2)
	assert.Greater(t, counts["evening"], 300)
	assert.Greater(t, counts["night-owl"], 300)
}

func TestCandidates_FreshQuotaLowUser(t *testing.T) {
	f := newFixture(t, nil)
	u := f.user(t, 1, 1)
	require.NoError(t, f.repo.TouchLastSeen(f.ctx, u.ID, t0.Add(-4*24*time.Hour)))
	u = f.reload(t, u.ID)

	prefs := domain.DefaultContactPrefs(u.ID, 3)
	got, err := f.planner.candidates(f.ctx, u, &prefs, domain.CadenceNormal, t0)
	require.NoError(t, err)
	assert.Equal(t, []domain.TaskType{
		domain.TaskDailyPrompt, domain.TaskPing, domain.TaskNudgeSub,
		domain.TaskRecovery, domain.TaskLimitInfo,
	}, got)
}

func TestCandidates_Gates(t *testing.T) {
	f := newFixture(t, nil)
	u := f.user(t, 1, 5)
	require.NoError(t, f.repo.TouchLastSeen(f.ctx, u.ID, t0.Add(-time.Hour)))
	u = f.reload(t, u.ID)
	prefs := domain.DefaultContactPrefs(u.ID, 3)

	f.sent(t, u.ID, domain.TaskDailyPrompt, t0.Add(-time.Hour))
	f.sent(t, u.ID, domain.TaskPing, t0.Add(-24*time.Hour))
	f.sent(t, u.ID, domain.TaskNudgeSub, t0.Add(-47*time.Hour))

	got, err := f.planner.candidates(f.ctx, u, &prefs, domain.CadenceNormal, t0)
	require.NoError(t, err)
	assert.Empty(t, got)

	// ping interval and nudge gap elapse
	now := t0.Add(24 * time.Hour)
	got, err = f.planner.candidates(f.ctx, u, &prefs, domain.CadenceNormal, now)
	require.NoError(t, err)
	assert.Equal(t, []domain.TaskType{domain.TaskDailyPrompt, domain.TaskPing, domain.TaskNudgeSub}, got)
}

func TestCandidates_WeeklyNudgeCap(t *testing.T) {
	f := newFixture(t, nil)
	u := f.user(t, 1, 5)
	f.sent(t, u.ID, domain.TaskNudgeSub, t0.Add(-6*24*time.Hour))
	f.sent(t, u.ID, domain.TaskNudgeSub, t0.Add(-3*24*time.Hour))

	ok, err := f.planner.canNudge(f.ctx, u.ID, t0)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.planner.canNudge(f.ctx, u.ID, t0.Add(24*time.Hour+time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCandidates_SubscriberGetsNoNudgeOrLimitInfo(t *testing.T) {
	f := newFixture(t, nil)
	u := f.user(t, 1, 1)
	_, err := f.repo.CreateSubscription(f.ctx, &domain.Subscription{
		UserID:   u.ID,
		PlanCode: "week",
		StartsAt: t0.Add(-time.Hour),
		EndsAt:   t0.Add(7 * 24 * time.Hour),
	})
	require.NoError(t, err)

	prefs := domain.DefaultContactPrefs(u.ID, 3)
	got, err := f.planner.candidates(f.ctx, u, &prefs, domain.CadenceNormal, t0)
	require.NoError(t, err)
	assert.NotContains(t, got, domain.TaskNudgeSub)
	assert.NotContains(t, got, domain.TaskLimitInfo)
}

func TestPlanForUser_QuotaLowUser(t *testing.T) {
	f := newFixture(t, rand.New(rand.NewSource(3)))
	u := f.user(t, 1, 1)
	require.NoError(t, f.repo.TouchLastSeen(f.ctx, u.ID, t0.Add(-4*24*time.Hour)))
	u = f.reload(t, u.ID)

	n, err := f.planner.PlanForUser(f.ctx, u)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	tasks := f.tasks(t, u.ID, domain.StatusScheduled)
	require.Len(t, tasks, 3)
	seen := map[domain.TaskType]bool{}
	for _, task := range tasks {
		assert.False(t, seen[task.Type])
		seen[task.Type] = true

		local := domain.MinuteOfDay(task.DueAt)
		assert.False(t, domain.InWindow(local, 22*60, 8*60), "%s due in quiet hours", task.Type)

		switch p := task.Payload.(type) {
		case domain.LimitInfoPayload:
			assert.Equal(t, 1, p.Remaining)
			assert.Equal(t, "2025-03-10", p.PlannedDate)
		case domain.PlannedPayload:
			assert.Equal(t, "2025-03-10", p.PlannedDate)
		default:
			t.Fatalf("unexpected payload %T", p)
		}
	}

	prefs, err := f.repo.GetPrefs(f.ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, prefs.AllowProactive)
	assert.Len(t, f.events(t, u.ID, domain.EventTaskCreated), 3)
}

func TestPlanForUser_NoRemainingSlots(t *testing.T) {
	f := newFixture(t, nil)
	u := f.user(t, 1, 1)
	for i := 0; i < 3; i++ {
		f.sent(t, u.ID, domain.TaskPing, t0.Add(-time.Duration(i+1)*time.Minute))
	}

	n, err := f.planner.PlanForUser(f.ctx, u)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.tasks(t, u.ID, domain.StatusScheduled))
}

func TestPlanForUser_ReactionsDoNotUseSlots(t *testing.T) {
	f := newFixture(t, nil)
	u := f.user(t, 1, 5)
	for i := 0; i < 3; i++ {
		f.sent(t, u.ID, domain.TaskThanks, t0.Add(-time.Duration(i+1)*time.Minute))
	}

	n, err := f.planner.PlanForUser(f.ctx, u)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestPlanForUser_ProactiveDisabled(t *testing.T) {
	f := newFixture(t, nil)
	u := f.user(t, 1, 1)
	prefs := domain.DefaultContactPrefs(u.ID, 3)
	prefs.AllowProactive = false
	require.NoError(t, f.repo.UpsertPrefs(f.ctx, prefs, t0))

	n, err := f.planner.PlanForUser(f.ctx, u)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPlanForUser_ReducedLevelOnlyRecovery(t *testing.T) {
	f := newFixture(t, nil)
	u := f.user(t, 1, 1)
	require.NoError(t, f.repo.RecordCRMResponse(f.ctx, u.ID, t0.Add(-5*24*time.Hour)))
	require.NoError(t, f.repo.TouchLastSeen(f.ctx, u.ID, t0.Add(-8*24*time.Hour)))
	u = f.reload(t, u.ID)

	n, err := f.planner.PlanForUser(f.ctx, u)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	tasks := f.tasks(t, u.ID, domain.StatusScheduled)
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.TaskRecovery, tasks[0].Type)
	assert.Equal(t, domain.CadenceReduced, f.reload(t, u.ID).CadenceLevel)
}

func TestPlanForUser_ReducedLevelRecoveryGap(t *testing.T) {
	f := newFixture(t, nil)
	u := f.user(t, 1, 1)
	require.NoError(t, f.repo.RecordCRMResponse(f.ctx, u.ID, t0.Add(-5*24*time.Hour)))
	require.NoError(t, f.repo.TouchLastSeen(f.ctx, u.ID, t0.Add(-8*24*time.Hour)))
	f.sent(t, u.ID, domain.TaskRecovery, t0.Add(-4*24*time.Hour))
	u = f.reload(t, u.ID)

	n, err := f.planner.PlanForUser(f.ctx, u)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPlanForUser_StoppedLevel(t *testing.T) {
	f := newFixture(t, nil)
	u := f.user(t, 1, 1)
	require.NoError(t, f.repo.RecordCRMResponse(f.ctx, u.ID, t0.Add(-20*24*time.Hour)))
	u = f.reload(t, u.ID)

	n, err := f.planner.PlanForUser(f.ctx, u)
	require.NoError(t, err)
	assert.Zero(t, n)

	pending := f.tasks(t, u.ID, domain.StatusScheduled)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.TaskFarewell, pending[0].Type)
}

func TestPlanAllUsers_Stats(t *testing.T) {
	f := newFixture(t, rand.New(rand.NewSource(9)))
	active := f.user(t, 1, 5)
	full := f.user(t, 2, 5)
	for i := 0; i < 3; i++ {
		f.sent(t, full.ID, domain.TaskPing, t0.Add(-time.Duration(i+1)*time.Minute))
	}
	blocked := f.user(t, 3, 5)
	require.NoError(t, f.repo.SetBlocked(f.ctx, blocked.ID, true, t0))
	_, err := f.repo.EnsureUser(f.ctx, 4, "no-profile", 5, t0)
	require.NoError(t, err)

	stats, err := f.planner.PlanAllUsers(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalUsers)
	assert.Equal(t, 1, stats.UsersWithTasks)
	assert.Equal(t, len(f.tasks(t, active.ID, domain.StatusScheduled)), stats.TotalTasks)
	assert.Positive(t, stats.TotalTasks)
}
