package crm

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/stiapanreha-dev/BotOracle/internal/domain"
	"github.com/stiapanreha-dev/BotOracle/internal/store"
)

// 2025-03-10 09:00 UTC, a Monday.
var t0 = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) { c.Set(c.Now().Add(d)) }

// seqRand replays scripted values and returns zero once exhausted.
type seqRand struct {
	ints   []int
	floats []float64
}

func (r *seqRand) Intn(n int) int {
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	return v % n
}

func (r *seqRand) Float64() float64 {
	if len(r.floats) == 0 {
		return 0
	}
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}

type fakeGenerator struct {
	err error
}

func (g *fakeGenerator) Generate(_ context.Context, t domain.TaskType, _ domain.UserContext, _ domain.Payload) (string, error) {
	if g.err != nil {
		return "", &GenerationError{TaskType: t, Err: g.err}
	}
	return "text for " + string(t), nil
}

func (g *fakeGenerator) Fallback(domain.UserContext) string { return "fallback" }

type sentMessage struct {
	chatID int64
	text   string
}

type fakeTransport struct {
	mu    sync.Mutex
	errs  map[int64]error
	sent  []sentMessage
	delay time.Duration
}

func (tr *fakeTransport) Send(_ context.Context, chatID int64, text string) error {
	if tr.delay > 0 {
		time.Sleep(tr.delay)
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if err, ok := tr.errs[chatID]; ok {
		return NewDeliveryError(err)
	}
	tr.sent = append(tr.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

type failingEngagement struct{ calls int }

func (f *failingEngagement) StartEngagementSession(context.Context, int64, time.Time) (string, bool, error) {
	f.calls++
	return "", false, errors.New("engagement unavailable")
}

type fixture struct {
	ctx        context.Context
	dbPath     string
	repo       *store.SQLiteRepo
	clock      *fakeClock
	gen        *fakeGenerator
	transport  *fakeTransport
	cadence    *CadenceManager
	planner    *Planner
	dispatcher *Dispatcher
	engine     *Engine
}

func newFixture(t *testing.T, rnd Rand) *fixture {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "crm.db")
	repo, err := store.OpenSQLite(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	f := &fixture{
		ctx:       ctx,
		dbPath:    path,
		repo:      repo,
		clock:     &fakeClock{t: t0},
		gen:       &fakeGenerator{},
		transport: &fakeTransport{errs: map[int64]error{}},
	}
	log := zaptest.NewLogger(t)
	opts := []Option{WithClock(f.clock.Now), WithLocation(time.UTC)}
	if rnd != nil {
		opts = append(opts, WithRand(rnd))
	}
	f.cadence = NewCadenceManager(repo, log, opts...)
	f.planner = NewPlanner(repo, f.cadence, DefaultPlannerConfig(), log, opts...)
	f.dispatcher = NewDispatcher(repo, f.gen, f.transport, repo, log, opts...)
	f.engine = NewEngine(repo, f.cadence, f.planner, f.dispatcher, log, opts...)
	return f
}

// rawDB opens a second connection for corrupting rows behind the repository's back.
func (f *fixture) rawDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", f.dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec("PRAGMA busy_timeout=5000;")
	require.NoError(t, err)
	return db
}

// user creates a profile-complete user with the given Telegram id.
func (f *fixture) user(t *testing.T, tgID int64, freeQuestions int) *domain.User {
	t.Helper()
	u, err := f.repo.EnsureUser(f.ctx, tgID, "seeker", freeQuestions, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.repo.UpdateProfile(f.ctx, u.ID, 28, "f"))
	return f.reload(t, u.ID)
}

func (f *fixture) reload(t *testing.T, id int64) *domain.User {
	t.Helper()
	u, err := f.repo.GetUser(f.ctx, id)
	require.NoError(t, err)
	return u
}

func payloadFor(typ domain.TaskType, due time.Time) domain.Payload {
	switch typ {
	case domain.TaskFarewell:
		return domain.FarewellPayload{Reason: domain.StopReasonNoResponse}
	case domain.TaskThanks:
		return domain.ReactionPayload{TriggeredBy: TriggeredByUserMessage}
	case domain.TaskLimitInfo:
		return domain.LimitInfoPayload{PlannedDate: due.Format(domain.PlannedDateLayout), Remaining: 1}
	default:
		return domain.PlannedPayload{PlannedDate: due.Format(domain.PlannedDateLayout)}
	}
}

// task schedules a pending task for userID.
func (f *fixture) task(t *testing.T, userID int64, typ domain.TaskType, due time.Time) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(userID, typ, due, payloadFor(typ, due))
	require.NoError(t, err)
	_, err = f.repo.CreateTask(f.ctx, task, f.clock.Now())
	require.NoError(t, err)
	return task
}

// sent records a task of typ delivered at sentAt.
func (f *fixture) sent(t *testing.T, userID int64, typ domain.TaskType, sentAt time.Time) *domain.Task {
	t.Helper()
	task := f.task(t, userID, typ, sentAt)
	ok, err := f.repo.MarkSent(f.ctx, task.ID, sentAt)
	require.NoError(t, err)
	require.True(t, ok)
	return task
}

func (f *fixture) tasks(t *testing.T, userID int64, status domain.TaskStatus) []domain.Task {
	t.Helper()
	tasks, err := f.repo.ListTasks(f.ctx, store.TaskFilter{UserID: userID, Status: status})
	require.NoError(t, err)
	return tasks
}

func (f *fixture) events(t *testing.T, userID int64, typ string) []domain.Event {
	t.Helper()
	ev, err := f.repo.ListEvents(f.ctx, userID, typ)
	require.NoError(t, err)
	return ev
}

func tasksOfType(tasks []domain.Task, typ domain.TaskType) []domain.Task {
	var out []domain.Task
	for _, t := range tasks {
		if t.Type == typ {
			out = append(out, t)
		}
	}
	return out
}
