package telegram

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/stiapanreha-dev/BotOracle/internal/crm"
	"github.com/stiapanreha-dev/BotOracle/internal/domain"
	"github.com/stiapanreha-dev/BotOracle/internal/store"
)

type fakeAPI struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (a *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return tgbotapi.Message{}, a.err
	}
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		a.sent = append(a.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (a *fakeAPI) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (a *fakeAPI) last() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.sent) == 0 {
		return ""
	}
	return a.sent[len(a.sent)-1].Text
}

type fakeEngine struct {
	inbound   []int64
	reactions []domain.Payload
	hookErr   error
	level     domain.CadenceLevel
	next      *time.Time
}

func (e *fakeEngine) OnUserMessage(_ context.Context, userID int64) error {
	e.inbound = append(e.inbound, userID)
	return e.hookErr
}

func (e *fakeEngine) CreateImmediateTask(_ context.Context, userID int64, t domain.TaskType, p domain.Payload) (*domain.Task, error) {
	e.reactions = append(e.reactions, p)
	return domain.NewTask(userID, t, time.Now(), p)
}

func (e *fakeEngine) CadenceLevel(context.Context, int64) (domain.CadenceLevel, error) {
	if e.level == 0 {
		return domain.CadenceNormal, nil
	}
	return e.level, nil
}

func (e *fakeEngine) NextContact(context.Context, int64) (*time.Time, error) {
	return e.next, nil
}

func newRouter(t *testing.T) (*Router, *fakeAPI, *fakeEngine, *store.SQLiteRepo) {
	t.Helper()
	repo, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	api := &fakeAPI{}
	eng := &fakeEngine{}
	r := NewRouter(api, repo, eng, RouterConfig{FreeQuestions: 5, MaxContactsPerDay: 3}, zaptest.NewLogger(t))
	return r, api, eng, repo
}

func message(fromID int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: fromID, UserName: "seeker"},
		Chat: &tgbotapi.Chat{ID: fromID},
		Text: text,
	}
	if strings.HasPrefix(text, "/") {
		cmd := strings.Fields(text)[0]
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return tgbotapi.Update{Message: msg}
}

func TestRouter_StartRegistersUser(t *testing.T) {
	r, api, eng, repo := newRouter(t)
	ctx := context.Background()

	r.HandleUpdate(ctx, message(100, "/start"))

	u, err := repo.GetUserByTgID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "seeker", u.Username)
	assert.Equal(t, 5, u.FreeQuestionsLeft)
	assert.Equal(t, []int64{u.ID}, eng.inbound)
	assert.Empty(t, eng.reactions, "commands do not queue a thank-you")
	assert.Equal(t, startText, api.last())
}

func TestRouter_ProfileMakesUserPlannable(t *testing.T) {
	r, api, _, repo := newRouter(t)
	ctx := context.Background()

	r.HandleUpdate(ctx, message(100, "/profile thirty"))
	assert.Equal(t, profileHelp, api.last())

	r.HandleUpdate(ctx, message(100, "/profile 31 m"))
	assert.Equal(t, profileSaved, api.last())

	users, err := repo.ListPlannableUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, 31, *users[0].Age)
	assert.Equal(t, domain.GenderMale, *users[0].Gender)
}

func TestRouter_FreeTextQueuesThanks(t *testing.T) {
	r, _, eng, _ := newRouter(t)

	r.HandleUpdate(context.Background(), message(100, "what does today hold?"))

	require.Len(t, eng.inbound, 1)
	require.Len(t, eng.reactions, 1)
	assert.Equal(t, domain.ReactionPayload{TriggeredBy: crm.TriggeredByUserMessage}, eng.reactions[0])
}

func TestRouter_HookFailureDoesNotDropMessage(t *testing.T) {
	r, _, eng, _ := newRouter(t)
	eng.hookErr = errors.New("db locked")

	r.HandleUpdate(context.Background(), message(100, "hello"))
	assert.Len(t, eng.reactions, 1)
}

func TestRouter_StopAndResume(t *testing.T) {
	r, api, _, repo := newRouter(t)
	ctx := context.Background()

	r.HandleUpdate(ctx, message(100, "/stop"))
	assert.Equal(t, stoppedText, api.last())
	u, err := repo.GetUserByTgID(ctx, 100)
	require.NoError(t, err)
	p, err := repo.GetPrefs(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, p.AllowProactive)
	assert.Equal(t, domain.DefaultMaxContactsDay, p.MaxContactsDay)

	r.HandleUpdate(ctx, message(100, "/resume"))
	p, err = repo.GetPrefs(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, p.AllowProactive)
}

func TestRouter_QuietHoursFlow(t *testing.T) {
	r, api, eng, repo := newRouter(t)
	ctx := context.Background()

	r.HandleUpdate(ctx, message(100, "/quiet"))
	assert.Equal(t, askQuiet, api.last())

	r.HandleUpdate(ctx, message(100, "25:00-09:00"))
	assert.Equal(t, invalidQuiet, api.last())

	r.HandleUpdate(ctx, message(100, "/quiet 23:30-09:00"))
	assert.Equal(t, "Quiet hours updated: 23:30–09:00", api.last())
	assert.Empty(t, eng.reactions, "answers to prompts are not free-form messages")

	u, err := repo.GetUserByTgID(ctx, 100)
	require.NoError(t, err)
	p, err := repo.GetPrefs(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 23*60+30, p.QuietStartM)
	assert.Equal(t, 9*60, p.QuietEndM)
}

func TestRouter_PostponePending(t *testing.T) {
	r, _, _, repo := newRouter(t)
	ctx := context.Background()

	r.HandleUpdate(ctx, message(100, "/postpone"))
	r.HandleUpdate(ctx, message(100, "6h"))

	u, err := repo.GetUserByTgID(ctx, 100)
	require.NoError(t, err)
	p, err := repo.GetPrefs(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour, p.PostponeOnReply)
}

func TestRouter_InboundMessageClearsBlock(t *testing.T) {
	r, _, _, repo := newRouter(t)
	ctx := context.Background()
	u, err := repo.EnsureUser(ctx, 100, "seeker", 5, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, repo.SetBlocked(ctx, u.ID, true, time.Now().UTC()))

	r.HandleUpdate(ctx, message(100, "/status"))

	u, err = repo.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, u.IsBlocked)
	assert.Nil(t, u.BlockedAt)
}

func TestRouter_StatusShowsSettings(t *testing.T) {
	r, api, _, _ := newRouter(t)

	r.HandleUpdate(context.Background(), message(100, "/status"))

	body := api.last()
	assert.Contains(t, body, statusTitle)
	assert.Contains(t, body, "Quiet hours: 22:00–08:00")
	assert.Contains(t, body, "Subscription: none")
	assert.Contains(t, body, "Free answers left: 5")
	assert.Contains(t, body, "Check-in mode: normal")
	assert.Contains(t, body, "Next message from me: nothing planned")
}

func TestRouter_StatusShowsCadenceAndNextContact(t *testing.T) {
	repo, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	moscow, err := domain.ValidateTZ("Europe/Moscow")
	require.NoError(t, err)
	next := time.Date(2025, time.March, 11, 6, 30, 0, 0, time.UTC)
	api := &fakeAPI{}
	eng := &fakeEngine{level: domain.CadenceReduced, next: &next}
	r := NewRouter(api, repo, eng, RouterConfig{FreeQuestions: 5, MaxContactsPerDay: 3, Location: moscow}, zaptest.NewLogger(t))

	r.HandleUpdate(context.Background(), message(100, "/status"))

	body := api.last()
	assert.Contains(t, body, "Check-in mode: reduced")
	assert.Contains(t, body, "Next message from me: 11.03 09:30")
}

func TestRouter_IgnoresBotsAndEmptyUpdates(t *testing.T) {
	r, api, eng, _ := newRouter(t)
	ctx := context.Background()

	r.HandleUpdate(ctx, tgbotapi.Update{})
	upd := message(100, "hi")
	upd.Message.From.IsBot = true
	r.HandleUpdate(ctx, upd)

	assert.Empty(t, eng.inbound)
	assert.Empty(t, api.sent)
}

func TestSender_ClassifiesFailures(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		err  error
		want crm.DeliveryKind
	}{
		{"api 403", &tgbotapi.Error{Code: 403, Message: "user is deactivated"}, crm.DeliveryBlocked},
		{"text only", errors.New("Forbidden: bot was blocked by the user"), crm.DeliveryBlocked},
		{"bad request", &tgbotapi.Error{Code: 400, Message: "Bad Request: message is too long"}, crm.DeliveryTransient},
		{"network", errors.New("connection reset by peer"), crm.DeliveryTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSender(&fakeAPI{err: tc.err}, 100, 1)
			err := s.Send(ctx, 1, "hi")
			var de *crm.DeliveryError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tc.want, de.Kind)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestSender_ThrottledSendHonoursContext(t *testing.T) {
	api := &fakeAPI{}
	s := NewSender(api, 0.001, 1)

	require.NoError(t, s.Send(context.Background(), 1, "first"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Send(ctx, 1, "second")
	var de *crm.DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, crm.DeliveryTransient, de.Kind)
	assert.Len(t, api.sent, 1)
}
