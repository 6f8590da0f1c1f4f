package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/stiapanreha-dev/BotOracle/internal/domain"
)

// Pending state keys used in conversational flows.
const (
	pendingQuiet    = "await_quiet_text"
	pendingPostpone = "await_postpone_text"
)

// Store is the storage the inbound flow needs.
type Store interface {
	EnsureUser(ctx context.Context, tgUserID int64, username string, freeQuestions int, now time.Time) (*domain.User, error)
	UpdateProfile(ctx context.Context, id int64, age int, gender string) error
	SetBlocked(ctx context.Context, id int64, blocked bool, now time.Time) error
	GetPrefs(ctx context.Context, userID int64) (*domain.ContactPrefs, error)
	UpsertPrefs(ctx context.Context, p domain.ContactPrefs, now time.Time) error
	HasActiveSubscription(ctx context.Context, userID int64, now time.Time) (bool, error)
}

// Engine is the CRM hook every inbound message goes through.
type Engine interface {
	OnUserMessage(ctx context.Context, userID int64) error
	CreateImmediateTask(ctx context.Context, userID int64, t domain.TaskType, p domain.Payload) (*domain.Task, error)
	CadenceLevel(ctx context.Context, userID int64) (domain.CadenceLevel, error)
	NextContact(ctx context.Context, userID int64) (*time.Time, error)
}

// RouterConfig carries the defaults applied to new users.
type RouterConfig struct {
	FreeQuestions     int
	MaxContactsPerDay int
	// Location renders times shown to users. Defaults to UTC.
	Location *time.Location
}

// Router wires Telegram updates to handlers and holds minimal in-memory state.
type Router struct {
	api    BotAPI
	log    *zap.Logger
	store  Store
	engine Engine
	cfg    RouterConfig
	now    func() time.Time
	state  map[int64]string // chatID -> pending state
	mu     sync.RWMutex
}

// NewRouter creates a new Telegram router.
func NewRouter(api BotAPI, st Store, engine Engine, cfg RouterConfig, log *zap.Logger) *Router {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Router{
		api:    api,
		log:    log.Named("telegram"),
		store:  st,
		engine: engine,
		cfg:    cfg,
		now:    time.Now,
		state:  make(map[int64]string),
	}
}

func (r *Router) setPending(chatID int64, s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state[chatID] = s
}

// takePending returns and clears the pending state for a chat.
func (r *Router) takePending(chatID int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state[chatID]
	delete(r.state, chatID)
	return s
}

// Run handles updates until ctx is canceled or the channel closes.
func (r *Router) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			r.HandleUpdate(ctx, upd)
		}
	}
}

// HandleUpdate routes a single update to appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return
	}
	chatID := msg.Chat.ID

	u, err := r.ensureUser(ctx, msg.From)
	if err != nil {
		r.log.Error("ensure user failed", zap.Int64("tg_user_id", msg.From.ID), zap.Error(err))
		r.sendText(chatID, genericError)
		return
	}
	if err := r.engine.OnUserMessage(ctx, u.ID); err != nil {
		r.log.Error("crm inbound hook failed", zap.Int64("user_id", u.ID), zap.Error(err))
	}

	if msg.IsCommand() {
		r.takePending(chatID)
		switch msg.Command() {
		case "start":
			r.handleStart(ctx, chatID, u)
		case "profile":
			r.handleProfile(ctx, chatID, u, msg.CommandArguments())
		case "status":
			r.handleStatus(ctx, chatID, u)
		case "stop":
			r.handleToggle(ctx, chatID, u, false)
		case "resume":
			r.handleToggle(ctx, chatID, u, true)
		case "quiet":
			r.handleQuiet(ctx, chatID, u, msg.CommandArguments())
		case "postpone":
			r.handlePostpone(ctx, chatID, u, msg.CommandArguments())
		}
		return
	}

	text := strings.TrimSpace(msg.Text)
	switch r.takePending(chatID) {
	case pendingQuiet:
		r.handleQuiet(ctx, chatID, u, text)
	case pendingPostpone:
		r.handlePostpone(ctx, chatID, u, text)
	default:
		r.handleFreeForm(ctx, u)
	}
}

// ensureUser registers the sender on first contact. Writing to the bot
// proves the chat is reachable again, so a blocked flag is cleared.
func (r *Router) ensureUser(ctx context.Context, from *tgbotapi.User) (*domain.User, error) {
	now := r.now().UTC()
	u, err := r.store.EnsureUser(ctx, from.ID, from.UserName, r.cfg.FreeQuestions, now)
	if err != nil {
		return nil, err
	}
	if u.IsBlocked {
		if err := r.store.SetBlocked(ctx, u.ID, false, now); err != nil {
			return nil, err
		}
		u.IsBlocked = false
		r.log.Info("user unblocked", zap.Int64("user_id", u.ID))
	}
	return u, nil
}

func (r *Router) prefs(ctx context.Context, userID int64) (domain.ContactPrefs, error) {
	p, err := r.store.GetPrefs(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.DefaultContactPrefs(userID, r.cfg.MaxContactsPerDay), nil
	}
	if err != nil {
		return domain.ContactPrefs{}, err
	}
	return *p, nil
}

func (r *Router) updatePrefs(ctx context.Context, userID int64, mutate func(*domain.ContactPrefs)) (domain.ContactPrefs, error) {
	p, err := r.prefs(ctx, userID)
	if err != nil {
		return p, err
	}
	mutate(&p)
	return p, r.store.UpsertPrefs(ctx, p, r.now().UTC())
}

func (r *Router) sendText(chatID int64, text string) {
	if _, err := r.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		r.log.Warn("reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (r *Router) sendWithMenu(chatID int64, text string, allowed bool) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = mainMenuKeyboard(allowed)
	if _, err := r.api.Send(msg); err != nil {
		r.log.Warn("reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
