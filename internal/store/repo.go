package store

import (
	"context"
	"time"

	"github.com/stiapanreha-dev/BotOracle/internal/domain"
)

// UserRepo holds per-user profile and CRM state.
type UserRepo interface {
	EnsureUser(ctx context.Context, tgUserID int64, username string, freeQuestions int, now time.Time) (*domain.User, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByTgID(ctx context.Context, tgUserID int64) (*domain.User, error)
	ListPlannableUsers(ctx context.Context) ([]domain.User, error)
	UpdateProfile(ctx context.Context, id int64, age int, gender string) error
	TouchLastSeen(ctx context.Context, id int64, now time.Time) error
	SetFreeQuestions(ctx context.Context, id int64, left int) error
	SetBlocked(ctx context.Context, id int64, blocked bool, now time.Time) error
	SetCadenceLevel(ctx context.Context, id int64, level domain.CadenceLevel) error
	StopCadence(ctx context.Context, id int64, reason string) error
	RecordCRMResponse(ctx context.Context, id int64, now time.Time) error
}

// PrefsRepo holds per-user contact preferences.
type PrefsRepo interface {
	GetPrefs(ctx context.Context, userID int64) (*domain.ContactPrefs, error)
	InitPrefs(ctx context.Context, p domain.ContactPrefs, now time.Time) error
	UpsertPrefs(ctx context.Context, p domain.ContactPrefs, now time.Time) error
}

// TaskFilter narrows ListTasks; zero values match everything.
type TaskFilter struct {
	UserID int64
	Status domain.TaskStatus
	Limit  int
}

// TaskRepo holds proactive tasks. Terminal transitions only touch rows that
// are still scheduled/due.
type TaskRepo interface {
	CreateTask(ctx context.Context, t *domain.Task, now time.Time) (int64, error)
	GetTask(ctx context.Context, id int64) (*domain.Task, error)
	ListTasks(ctx context.Context, f TaskFilter) ([]domain.Task, error)
	ListDueTasks(ctx context.Context, now time.Time, limit int) ([]domain.DueTask, error)
	ClaimTask(ctx context.Context, id int64, now time.Time) (bool, error)
	MarkSent(ctx context.Context, id int64, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, id int64, code string, now time.Time) (bool, error)
	CancelPending(ctx context.Context, userID int64, types []domain.TaskType, now time.Time) (int64, error)
	HasPending(ctx context.Context, userID int64, t domain.TaskType) (bool, error)
	RescheduleUpcoming(ctx context.Context, req domain.RescheduleRequest) (int64, error)
	CountContactsSince(ctx context.Context, userID int64, since time.Time) (int, error)
	CountSentSince(ctx context.Context, userID int64, t domain.TaskType, since time.Time) (int, error)
	LastSentAt(ctx context.Context, userID int64, types []domain.TaskType) (*time.Time, error)
}

// EventRepo appends audit events.
type EventRepo interface {
	LogEvent(ctx context.Context, userID *int64, eventType string, meta map[string]any, now time.Time) error
	ListEvents(ctx context.Context, userID int64, eventType string) ([]domain.Event, error)
}

// SubscriptionRepo answers subscription status questions.
type SubscriptionRepo interface {
	CreateSubscription(ctx context.Context, s *domain.Subscription) (int64, error)
	HasActiveSubscription(ctx context.Context, userID int64, now time.Time) (bool, error)
	ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error)
}

// EngagementRepo tracks follow-up engagement sessions started by daily messages.
type EngagementRepo interface {
	StartEngagementSession(ctx context.Context, userID int64, now time.Time) (string, bool, error)
}

// Repo defines all storage operations.
type Repo interface {
	UserRepo
	PrefsRepo
	TaskRepo
	EventRepo
	SubscriptionRepo
	EngagementRepo
	Close() error
}
