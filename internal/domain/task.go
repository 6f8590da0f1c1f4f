package domain

import (
	"fmt"
	"time"
)

// TaskType is the reason for a proactive contact.
type TaskType string

const (
	TaskDailyPrompt TaskType = "DAILY_MSG_PROMPT"
	TaskPing        TaskType = "PING"
	TaskNudgeSub    TaskType = "NUDGE_SUB"
	TaskRecovery    TaskType = "RECOVERY"
	TaskLimitInfo   TaskType = "LIMIT_INFO"
	TaskFarewell    TaskType = "FAREWELL"
	TaskThanks      TaskType = "THANKS"
)

// ProactiveTypes are the task types that count as CRM outreach: they are
// cancelled when cadence stops and a reply after one counts as a CRM response.
var ProactiveTypes = []TaskType{TaskPing, TaskNudgeSub, TaskDailyPrompt, TaskRecovery, TaskLimitInfo}

// ReactionTypes bypass daily planning and do not count against the daily contact budget.
var ReactionTypes = []TaskType{TaskThanks}

// PostponableTypes are pushed out when the user writes to the bot.
var PostponableTypes = []TaskType{TaskPing, TaskNudgeSub}

// ParseTaskType validates s against the known task types.
func ParseTaskType(s string) (TaskType, error) {
	switch t := TaskType(s); t {
	case TaskDailyPrompt, TaskPing, TaskNudgeSub, TaskRecovery, TaskLimitInfo, TaskFarewell, TaskThanks:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTaskType, s)
}

// IsDaily reports whether delivering t counts as the user's daily message.
func (t TaskType) IsDaily() bool {
	return t == TaskDailyPrompt
}

// TaskStatus is the lifecycle state of a proactive task.
type TaskStatus string

const (
	StatusScheduled TaskStatus = "scheduled"
	StatusDue       TaskStatus = "due"
	StatusSent      TaskStatus = "sent"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

// PendingStatuses are the non-terminal statuses.
var PendingStatuses = []TaskStatus{StatusScheduled, StatusDue}

// Terminal reports whether no further transition is allowed from s.
func (s TaskStatus) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusCancelled
}

// Result codes stored on failed tasks.
const (
	ResultBlocked      = "blocked"
	ResultSendError    = "send_error"
	ResultProcessError = "process_error"
)

// Task is a scheduled system-initiated outbound contact.
type Task struct {
	ID         int64
	UserID     int64
	Type       TaskType
	Status     TaskStatus
	DueAt      time.Time  // UTC
	SentAt     *time.Time // UTC, nullable
	ResultCode *string
	Payload    Payload
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewTask builds a scheduled task after checking the payload fits the type.
func NewTask(userID int64, t TaskType, dueAt time.Time, p Payload) (*Task, error) {
	if _, err := ParseTaskType(string(t)); err != nil {
		return nil, err
	}
	if err := ValidatePayload(t, p); err != nil {
		return nil, err
	}
	return &Task{
		UserID:  userID,
		Type:    t,
		Status:  StatusScheduled,
		DueAt:   dueAt.UTC(),
		Payload: p,
	}, nil
}

// UserContext is the minimal profile the message generator personalises with.
type UserContext struct {
	UserID             int64
	TgUserID           int64
	Username           string
	Age                *int
	Gender             *string
	ArchetypePrimary   *string
	ArchetypeSecondary *string
}

// DueTask is a due task joined with the recipient's context.
// DecodeErr is set when the stored payload could not be decoded; Payload is nil then.
type DueTask struct {
	Task
	User      UserContext
	DecodeErr error
}

// RescheduleRequest selects the pending tasks a reply should push out.
type RescheduleRequest struct {
	UserID  int64
	Types   []TaskType
	Now     time.Time
	Horizon time.Duration
	NewDue  time.Time
}
