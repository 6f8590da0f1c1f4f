package domain

import "time"

// CadenceLevel is a coarse per-user throttle on proactive contact.
type CadenceLevel int

const (
	CadenceNormal  CadenceLevel = 1
	CadenceReduced CadenceLevel = 2
	CadenceStopped CadenceLevel = 3
)

// Valid reports whether l is one of the three known levels.
func (l CadenceLevel) Valid() bool {
	return l >= CadenceNormal && l <= CadenceStopped
}

func (l CadenceLevel) String() string {
	switch l {
	case CadenceNormal:
		return "normal"
	case CadenceReduced:
		return "reduced"
	case CadenceStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StopReasonNoResponse is recorded when a user ignored proactive contact for 14 days.
const StopReasonNoResponse = "no_response_14d"

// User is one end-user of the bot together with its CRM state.
type User struct {
	ID                 int64
	TgUserID           int64
	Username           string
	Age                *int
	Gender             *string
	ArchetypePrimary   *string
	ArchetypeSecondary *string
	IsBlocked          bool
	BlockedAt          *time.Time // UTC, nullable
	FreeQuestionsLeft  int
	LastSeenAt         *time.Time // UTC, nullable
	CadenceLevel       CadenceLevel
	LastCRMResponseAt  *time.Time // UTC, nullable
	StoppedReason      *string
	CreatedAt          time.Time // UTC
}

// ProfileComplete reports whether onboarding filled the fields planning needs.
func (u *User) ProfileComplete() bool {
	return u.Age != nil && u.Gender != nil
}

// ContactPrefs is the per-user proactive contact configuration.
type ContactPrefs struct {
	UserID           int64
	AllowProactive   bool
	MaxContactsDay   int
	Windows          Windows
	QuietStartM      int // minutes from midnight (0..1439)
	QuietEndM        int // minutes from midnight (0..1439)
	PostponeOnReply  time.Duration
	DaysBetweenPings int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Default contact preference values.
const (
	DefaultMaxContactsDay   = 3
	DefaultQuietStartM      = 22 * 60 // 22:00
	DefaultQuietEndM        = 8 * 60  // 08:00
	DefaultPostponeOnReply  = 24 * time.Hour
	DefaultDaysBetweenPings = 2
)

// DefaultContactPrefs returns the preferences a user gets on first CRM eligibility check.
func DefaultContactPrefs(userID int64, maxContacts int) ContactPrefs {
	if maxContacts <= 0 {
		maxContacts = DefaultMaxContactsDay
	}
	return ContactPrefs{
		UserID:           userID,
		AllowProactive:   true,
		MaxContactsDay:   maxContacts,
		Windows:          DefaultWindows(),
		QuietStartM:      DefaultQuietStartM,
		QuietEndM:        DefaultQuietEndM,
		PostponeOnReply:  DefaultPostponeOnReply,
		DaysBetweenPings: DefaultDaysBetweenPings,
	}
}

// Subscription is a time-boxed paid access period.
type Subscription struct {
	ID       int64
	UserID   int64
	PlanCode string
	Status   string // active|expired
	StartsAt time.Time
	EndsAt   time.Time
}

// SubscriptionActive is the status of a subscription that has not been swept as expired.
const SubscriptionActive = "active"

// Event is an audit record of a CRM state change.
type Event struct {
	ID        int64
	UserID    *int64
	Type      string
	Meta      map[string]any
	CreatedAt time.Time
}

// Audit event types.
const (
	EventTaskCreated     = "admin_task_created"
	EventCadenceChanged  = "cadence_level_changed"
	EventCadenceRestored = "cadence_level_restored"
	EventCadenceStopped  = "cadence_stopped"
	EventUserBlocked     = "user_blocked"
)
