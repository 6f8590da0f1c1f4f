package crm

import (
	"math/rand"
	"sync"
	"time"

	"github.com/stiapanreha-dev/BotOracle/internal/store"
)

// Store is the slice of the repository the CRM services need.
type Store interface {
	store.UserRepo
	store.PrefsRepo
	store.TaskRepo
	store.EventRepo
	store.SubscriptionRepo
}

// Rand is the random source behind task selection and slot assignment.
// *math/rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
	Float64() float64
}

// lockedRand serialises access to a *rand.Rand, which is not safe for concurrent use.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand(seed int64) *lockedRand {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// Option customises a CRM service.
type Option func(*options)

type options struct {
	now func() time.Time
	rnd Rand
	loc *time.Location
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRand replaces the random source.
func WithRand(r Rand) Option {
	return func(o *options) { o.rnd = r }
}

// WithLocation sets the wall clock used for "today", windows and quiet hours.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.loc = loc }
}

func newOptions(opts []Option) options {
	o := options{
		now: time.Now,
		loc: time.UTC,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rnd == nil {
		o.rnd = newLockedRand(o.now().UnixNano())
	}
	return o
}
