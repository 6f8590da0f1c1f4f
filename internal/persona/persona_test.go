package persona

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stiapanreha-dev/BotOracle/internal/crm"
	"github.com/stiapanreha-dev/BotOracle/internal/domain"
)

type firstRand struct{}

func (firstRand) Intn(int) int     { return 0 }
func (firstRand) Float64() float64 { return 0 }

func ptr[T any](v T) *T { return &v }

func TestNewDefault_CoversEveryTaskType(t *testing.T) {
	g, err := NewDefault()
	require.NoError(t, err)

	uc := domain.UserContext{UserID: 1, Age: ptr(30), Gender: ptr(domain.GenderMale)}
	for _, tt := range []domain.TaskType{
		domain.TaskDailyPrompt, domain.TaskPing, domain.TaskNudgeSub, domain.TaskRecovery,
		domain.TaskLimitInfo, domain.TaskFarewell, domain.TaskThanks,
	} {
		var p domain.Payload = domain.ReactionPayload{TriggeredBy: "test"}
		text, err := g.Generate(context.Background(), tt, uc, p)
		require.NoError(t, err, tt)
		assert.NotEmpty(t, text, tt)
	}
}

func TestGenerate_LimitInfoRendersRemaining(t *testing.T) {
	g, err := NewDefault(WithRand(firstRand{}))
	require.NoError(t, err)

	uc := domain.UserContext{Age: ptr(22), Gender: ptr(domain.GenderFemale)}
	text, err := g.Generate(context.Background(), domain.TaskLimitInfo, uc,
		domain.LimitInfoPayload{PlannedDate: "2025-03-10", Remaining: 1})
	require.NoError(t, err)
	assert.Contains(t, text, "only 1 free answers left")
	assert.Contains(t, text, "sunshine")
}

func TestGenerate_CareToneForOlderUsers(t *testing.T) {
	g, err := NewDefault(WithRand(firstRand{}))
	require.NoError(t, err)

	text, err := g.Generate(context.Background(), domain.TaskLimitInfo,
		domain.UserContext{Age: ptr(60)}, domain.LimitInfoPayload{PlannedDate: "2025-03-10", Remaining: 2})
	require.NoError(t, err)
	assert.Equal(t, "friend, you have 2 free answers remaining.", text)
}

func TestGenerate_MissingTemplate(t *testing.T) {
	g, err := New([]byte(`
fallback:
  playful: "sorry {{.Address}}"
tasks:
  PING:
    playful: ["hi {{.Address}}"]
`))
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), domain.TaskRecovery, domain.UserContext{}, domain.PlannedPayload{PlannedDate: "2025-03-10"})
	var ge *crm.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, domain.TaskRecovery, ge.TaskType)
	assert.True(t, errors.Is(err, ErrNoTemplate))

	// care falls back to playful variants and fallback text
	text, err := g.Generate(context.Background(), domain.TaskPing, domain.UserContext{Age: ptr(70)}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi friend", text)
	assert.Equal(t, "sorry friend", g.Fallback(domain.UserContext{Age: ptr(70)}))
}

func TestNew_RejectsBrokenCatalogue(t *testing.T) {
	cases := map[string]string{
		"no fallback":  "tasks: {}",
		"unknown type": "fallback: {playful: x}\ntasks:\n  WAVE:\n    playful: [hi]",
		"bad template": "fallback: {playful: \"{{.Address\"}",
		"not yaml":     "fallback: [",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestAddressFor(t *testing.T) {
	cases := []struct {
		age    *int
		gender *string
		want   string
	}{
		{ptr(20), ptr(domain.GenderFemale), "sunshine"},
		{ptr(40), ptr(domain.GenderFemale), "dear"},
		{ptr(25), ptr(domain.GenderMale), "buddy"},
		{ptr(26), ptr(domain.GenderMale), "friend"},
		{nil, ptr(domain.GenderOther), "friend"},
		{nil, nil, "friend"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, AddressFor(tc.age, tc.gender))
	}
	assert.Equal(t, ToneCare, ToneFor(ptr(46)))
	assert.Equal(t, TonePlayful, ToneFor(ptr(45)))
	assert.Equal(t, TonePlayful, ToneFor(nil))
}
