package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PlannedDateLayout is the format of the planning date stored in task payloads.
const PlannedDateLayout = "2006-01-02"

// Payload is the typed personalisation data attached to a task.
// Implementations: PlannedPayload, LimitInfoPayload, FarewellPayload, ReactionPayload.
type Payload interface {
	Kind() string
	validate() error
}

// PlannedPayload tags a task created by the daily planner.
type PlannedPayload struct {
	PlannedDate string `json:"planned_date"`
}

// LimitInfoPayload tags a quota-low notice with the remaining free questions.
type LimitInfoPayload struct {
	PlannedDate string `json:"planned_date"`
	Remaining   int    `json:"remaining"`
}

// FarewellPayload records why outreach stopped.
type FarewellPayload struct {
	Reason string `json:"reason"`
}

// ReactionPayload tags a task created outside daily planning.
type ReactionPayload struct {
	TriggeredBy string `json:"triggered_by"`
}

func (PlannedPayload) Kind() string   { return "planned" }
func (LimitInfoPayload) Kind() string { return "limit_info" }
func (FarewellPayload) Kind() string  { return "farewell" }
func (ReactionPayload) Kind() string  { return "reaction" }

func (p PlannedPayload) validate() error {
	return validatePlannedDate(p.PlannedDate)
}

func (p LimitInfoPayload) validate() error {
	if p.Remaining < 0 {
		return fmt.Errorf("%w: negative remaining", ErrInvalidPayload)
	}
	return validatePlannedDate(p.PlannedDate)
}

func (p FarewellPayload) validate() error {
	if strings.TrimSpace(p.Reason) == "" {
		return fmt.Errorf("%w: empty farewell reason", ErrInvalidPayload)
	}
	return nil
}

func (p ReactionPayload) validate() error {
	if strings.TrimSpace(p.TriggeredBy) == "" {
		return fmt.Errorf("%w: empty trigger", ErrInvalidPayload)
	}
	return nil
}

func validatePlannedDate(s string) error {
	if _, err := time.Parse(PlannedDateLayout, s); err != nil {
		return fmt.Errorf("%w: planned_date %q", ErrInvalidPayload, s)
	}
	return nil
}

// ValidatePayload checks that p is well formed and allowed for task type t.
// Reaction payloads fit any type; the other variants are bound to their types.
func ValidatePayload(t TaskType, p Payload) error {
	if p == nil {
		return fmt.Errorf("%w: nil payload for %s", ErrInvalidPayload, t)
	}
	if err := p.validate(); err != nil {
		return err
	}
	ok := false
	switch p.(type) {
	case ReactionPayload:
		ok = true
	case PlannedPayload:
		ok = t == TaskDailyPrompt || t == TaskPing || t == TaskNudgeSub || t == TaskRecovery
	case LimitInfoPayload:
		ok = t == TaskLimitInfo
	case FarewellPayload:
		ok = t == TaskFarewell
	}
	if !ok {
		return fmt.Errorf("%w: %s payload not allowed for %s", ErrInvalidPayload, p.Kind(), t)
	}
	return nil
}

type payloadEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// EncodePayload serialises p with its kind tag for storage.
func EncodePayload(p Payload) (string, error) {
	if p == nil {
		return "", fmt.Errorf("%w: nil payload", ErrInvalidPayload)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(payloadEnvelope{Kind: p.Kind(), Data: data})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodePayload restores a payload written by EncodePayload.
func DecodePayload(s string) (Payload, error) {
	var env payloadEnvelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var p Payload
	var err error
	switch env.Kind {
	case PlannedPayload{}.Kind():
		var v PlannedPayload
		err = json.Unmarshal(env.Data, &v)
		p = v
	case LimitInfoPayload{}.Kind():
		var v LimitInfoPayload
		err = json.Unmarshal(env.Data, &v)
		p = v
	case FarewellPayload{}.Kind():
		var v FarewellPayload
		err = json.Unmarshal(env.Data, &v)
		p = v
	case ReactionPayload{}.Kind():
		var v ReactionPayload
		err = json.Unmarshal(env.Data, &v)
		p = v
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidPayload, env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}
