package domain

import (
	"errors"
	"testing"
	"time"
)

func TestValidatePayload_BindsVariantsToTypes(t *testing.T) {
	planned := PlannedPayload{PlannedDate: "2025-05-05"}
	tests := []struct {
		name    string
		typ     TaskType
		payload Payload
		ok      bool
	}{
		{"planned ping", TaskPing, planned, true},
		{"planned daily", TaskDailyPrompt, planned, true},
		{"planned farewell", TaskFarewell, planned, false},
		{"limit info", TaskLimitInfo, LimitInfoPayload{PlannedDate: "2025-05-05", Remaining: 1}, true},
		{"limit info on ping", TaskPing, LimitInfoPayload{PlannedDate: "2025-05-05", Remaining: 1}, false},
		{"farewell", TaskFarewell, FarewellPayload{Reason: StopReasonNoResponse}, true},
		{"farewell empty reason", TaskFarewell, FarewellPayload{}, false},
		{"reaction on thanks", TaskThanks, ReactionPayload{TriggeredBy: "user_message"}, true},
		{"reaction on ping", TaskPing, ReactionPayload{TriggeredBy: "admin"}, true},
		{"bad date", TaskPing, PlannedPayload{PlannedDate: "05/05/2025"}, false},
		{"nil", TaskPing, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(tt.typ, tt.payload)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidPayload) {
				t.Fatalf("want ErrInvalidPayload, got %v", err)
			}
		})
	}
}

func TestDecodePayload_KeepsVariant(t *testing.T) {
	raw, err := EncodePayload(LimitInfoPayload{PlannedDate: "2025-05-05", Remaining: 2})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	p, err := DecodePayload(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	li, ok := p.(LimitInfoPayload)
	if !ok {
		t.Fatalf("want LimitInfoPayload, got %T", p)
	}
	if li.Remaining != 2 {
		t.Fatalf("want remaining 2, got %d", li.Remaining)
	}
}

func TestDecodePayload_RejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "{}", `{"kind":"mystery","data":{}}`, `{"kind":"farewell","data":{"reason":""}}`} {
		if _, err := DecodePayload(raw); !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("%q: want ErrInvalidPayload, got %v", raw, err)
		}
	}
}

func TestNewTask_RejectsUnknownType(t *testing.T) {
	_, err := NewTask(1, TaskType("SPAM"), time.Now(), ReactionPayload{TriggeredBy: "x"})
	if !errors.Is(err, ErrUnknownTaskType) {
		t.Fatalf("want ErrUnknownTaskType, got %v", err)
	}
}

func TestTaskStatus_Terminal(t *testing.T) {
	for _, s := range PendingStatuses {
		if s.Terminal() {
			t.Fatalf("%s must not be terminal", s)
		}
	}
	for _, s := range []TaskStatus{StatusSent, StatusFailed, StatusCancelled} {
		if !s.Terminal() {
			t.Fatalf("%s must be terminal", s)
		}
	}
}
