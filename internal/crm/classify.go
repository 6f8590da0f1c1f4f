package crm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stiapanreha-dev/BotOracle/internal/domain"
)

// DeliveryKind separates recipient-permanent failures from everything else.
type DeliveryKind int

const (
	DeliveryTransient DeliveryKind = iota
	DeliveryBlocked
)

func (k DeliveryKind) String() string {
	if k == DeliveryBlocked {
		return "blocked"
	}
	return "transient"
}

// DeliveryError is returned by a Transport when a message could not be sent.
type DeliveryError struct {
	Kind DeliveryKind
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery %s: %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// NewDeliveryError wraps a raw transport error with its classification.
func NewDeliveryError(err error) *DeliveryError {
	return &DeliveryError{Kind: ClassifyDeliveryError(err), Err: err}
}

// GenerationError is returned by a Generator that could not produce text.
type GenerationError struct {
	TaskType domain.TaskType
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate %s: %v", e.TaskType, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// The transport only reports these conditions as free text.
var blockedKeywords = []string{"blocked", "forbidden", "deactivated"}

// ClassifyDeliveryError decides whether err means the recipient can no longer
// be reached. An explicit DeliveryBlocked wins; otherwise the error text is
// matched case-insensitively against blockedKeywords.
func ClassifyDeliveryError(err error) DeliveryKind {
	if err == nil {
		return DeliveryTransient
	}
	var de *DeliveryError
	if errors.As(err, &de) && de.Kind == DeliveryBlocked {
		return DeliveryBlocked
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range blockedKeywords {
		if strings.Contains(msg, kw) {
			return DeliveryBlocked
		}
	}
	return DeliveryTransient
}
