package telegram

import (
	"context"
	"errors"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/stiapanreha-dev/BotOracle/internal/crm"
	"github.com/stiapanreha-dev/BotOracle/internal/metrics"
)

// BotAPI is the subset of *tgbotapi.BotAPI used to talk to Telegram.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Sender delivers proactive messages within the bot API's global rate limit.
type Sender struct {
	api     BotAPI
	limiter *rate.Limiter
}

// NewSender allows perSec messages per second with the given burst.
func NewSender(api BotAPI, perSec float64, burst int) *Sender {
	if burst <= 0 {
		burst = 1
	}
	return &Sender{api: api, limiter: rate.NewLimiter(rate.Limit(perSec), burst)}
}

// Send implements crm.Transport. Errors are *crm.DeliveryError; a 403 from
// the API is always classified as blocked.
func (s *Sender) Send(ctx context.Context, chatID int64, text string) error {
	if !s.limiter.Allow() {
		metrics.SendThrottled.Inc()
		if err := s.limiter.Wait(ctx); err != nil {
			return &crm.DeliveryError{Kind: crm.DeliveryTransient, Err: err}
		}
	}

	_, err := s.api.Send(tgbotapi.NewMessage(chatID, text))
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden {
		return &crm.DeliveryError{Kind: crm.DeliveryBlocked, Err: err}
	}
	return crm.NewDeliveryError(err)
}

var _ crm.Transport = (*Sender)(nil)
