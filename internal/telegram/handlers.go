package telegram

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stiapanreha-dev/BotOracle/internal/crm"
	"github.com/stiapanreha-dev/BotOracle/internal/domain"
)

// --- Core commands ---

func (r *Router) handleStart(ctx context.Context, chatID int64, u *domain.User) {
	p, err := r.prefs(ctx, u.ID)
	if err != nil {
		r.log.Error("load prefs failed", zap.Int64("user_id", u.ID), zap.Error(err))
		r.sendText(chatID, genericError)
		return
	}
	r.sendWithMenu(chatID, startText, p.AllowProactive)
}

func (r *Router) handleProfile(ctx context.Context, chatID int64, u *domain.User, args string) {
	age, gender, err := domain.ParseProfile(args)
	if err != nil {
		r.sendText(chatID, profileHelp)
		return
	}
	if err := r.store.UpdateProfile(ctx, u.ID, age, gender); err != nil {
		r.log.Error("update profile failed", zap.Int64("user_id", u.ID), zap.Error(err))
		r.sendText(chatID, genericError)
		return
	}
	r.sendText(chatID, profileSaved)
}

func (r *Router) handleStatus(ctx context.Context, chatID int64, u *domain.User) {
	p, err := r.prefs(ctx, u.ID)
	if err != nil {
		r.log.Error("load prefs failed", zap.Int64("user_id", u.ID), zap.Error(err))
		r.sendText(chatID, genericError)
		return
	}
	subscribed, err := r.store.HasActiveSubscription(ctx, u.ID, r.now().UTC())
	if err != nil {
		r.log.Error("subscription check failed", zap.Int64("user_id", u.ID), zap.Error(err))
		r.sendText(chatID, genericError)
		return
	}

	level, err := r.engine.CadenceLevel(ctx, u.ID)
	if err != nil {
		r.log.Error("cadence level lookup failed", zap.Int64("user_id", u.ID), zap.Error(err))
		r.sendText(chatID, genericError)
		return
	}
	next, err := r.engine.NextContact(ctx, u.ID)
	if err != nil {
		r.log.Error("next contact lookup failed", zap.Int64("user_id", u.ID), zap.Error(err))
		r.sendText(chatID, genericError)
		return
	}

	allowed := "✅ on"
	if !p.AllowProactive {
		allowed = "⏸ off"
	}
	nextText := "nothing planned"
	if next != nil {
		nextText = domain.LocalizeTime(*next, r.cfg.Location)
	}
	sub := "none"
	if subscribed {
		sub = "💎 active"
	}
	body := fmt.Sprintf("%s\n\n"+statusFmt,
		statusTitle,
		allowed,
		p.MaxContactsDay,
		domain.FormatMinutes(p.QuietStartM), domain.FormatMinutes(p.QuietEndM),
		p.PostponeOnReply.String(),
		sub,
		u.FreeQuestionsLeft,
		level,
		nextText,
	)
	r.sendWithMenu(chatID, body, p.AllowProactive)
}

// --- Stop / Resume ---

func (r *Router) handleToggle(ctx context.Context, chatID int64, u *domain.User, allow bool) {
	_, err := r.updatePrefs(ctx, u.ID, func(p *domain.ContactPrefs) { p.AllowProactive = allow })
	if err != nil {
		r.log.Error("toggle proactive failed", zap.Int64("user_id", u.ID), zap.Bool("allow", allow), zap.Error(err))
		r.sendText(chatID, genericError)
		return
	}
	text := stoppedText
	if allow {
		text = resumedText
	}
	r.sendWithMenu(chatID, text, allow)
}

// --- Quiet hours flow ---

func (r *Router) handleQuiet(ctx context.Context, chatID int64, u *domain.User, text string) {
	if text == "" {
		r.sendText(chatID, askQuiet)
		r.setPending(chatID, pendingQuiet)
		return
	}
	fromM, toM, err := domain.ParseQuietHours(text)
	if err != nil {
		r.sendText(chatID, invalidQuiet)
		return
	}
	_, err = r.updatePrefs(ctx, u.ID, func(p *domain.ContactPrefs) { p.QuietStartM, p.QuietEndM = fromM, toM })
	if err != nil {
		r.log.Error("update quiet hours failed", zap.Int64("user_id", u.ID), zap.Error(err))
		r.sendText(chatID, genericError)
		return
	}
	r.sendText(chatID, "Quiet hours updated: "+domain.FormatMinutes(fromM)+"–"+domain.FormatMinutes(toM))
}

// --- Postpone-on-reply flow ---

func (r *Router) handlePostpone(ctx context.Context, chatID int64, u *domain.User, text string) {
	if text == "" {
		r.sendText(chatID, askPostpone)
		r.setPending(chatID, pendingPostpone)
		return
	}
	d, err := domain.ParseDurationHuman(text)
	if err != nil {
		r.sendText(chatID, invalidPostpone)
		return
	}
	if _, err := r.updatePrefs(ctx, u.ID, func(p *domain.ContactPrefs) { p.PostponeOnReply = d }); err != nil {
		r.log.Error("update postpone failed", zap.Int64("user_id", u.ID), zap.Error(err))
		r.sendText(chatID, genericError)
		return
	}
	r.sendText(chatID, "Got it, I'll hold off for "+d.String()+" after you write.")
}

// --- Free-form messages ---

// handleFreeForm queues an immediate thank-you; the dispatcher delivers it.
func (r *Router) handleFreeForm(ctx context.Context, u *domain.User) {
	_, err := r.engine.CreateImmediateTask(ctx, u.ID, domain.TaskThanks,
		domain.ReactionPayload{TriggeredBy: crm.TriggeredByUserMessage})
	if err != nil {
		r.log.Error("create reaction task failed", zap.Int64("user_id", u.ID), zap.Error(err))
	}
}
