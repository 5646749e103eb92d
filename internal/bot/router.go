// Package bot routes Telegram updates: onboarding, legal acceptance
// and the game menu. Reminder delivery lives in internal/scheduler.
package bot

import (
	"context"
	"strings"
	"time"

	"outagebot/internal/store"
	kit "outagebot/internal/transport"
	"outagebot/pkg/logx"
)

const handleTimeout = 10 * time.Second

// Router wires incoming updates to handlers.
type Router struct {
	st  store.Store
	ad  kit.Adapter
	log logx.Logger
}

func NewRouter(st store.Store, ad kit.Adapter, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{st: st, ad: ad, log: log}
}

// Run consumes updates until ctx is done or the channel closes.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			hctx, cancel := context.WithTimeout(ctx, handleTimeout)
			r.HandleUpdate(hctx, up)
			cancel()
		}
	}
}

// HandleUpdate routes a single update. Handler errors are logged, never
// propagated: one broken interaction must not affect the loop.
func (r *Router) HandleUpdate(ctx context.Context, up kit.Update) {
	var err error
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message == nil {
			return
		}
		err = r.handleMessage(ctx, up.Message)
	case kit.UpdateCallback:
		if up.Callback == nil {
			return
		}
		err = r.handleCallback(ctx, up.Callback)
	}
	if err != nil {
		r.log.Warn("update handling failed", logx.Err(err))
	}
}

// isStartCommand matches "/start" including the deep-link payload and
// directed forms: "/start", "/start ref123", "/start@somebot".
func isStartCommand(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	cmd := fields[0]
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return cmd == "/start"
}

func (r *Router) handleMessage(ctx context.Context, m *kit.Message) error {
	if !isStartCommand(m.Text) {
		return nil
	}
	if err := r.st.EnsureUser(ctx, m.FromID); err != nil {
		return err
	}
	accepted, err := r.st.IsLegalAccepted(ctx, m.FromID)
	if err != nil {
		return err
	}
	to := kit.ChatTarget{ChatID: m.ChatID}
	if accepted {
		_, err = r.ad.SendText(ctx, to, welcomeText, &kit.SendOptions{ReplyMarkup: mainMenuKeyboard()})
		return err
	}
	_, err = r.ad.SendText(ctx, to, legalText, &kit.SendOptions{ReplyMarkup: legalAcceptKeyboard()})
	return err
}

func (r *Router) handleCallback(ctx context.Context, cb *kit.Callback) error {
	switch {
	case cb.Data == cbLegalAccept:
		return r.acceptLegal(ctx, cb)
	case cb.Data == cbNotifyToggle:
		return r.toggleNotify(ctx, cb)
	default:
		if _, ok := menuContent[cb.Data]; ok {
			return r.openMenu(ctx, cb)
		}
		// Unknown callback: ignore silently.
		return nil
	}
}

func (r *Router) acceptLegal(ctx context.Context, cb *kit.Callback) error {
	if err := r.st.SetLegalAccepted(ctx, cb.FromID, time.Now().Unix()); err != nil {
		return err
	}
	if err := r.ad.AnswerCallback(ctx, cb.ID, legalAcceptedToast, false); err != nil {
		r.log.Debug("answer callback failed", logx.Err(err))
	}
	ref := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	return r.ad.EditText(ctx, ref, welcomeText, &kit.SendOptions{ReplyMarkup: mainMenuKeyboard()})
}

func (r *Router) openMenu(ctx context.Context, cb *kit.Callback) error {
	accepted, err := r.st.IsLegalAccepted(ctx, cb.FromID)
	if err != nil {
		return err
	}
	if !accepted {
		if err := r.ad.AnswerCallback(ctx, cb.ID, legalRequiredAlert, true); err != nil {
			r.log.Debug("answer callback failed", logx.Err(err))
		}
		to := kit.ChatTarget{ChatID: cb.ChatID}
		_, err = r.ad.SendText(ctx, to, legalText, &kit.SendOptions{ReplyMarkup: legalAcceptKeyboard()})
		return err
	}
	if err := r.ad.AnswerCallback(ctx, cb.ID, "", false); err != nil {
		r.log.Debug("answer callback failed", logx.Err(err))
	}
	ref := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	return r.ad.EditText(ctx, ref, menuContent[cb.Data], &kit.SendOptions{ReplyMarkup: mainMenuKeyboard()})
}

func (r *Router) toggleNotify(ctx context.Context, cb *kit.Callback) error {
	u, err := r.st.GetUser(ctx, cb.FromID)
	if err != nil {
		return err
	}
	on := true
	if u != nil {
		on = u.NotifyOn
	}
	if err := r.st.SetNotify(ctx, cb.FromID, !on); err != nil {
		return err
	}
	toast := notifyOffToast
	if !on {
		toast = notifyOnToast
	}
	return r.ad.AnswerCallback(ctx, cb.ID, toast, false)
}
