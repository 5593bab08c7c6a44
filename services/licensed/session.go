package main

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Commands recognised by the conversation machine.
const (
	cmdStart  = "/start"
	cmdPay    = "/pay"
	cmdCancel = "/cancel"
)

// Reply is a single outbound message produced by a transition.
type Reply struct {
	Text string
	HTML bool
}

// SessionMachine applies conversation transitions against the persisted
// per-user dialog state. Side effects are confined to store writes; replies
// are returned to the caller for delivery.
type SessionMachine struct {
	store *SQLiteStore
	cfg   *Config
	nowFn func() time.Time
}

func NewSessionMachine(store *SQLiteStore, cfg *Config) *SessionMachine {
	return &SessionMachine{store: store, cfg: cfg, nowFn: time.Now}
}

// HandleMessage routes one inbound text event through the state machine and
// returns the replies to deliver. A store failure propagates so the caller
// can surface the failed command instead of silently dropping the mutation.
func (m *SessionMachine) HandleMessage(ctx context.Context, userID int64, text string) ([]Reply, error) {
	text = strings.TrimSpace(text)
	switch command(text) {
	case cmdStart:
		return m.handleStart(ctx, userID)
	case cmdPay:
		return m.handlePay(ctx, userID)
	case cmdCancel:
		return m.handleCancel(ctx, userID)
	}

	state, err := m.store.Session(ctx, userID)
	if err != nil {
		return nil, err
	}
	if state == stateAwaitingLogin {
		return m.handleLoginInput(ctx, userID, text)
	}
	return []Reply{{Text: "Send /start for your license status or /pay to purchase a license."}}, nil
}

func command(text string) string {
	cmd, _, _ := strings.Cut(strings.ToLower(text), " ")
	// Telegram clients may suffix the bot name, e.g. /start@licensegate_bot.
	cmd, _, _ = strings.Cut(cmd, "@")
	return cmd
}

func (m *SessionMachine) handleStart(ctx context.Context, userID int64) ([]Reply, error) {
	key, expiry, ok, err := m.store.License(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ok && expiry.After(m.nowFn().UTC()) {
		return []Reply{{
			Text: fmt.Sprintf("✅ You already have an active license!\nKey: <code>%s</code>\nExpires: %s", key, expiry.Format("2006-01-02")),
			HTML: true,
		}}, nil
	}
	return []Reply{{
		Text: fmt.Sprintf(
			"Welcome! 🤖\n\nThis bot provides license keys for the Pro Forex EA.\n✅ 5-day free trial included\n💰 Full access: $%s/month (paid in %s-TRC20)\n\nTo get started, send /pay",
			m.cfg.RequiredAmount, m.cfg.TokenSymbol),
	}}, nil
}

func (m *SessionMachine) handlePay(ctx context.Context, userID int64) ([]Reply, error) {
	if err := m.store.SetSession(ctx, userID, stateAwaitingLogin); err != nil {
		return nil, err
	}
	return []Reply{{
		Text: fmt.Sprintf(
			"Please send exactly %s %s (TRC20) to:\n\n<code>%s</code>\n\n⚠️ Use TRC20 network only!\n\nAfter sending, reply with your MT5 Account Login Number (e.g. 12345678).",
			formatBaseUnits(m.cfg.RequiredBaseUnits, m.cfg.TokenDecimals), m.cfg.TokenSymbol, m.cfg.ReceiveAddress),
		HTML: true,
	}}, nil
}

func (m *SessionMachine) handleCancel(ctx context.Context, userID int64) ([]Reply, error) {
	if err := m.store.SetSession(ctx, userID, stateIdle); err != nil {
		return nil, err
	}
	return []Reply{{Text: "Operation cancelled."}}, nil
}

func (m *SessionMachine) handleLoginInput(ctx context.Context, userID int64, login string) ([]Reply, error) {
	if !validLogin(login) {
		// State unchanged: the user stays in awaiting_login and is re-prompted.
		return []Reply{{Text: "❌ Invalid MT5 login. Please enter a valid number (e.g. 12345678)."}}, nil
	}
	if err := m.store.UpsertPending(ctx, userID, login); err != nil {
		return nil, err
	}
	if err := m.store.SetSession(ctx, userID, stateIdle); err != nil {
		return nil, err
	}
	return []Reply{{
		Text: fmt.Sprintf(
			"✅ Got it! We're waiting for your payment of %s %s.\n\nWe'll notify you here as soon as it's confirmed (usually <2 mins).",
			formatBaseUnits(m.cfg.RequiredBaseUnits, m.cfg.TokenDecimals), m.cfg.TokenSymbol),
	}}, nil
}

// validLogin accepts trading-account logins composed entirely of digits with
// at least six of them.
func validLogin(login string) bool {
	if len(login) < 6 {
		return false
	}
	for _, r := range login {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
