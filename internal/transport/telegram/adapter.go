// Package telegram binds the bot to Telegram: the long-poll connection,
// the outbound message boundaries and the update router.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"partybot/internal/party"
	"partybot/pkg/logx"
)

// Config configures the Telegram connection.
type Config struct {
	Token       string
	PollTimeout time.Duration

	// RatePerSec caps all outbound sends (posts, edits, DMs) to stay
	// under Telegram's flood limits.
	RatePerSec int
}

// Adapter owns the telebot instance. It implements party.Messenger for
// roster messages and the Notifier capability (Available/Dispatch) used
// by the reminder and stamina sweeps.
type Adapter struct {
	bot     *tele.Bot
	log     logx.Logger
	limiter *rate.Limiter

	ready     atomic.Bool
	runMu     sync.Mutex
	runCancel context.CancelFunc
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 3
	}
	return &Adapter{
		bot:     b,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// Bot exposes the underlying telebot instance for handler registration.
func (a *Adapter) Bot() *tele.Bot { return a.bot }

// Start begins long polling in the background. The adapter reports
// itself available only while polling runs.
func (a *Adapter) Start(ctx context.Context) {
	a.runMu.Lock()
	if a.runCancel != nil {
		a.runMu.Unlock()
		return
	}
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runMu.Unlock()

	go func() {
		<-rctx.Done()
		a.ready.Store(false)
		a.bot.Stop()
	}()
	go func() {
		a.ready.Store(true)
		a.log.Info("polling started")
		a.bot.Start() // blocks until Stop
		a.ready.Store(false)
		a.log.Info("polling stopped")
	}()
}

func (a *Adapter) Stop() {
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	a.runMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// ---- party.Messenger ----

func (a *Adapter) Post(ctx context.Context, chatID int64, p party.Payload) (int, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	msg, err := a.bot.Send(&tele.Chat{ID: chatID}, p.Text, markup(p))
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (a *Adapter) Update(ctx context.Context, chatID int64, messageID int, p party.Payload) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	m := &tele.Message{ID: messageID, Chat: &tele.Chat{ID: chatID}}
	_, err := a.bot.Edit(m, p.Text, markup(p))
	if err == nil || isNotModified(err) {
		return nil
	}
	if isGone(err) {
		return party.ErrMessageGone
	}
	return err
}

func (a *Adapter) Retract(ctx context.Context, chatID int64, messageID int) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	err := a.bot.Delete(&tele.Message{ID: messageID, Chat: &tele.Chat{ID: chatID}})
	if err == nil {
		return nil
	}
	if isGone(err) {
		return party.ErrMessageGone
	}
	return err
}

// ---- Notifier ----

func (a *Adapter) Available() bool { return a.ready.Load() }

func (a *Adapter) Dispatch(ctx context.Context, userID int64, text string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := a.bot.Send(&tele.Chat{ID: userID}, text)
	return err
}

func markup(p party.Payload) *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	if len(p.Buttons) == 0 {
		return rm
	}
	rows := make([]tele.Row, 0, len(p.Buttons))
	for _, row := range p.Buttons {
		btns := make([]tele.Btn, 0, len(row))
		for _, b := range row {
			btns = append(btns, tele.Btn{Text: b.Label, Data: b.Data})
		}
		rows = append(rows, rm.Row(btns...))
	}
	rm.Inline(rows...)
	return rm
}

// Telegram reports edit/delete on vanished messages with Bad Request
// errors; telebot surfaces them with the raw description. Matching on
// the description is the only stable signal across API versions.
func isGone(err error) bool {
	s := err.Error()
	return strings.Contains(s, "message to edit not found") ||
		strings.Contains(s, "message to delete not found") ||
		strings.Contains(s, "message can't be deleted") ||
		strings.Contains(s, "MESSAGE_ID_INVALID")
}

func isNotModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}
