// Package telegram is the optional operator channel: owner-only commands
// drive the session manager, and lifecycle notices plus relayed error logs
// go to one chat.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"wabot/internal/runtime/supervisor"
	"wabot/pkg/logx"
)

type Config struct {
	Token        string
	OwnerUserIDs []int64
	// ChatID receives notifications and relayed logs. Zero disables them.
	ChatID      int64
	PollTimeout time.Duration
}

type Bot struct {
	cfg    Config
	log    logx.Logger
	bot    *tele.Bot
	router *Router

	runMu sync.Mutex
	sup   *supervisor.Supervisor
}

func New(cfg Config, ctrl Controller, log logx.Logger) (*Bot, error) {
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
	if log.IsZero() {
		log = logx.Nop()
	}
	t := &Bot{cfg: cfg, log: log, bot: b, router: NewRouter(ctrl, cfg.OwnerUserIDs, log)}
	t.bot.Handle(tele.OnText, t.onText)
	return t, nil
}

func (t *Bot) onText(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Sender == nil {
		return nil
	}
	reply := func(text string) error {
		_, err := t.bot.Send(m.Chat, text, &tele.SendOptions{DisableWebPagePreview: true})
		return err
	}
	return t.router.Dispatch(context.Background(), m.Sender.ID, m.Chat.ID, m.Text, reply)
}

// Start begins long polling under a restart loop.
func (t *Bot) Start(ctx context.Context) error {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	if t.sup != nil {
		return nil
	}
	t.sup = supervisor.New(ctx, supervisor.WithLogger(t.log.With(logx.String("comp", "telegram"))))
	t.registerMenu()

	t.sup.Go0("telegram.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		t.bot.Stop()
	})
	// telebot's Start blocks until Stop; an early return is a failure.
	t.sup.GoRestart("telegram.poll", func(c context.Context) error {
		t.log.Info("polling started")
		t.bot.Start()
		t.log.Info("polling stopped")
		return nil
	},
		supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		supervisor.WithStopOnCleanExit(false),
	)
	return nil
}

func (t *Bot) registerMenu() {
	cmds := make([]tele.Command, 0, len(t.router.commands))
	for _, c := range t.router.Commands() {
		cmds = append(cmds, tele.Command{Text: c.Name, Description: c.Description})
	}
	if err := t.bot.SetCommands(cmds); err != nil {
		t.log.Warn("setting command menu failed", logx.Err(err))
	}
}

// Stop is best-effort and bounded by ctx; a stuck long poll never blocks shutdown.
func (t *Bot) Stop(ctx context.Context) error {
	t.runMu.Lock()
	sup := t.sup
	t.sup = nil
	t.runMu.Unlock()
	if sup == nil {
		return nil
	}

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Stop(wctx); err != nil {
		t.log.Warn("telegram stop timed out", logx.Err(err))
	}
	return nil
}

// Notify sends text to the notification chat.
func (t *Bot) Notify(ctx context.Context, text string) error {
	if t.cfg.ChatID == 0 {
		return nil
	}
	chat := &tele.Chat{ID: t.cfg.ChatID}
	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := t.bot.Send(chat, chunk, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
			return err
		}
	}
	return nil
}

// RelayLog forwards a log line from the logging service.
func (t *Bot) RelayLog(ctx context.Context, text string) error {
	return t.Notify(ctx, text)
}
