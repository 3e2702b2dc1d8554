// Package broadcast relays session lifecycle events from the bus to every
// observer channel: the web socket hub, the Telegram chat and the terminal.
package broadcast

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/mdp/qrterminal/v3"

	"wabot/internal/eventbus"
	"wabot/pkg/logx"
)

// Pairing codes up to this length are phone link codes; longer ones are QR payloads.
const linkCodeMaxLen = 16

const notifyTimeout = 10 * time.Second

type Broadcaster interface {
	Broadcast(ev eventbus.Event)
}

type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type Options struct {
	Hub      Broadcaster
	Notifier Notifier
	// QROut receives QR codes rendered as half blocks. Nil disables printing.
	QROut  io.Writer
	Logger logx.Logger
}

type Fanout struct {
	bus  eventbus.Bus
	opts Options
	log  logx.Logger
}

func New(bus eventbus.Bus, opts Options) *Fanout {
	log := opts.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Fanout{bus: bus, opts: opts, log: log}
}

// Run relays events until ctx is done.
func (f *Fanout) Run(ctx context.Context) error {
	events, unsubscribe := f.bus.Subscribe(64)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			f.deliver(ctx, ev)
		}
	}
}

func (f *Fanout) deliver(ctx context.Context, ev eventbus.Event) {
	if f.opts.Hub != nil {
		f.opts.Hub.Broadcast(ev)
	}
	if ev.Type == eventbus.TypePairingCode && f.opts.QROut != nil {
		if code, _ := ev.Data.(string); len(code) > linkCodeMaxLen {
			qrterminal.GenerateHalfBlock(code, qrterminal.L, f.opts.QROut)
		}
	}
	if f.opts.Notifier != nil {
		text := describe(ev)
		if text == "" {
			return
		}
		nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()
		if err := f.opts.Notifier.Notify(nctx, text); err != nil {
			f.log.Warn("lifecycle notification failed", logx.String("event", ev.Type), logx.Err(err))
		}
	}
}

// describe renders ev for a human chat.
func describe(ev eventbus.Event) string {
	switch ev.Type {
	case eventbus.TypePairingCode:
		code, _ := ev.Data.(string)
		if code != "" && len(code) <= linkCodeMaxLen {
			return "Link code: " + code
		}
		return "New pairing QR code issued. Scan it from the web panel or the terminal."
	case eventbus.TypeConnected:
		if c, ok := ev.Data.(eventbus.Connected); ok {
			return fmt.Sprintf("Connected as %s.", c.Phone)
		}
		return "Connected."
	case eventbus.TypeDisconnected:
		return "Disconnected. Reconnecting shortly."
	}
	return ""
}
