// Package whatsapp binds the session manager to the WhatsApp multi-device
// protocol via whatsmeow.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"wabot/internal/session"
	"wabot/pkg/logx"
)

type Config struct {
	// StorePath is the sqlite file holding whatsmeow's device keys.
	StorePath string
	// PairPhone switches pairing from QR codes to phone-number link codes.
	PairPhone string
	// LogLevel filters whatsmeow's own logging.
	LogLevel string
}

// Connector creates whatsmeow clients backed by one device container.
type Connector struct {
	cfg       Config
	log       logx.Logger
	waLog     waLog.Logger
	container *sqlstore.Container
}

var _ session.Connector = (*Connector)(nil)

func Open(ctx context.Context, cfg Config, log logx.Logger) (*Connector, error) {
	path := strings.TrimSpace(cfg.StorePath)
	if path == "" {
		return nil, errors.New("whatsapp.store_path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}

	wl := newWALogger(log, cfg.LogLevel, "whatsmeow")
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	container, err := sqlstore.New(ctx, "sqlite", dsn, wl.Sub("store"))
	if err != nil {
		return nil, fmt.Errorf("open device store: %w", err)
	}
	return &Connector{cfg: cfg, log: log, waLog: wl, container: container}, nil
}

func (c *Connector) Close() error {
	if c == nil || c.container == nil {
		return nil
	}
	return c.container.Close()
}

// Initialize resumes the device named by auth, or starts pairing a new one.
func (c *Connector) Initialize(ctx context.Context, auth session.AuthState, sink session.EventSink) (session.Client, error) {
	device, err := c.device(ctx, auth)
	if err != nil {
		return nil, err
	}

	wa := whatsmeow.NewClient(device, c.waLog.Sub("client"))
	// Reconnects are owned by the session manager.
	wa.EnableAutoReconnect = false

	cctx, cancel := context.WithCancel(ctx)
	cl := &client{wa: wa, sink: sink, log: c.log, cancel: cancel}
	cl.handlerID = wa.AddEventHandler(cl.handle)

	if wa.Store.ID == nil {
		qr, err := wa.GetQRChannel(cctx)
		if err != nil {
			cl.Close()
			return nil, fmt.Errorf("qr channel: %w", err)
		}
		go cl.pair(cctx, qr, c.cfg.PairPhone)
	}
	if err := wa.Connect(); err != nil {
		cl.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}
	return cl, nil
}

func (c *Connector) device(ctx context.Context, auth session.AuthState) (*store.Device, error) {
	if auth.Credentials == nil {
		// Purged credentials: any device left in the container is stale.
		devices, err := c.container.GetAllDevices(ctx)
		if err != nil {
			return nil, err
		}
		for _, d := range devices {
			if err := d.Delete(ctx); err != nil {
				c.log.Warn("deleting stale device failed", logx.Err(err))
			}
		}
		return c.container.NewDevice(), nil
	}

	jid, err := decodeCredentials(auth.Credentials)
	if err != nil {
		c.log.Warn("unreadable credentials; pairing a new device", logx.Err(err))
		return c.container.NewDevice(), nil
	}
	device, err := c.container.GetDevice(ctx, jid)
	if err != nil {
		return nil, err
	}
	if device == nil {
		c.log.Warn("device missing from store; pairing a new device", logx.String("jid", jid.String()))
		return c.container.NewDevice(), nil
	}
	return device, nil
}

type client struct {
	wa        *whatsmeow.Client
	sink      session.EventSink
	log       logx.Logger
	cancel    context.CancelFunc
	handlerID uint32

	closed    atomic.Bool
	closeOnce sync.Once
}

func (c *client) emit(ev session.Event) {
	if c.closed.Load() {
		return
	}
	c.sink(ev)
}

func (c *client) handle(evt any) {
	for _, ev := range translate(evt, func() *types.JID { return c.wa.Store.ID }) {
		c.emit(ev)
	}
}

// pair forwards pairing codes until the device is linked or the channel ends.
func (c *client) pair(ctx context.Context, qr <-chan whatsmeow.QRChannelItem, phone string) {
	linkCodeSent := false
	for item := range qr {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			if phone == "" {
				c.emit(session.Event{Kind: session.EventPairingCode, Code: item.Code})
				continue
			}
			if linkCodeSent {
				continue
			}
			code, err := c.wa.PairPhone(ctx, phone, true, whatsmeow.PairClientChrome, "Chrome (Linux)")
			if err != nil {
				c.log.Error("phone pairing failed", logx.Err(err))
				c.emit(session.Event{Kind: session.EventConnectionClosed, Reason: session.ReasonNone})
				return
			}
			linkCodeSent = true
			c.emit(session.Event{Kind: session.EventPairingCode, Code: code})
		case whatsmeow.QRChannelSuccess.Event:
		default:
			// Timeout or a pairing error: start over with a fresh client.
			c.log.Warn("pairing ended", logx.String("event", item.Event), logx.Err(item.Error))
			c.emit(session.Event{Kind: session.EventConnectionClosed, Reason: session.ReasonNone})
			return
		}
	}
}

func (c *client) Send(ctx context.Context, to, text string) error {
	jid, err := types.ParseJID(to)
	if err != nil {
		return fmt.Errorf("parse recipient: %w", err)
	}
	_, err = c.wa.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	return err
}

func (c *client) Logout(ctx context.Context) error {
	if c.wa.Store.ID == nil {
		return nil
	}
	return c.wa.Logout(ctx)
}

func (c *client) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.wa.RemoveEventHandler(c.handlerID)
		c.cancel()
		c.wa.Disconnect()
	})
}
