package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"wabot/internal/broadcast"
	"wabot/internal/config"
	"wabot/internal/eventbus"
	"wabot/internal/httpapi"
	"wabot/internal/runtime/supervisor"
	"wabot/internal/session"
	"wabot/internal/storage"
	"wabot/internal/transport/telegram"
	"wabot/internal/transport/whatsapp"
	"wabot/internal/transport/ws"
	"wabot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	connector session.Connector
	mgr       *session.Manager
	hub       *ws.Hub
	http      *httpapi.Server
	bot       *telegram.Bot
	fanout    *broadcast.Fanout
}

type buildOptions struct {
	connector session.Connector
	stdout    io.Writer
}

type Option func(*buildOptions)

// WithConnector replaces the WhatsApp connector.
func WithConnector(c session.Connector) Option {
	return func(o *buildOptions) { o.connector = c }
}

// WithStdout sets where pairing QR codes are printed when whatsapp.print_qr is on.
func WithStdout(w io.Writer) Option {
	return func(o *buildOptions) { o.stdout = w }
}

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	bo := buildOptions{stdout: os.Stdout}
	for _, o := range opts {
		o(&bo)
	}

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg))
	appLog := log.With(logx.String("comp", "app"))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		bus:     eventbus.New(),
	}
	if err := a.build(cfg, log, bo); err != nil {
		a.closeResources()
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, log logx.Logger, bo buildOptions) error {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return err
	}
	a.store = store
	a.log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	a.connector = bo.connector
	if a.connector == nil {
		wc, err := whatsapp.Open(context.Background(), mapWhatsAppConfig(cfg), log.With(logx.String("comp", "whatsapp")))
		if err != nil {
			return fmt.Errorf("whatsapp: %w", err)
		}
		a.connector = wc
	}

	sessOpts, err := mapSessionOptions(cfg)
	if err != nil {
		return err
	}
	sessOpts.Logger = log.With(logx.String("comp", "session"))
	a.mgr = session.NewManager(a.connector, store, a.bus, sessOpts)

	a.hub = ws.NewHub(ws.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		OnToggle:       a.mgr.Toggle,
		Greeting:       a.greeting,
		Logger:         log.With(logx.String("comp", "ws")),
	})

	hcfg, err := mapHTTPConfig(cfg)
	if err != nil {
		return err
	}
	httpOpts := []httpapi.Option{
		httpapi.WithWebSocket(a.hub),
		httpapi.WithHealth(a.health),
	}
	if cfg.HTTP.Pprof {
		httpOpts = append(httpOpts, httpapi.WithPprof())
	}
	a.http = httpapi.New(hcfg, a.mgr, log.With(logx.String("comp", "http")), httpOpts...)

	var notifier broadcast.Notifier
	if telegramEnabled(cfg) {
		tcfg, err := mapTelegramConfig(cfg)
		if err != nil {
			return err
		}
		bot, err := telegram.New(tcfg, a.mgr, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		a.bot = bot
		a.logs.SetRelay(bot)
		notifier = bot
	}

	var qrOut io.Writer
	if cfg.WhatsApp.PrintQR {
		qrOut = bo.stdout
	}
	a.fanout = broadcast.New(a.bus, broadcast.Options{
		Hub:      a.hub,
		Notifier: notifier,
		QROut:    qrOut,
		Logger:   log.With(logx.String("comp", "broadcast")),
	})
	return nil
}

// Manager exposes the session manager (status, settings, logout).
func (a *App) Manager() *session.Manager { return a.mgr }

// Handler is the HTTP handler tree.
func (a *App) Handler() http.Handler { return a.http.Handler() }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// greeting brings a freshly connected browser up to date.
func (a *App) greeting() []eventbus.Event {
	st := a.mgr.Status()
	switch {
	case st.State == session.StateConnected && st.Phone != "":
		return []eventbus.Event{{
			Type: eventbus.TypeConnected,
			Time: time.Now(),
			Data: eventbus.Connected{Phone: st.Phone, Status: "connected"},
		}}
	case a.mgr.PairingCode() != "":
		return []eventbus.Event{{Type: eventbus.TypePairingCode, Time: time.Now(), Data: a.mgr.PairingCode()}}
	}
	return nil
}

func (a *App) health() any {
	if a.sup == nil {
		return nil
	}
	return a.sup.Snapshot()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	a.sup.Go("session.manager", a.mgr.Run)
	a.sup.Go("ws.hub", a.hub.Run)
	a.sup.Go("broadcast", a.fanout.Run)
	a.sup.Go("http", a.http.Run)

	if a.bot != nil {
		if err := a.bot.Start(a.sup.Context()); err != nil {
			return err
		}
	}

	// Debug-level trail of every lifecycle event.
	events, unsub := a.bus.Subscribe(32)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeResources()
		return a.logs.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel first so every supervised loop starts unwinding immediately.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// never extend the caller's deadline
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	step("telegram", 2*time.Second, func(c context.Context) error {
		if a.bot != nil {
			return a.bot.Stop(c)
		}
		return nil
	})
	// The session manager persists the cleared phone on its way out, so storage
	// closes only after the supervised loops are gone.
	step("supervisor", 8*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("resources", 2*time.Second, func(context.Context) error { a.closeResources(); return nil })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func (a *App) closeResources() {
	if c, ok := a.connector.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			a.log.Warn("closing whatsapp store failed", logx.Err(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("closing storage failed", logx.Err(err))
		}
	}
}
