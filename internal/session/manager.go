package session

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"wabot/internal/eventbus"
	"wabot/internal/storage"
	"wabot/pkg/logx"
)

const (
	// DefaultSettleDelay is the wait before reinitializing after any disconnect.
	DefaultSettleDelay = 3 * time.Second
	// DefaultMessage is sent when the settings row has no message.
	DefaultMessage = "Hello from Bot!"
	// DefaultSessionID keys the credential store.
	DefaultSessionID = "default"

	defaultSendTimeout = 30 * time.Second
	persistTimeout     = 5 * time.Second
	commandBuffer      = 128
)

// Store is the persistence the manager needs.
type Store interface {
	storage.SettingsStore
	storage.CredentialStore
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

// Options tunes a Manager. Zero values pick the defaults above.
type Options struct {
	SessionID      string
	SettleDelay    time.Duration
	SendSchedule   cron.Schedule
	SendTimeout    time.Duration
	DefaultMessage string
	// Server is the user server appended to the phone for self-sends.
	Server string
	Clock  clockwork.Clock
	Logger logx.Logger
}

// Manager owns the protocol session lifecycle and the auto-send scheduler.
type Manager struct {
	opts      Options
	log       logx.Logger
	clock     clockwork.Clock
	connector Connector
	store     Store
	bus       eventbus.Bus
	sched     *Scheduler

	cmds chan command
	done chan struct{}

	// mu guards the fields read from other goroutines (Status, the send tick).
	// They are only written by the Run goroutine.
	mu          sync.RWMutex
	state       State
	client      Client
	gen         uint64
	phone       string
	pairingCode string

	// Owned by the Run goroutine.
	reconnect    clockwork.Timer
	reconnectSeq uint64
}

type command interface{ command() }

type cmdEvent struct {
	gen uint64
	ev  Event
}

type cmdReinit struct{ seq uint64 }

type cmdLogout struct{ reply chan error }

func (cmdEvent) command()  {}
func (cmdReinit) command() {}
func (cmdLogout) command() {}

// ErrStopped is returned by Logout once Run has returned.
var ErrStopped = errors.New("session: manager stopped")

func NewManager(connector Connector, store Store, bus eventbus.Bus, opts Options) *Manager {
	if opts.SessionID == "" {
		opts.SessionID = DefaultSessionID
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if strings.TrimSpace(opts.DefaultMessage) == "" {
		opts.DefaultMessage = DefaultMessage
	}
	if opts.Server == "" {
		opts.Server = DefaultServer
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger.IsZero() {
		opts.Logger = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.New()
	}

	m := &Manager{
		opts:      opts,
		log:       opts.Logger,
		clock:     opts.Clock,
		connector: connector,
		store:     store,
		bus:       bus,
		cmds:      make(chan command, commandBuffer),
		done:      make(chan struct{}),
	}
	m.sched = NewScheduler(opts.Clock, opts.SendSchedule, m.sendTick, opts.Logger.With(logx.String("comp", "sender")))
	return m
}

// Run initializes the protocol client and processes events until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.done)
	defer m.shutdown()

	if _, err := m.store.EnsureSettings(ctx, m.defaults()); err != nil {
		m.log.Error("ensuring settings row failed", logx.Err(err))
	}
	// Nothing is connected yet: the persisted phone must not claim otherwise.
	m.persist(ctx, storage.SettingsPatch{PhoneSet: true})
	m.initialize(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-m.cmds:
			m.handle(ctx, c)
		}
	}
}

// post queues a command for Run. It gives up once Run has returned.
func (m *Manager) post(c command) {
	select {
	case m.cmds <- c:
	case <-m.done:
	}
}

func (m *Manager) handle(ctx context.Context, c command) {
	switch c := c.(type) {
	case cmdEvent:
		m.mu.RLock()
		current := c.gen == m.gen
		m.mu.RUnlock()
		if !current {
			m.log.Debug("dropping event from superseded client", logx.String("event", c.ev.Kind.String()))
			return
		}
		m.handleEvent(ctx, c.ev)
	case cmdReinit:
		if c.seq != m.reconnectSeq {
			return
		}
		m.reconnect = nil
		m.initialize(ctx)
	case cmdLogout:
		m.handleLogout(ctx)
		c.reply <- nil
	}
}

func (m *Manager) handleEvent(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventPairingCode:
		m.onPairingCode(ev.Code)
	case EventConnectionOpen:
		m.onOpen(ctx, ev.SelfID)
	case EventConnectionClosed:
		m.onClosed(ctx, ev.Reason)
	case EventCredentialsUpdated:
		if err := m.store.SaveCredentials(ctx, m.opts.SessionID, ev.Credentials); err != nil {
			m.log.Error("saving credentials failed", logx.Err(err))
		}
	default:
		m.log.Warn("unknown protocol event", logx.Int("kind", int(ev.Kind)))
	}
}

// initialize (re)creates the protocol client. A failure is handled like a
// transient close, so it is retried after the settle delay.
func (m *Manager) initialize(ctx context.Context) {
	m.cancelReconnect()
	m.dropClient(false)
	m.setState(StateInitializing)

	auth := AuthState{SessionID: m.opts.SessionID}
	blob, err := m.store.LoadCredentials(ctx, m.opts.SessionID)
	switch {
	case err == nil:
		auth.Credentials = blob
	case errors.Is(err, storage.ErrNotFound):
	default:
		m.log.Warn("loading credentials failed; pairing from scratch", logx.Err(err))
	}

	m.mu.RLock()
	gen := m.gen
	m.mu.RUnlock()
	sink := func(ev Event) { m.post(cmdEvent{gen: gen, ev: ev}) }

	m.log.Info("initializing protocol client", logx.Bool("resume", auth.Credentials != nil))
	client, err := m.connector.Initialize(ctx, auth, sink)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.log.Warn("protocol client initialization failed", logx.Err(err))
		m.onClosed(ctx, ReasonNone)
		return
	}
	m.mu.Lock()
	m.client = client
	m.mu.Unlock()
}

func (m *Manager) onPairingCode(code string) {
	m.mu.Lock()
	if m.state == StateInitializing {
		m.state = StateAwaitingPairing
	}
	m.pairingCode = code
	m.mu.Unlock()

	m.log.Info("pairing code issued")
	m.bus.Publish(eventbus.Event{Type: eventbus.TypePairingCode, Data: code})
}

func (m *Manager) onOpen(ctx context.Context, selfID string) {
	phone := CanonicalPhone(selfID)
	if phone == "" {
		m.log.Warn("connection opened without a self identity; ignoring", logx.String("self_id", selfID))
		return
	}

	m.mu.Lock()
	m.state = StateConnected
	m.phone = phone
	m.pairingCode = ""
	m.mu.Unlock()

	inactive := false
	m.persist(ctx, storage.SettingsPatch{IsActive: &inactive, PhoneSet: true, Phone: &phone})
	m.bus.Publish(eventbus.Event{Type: eventbus.TypeConnected, Data: eventbus.Connected{Phone: phone, Status: "connected"}})
	m.audit(ctx, "connected", phone, nil)
	m.log.Info("connected", logx.Phone(phone))
}

// onClosed tears the session down and arms the reconnect. Order matters:
// the scheduler stops first, credentials are purged before the reconnect is
// armed, so a fresh client never races a delete against its own writes.
func (m *Manager) onClosed(ctx context.Context, reason int) {
	m.log.Warn("connection closed; reinitializing", logx.Int("reason", reason), logx.Duration("settle", m.opts.SettleDelay))
	m.setState(StateClosing)
	m.sched.Disable()
	m.dropClient(true)
	m.markDisconnected(ctx)

	if reason == ReasonLoggedOut {
		m.log.Warn("session logged out remotely; purging credentials")
		err := m.store.PurgeCredentials(ctx)
		if err != nil {
			m.log.Error("purging credentials failed", logx.Err(err))
		}
		m.audit(ctx, "purge", "remote logout", err)
	}
	m.audit(ctx, "disconnected", reasonDetail(reason), nil)
	m.scheduleReinit()
}

// handleLogout revokes the session on the operator's request and re-pairs
// after the settle delay.
func (m *Manager) handleLogout(ctx context.Context) {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()

	m.setState(StateClosing)
	m.sched.Disable()

	var logoutErr error
	if client != nil {
		if logoutErr = client.Logout(ctx); logoutErr != nil {
			m.log.Warn("protocol logout failed", logx.Err(logoutErr))
		}
	}
	m.dropClient(true)

	if err := m.store.PurgeCredentials(ctx); err != nil {
		m.log.Error("purging credentials failed", logx.Err(err))
	}
	m.markDisconnected(ctx)
	m.audit(ctx, "logout", "operator", logoutErr)
	m.log.Info("logged out; new pairing code follows", logx.Duration("settle", m.opts.SettleDelay))
	m.scheduleReinit()
}

func (m *Manager) markDisconnected(ctx context.Context) {
	inactive := false
	m.persist(ctx, storage.SettingsPatch{IsActive: &inactive, PhoneSet: true})
	m.bus.Publish(eventbus.Event{Type: eventbus.TypeDisconnected})
}

// dropClient forgets the current client. Bumping the generation makes any
// event the old client still emits stale.
func (m *Manager) dropClient(forgetPhone bool) {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.gen++
	m.pairingCode = ""
	if forgetPhone {
		m.phone = ""
	}
	m.mu.Unlock()
	if client != nil {
		client.Close()
	}
}

func (m *Manager) scheduleReinit() {
	m.cancelReconnect()
	m.reconnectSeq++
	seq := m.reconnectSeq
	m.reconnect = m.clock.AfterFunc(m.opts.SettleDelay, func() { m.post(cmdReinit{seq: seq}) })
}

func (m *Manager) cancelReconnect() {
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	m.reconnectSeq++
}

func (m *Manager) shutdown() {
	m.cancelReconnect()
	m.sched.Close()
	m.dropClient(true)
	m.setState(StateIdle)

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	m.persist(ctx, storage.SettingsPatch{PhoneSet: true})
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) persist(ctx context.Context, patch storage.SettingsPatch) {
	if err := m.store.UpdateSettings(ctx, patch); err != nil {
		m.log.Error("persisting settings failed", logx.Err(err))
	}
}

func (m *Manager) audit(ctx context.Context, action, detail string, err error) {
	e := storage.AuditEntry{
		At:      m.clock.Now(),
		Action:  action,
		Session: m.opts.SessionID,
		Detail:  detail,
		OK:      err == nil,
	}
	if err != nil {
		e.Error = err.Error()
	}
	if aerr := m.store.AppendAudit(ctx, e); aerr != nil {
		m.log.Debug("audit append failed", logx.Err(aerr))
	}
}

func reasonDetail(reason int) string {
	switch reason {
	case ReasonNone:
		return "transient"
	case ReasonLoggedOut:
		return "logged out"
	default:
		return "status " + strconv.Itoa(reason)
	}
}

// liveSender returns the client and phone only while connected.
func (m *Manager) liveSender() (Client, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil || m.state != StateConnected || m.phone == "" {
		return nil, "", false
	}
	return m.client, m.phone, true
}

// sendTick is one auto-send attempt. Failures are logged; the next tick is the retry.
func (m *Manager) sendTick(ctx context.Context) {
	client, phone, ok := m.liveSender()
	if !ok {
		return
	}

	text := m.opts.DefaultMessage
	st, err := m.store.GetSettings(ctx)
	switch {
	case err == nil && strings.TrimSpace(st.Message) != "":
		text = st.Message
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		m.log.Warn("reading settings failed; using default message", logx.Err(err))
	}

	to := SelfJID(phone, m.opts.Server)
	sctx, cancel := context.WithTimeout(ctx, m.opts.SendTimeout)
	defer cancel()
	if err := client.Send(sctx, to, text); err != nil {
		m.log.Error("auto-send failed", logx.String("to", to), logx.Err(err))
		return
	}
	m.log.Info("message sent", logx.String("to", to))
}
