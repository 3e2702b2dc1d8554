// Package ws is the browser-facing real-time channel: it pushes session
// lifecycle events to every connected page and accepts the live auto-send
// toggle.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"wabot/internal/eventbus"
	"wabot/pkg/logx"
)

// EventToggle is the inbound event name of the live switch.
const EventToggle = "toggle"

// ErrHubStopped is returned when registering after Run returned.
var ErrHubStopped = errors.New("ws: hub stopped")

type Options struct {
	// AllowedOrigins lists browser origins besides the server's own host.
	// "*" allows any origin.
	AllowedOrigins []string
	// OnToggle receives the live switch value.
	OnToggle func(on bool)
	// Greeting returns events sent to a client right after it connects.
	Greeting func() []eventbus.Event
	Clock    clockwork.Clock
	Logger   logx.Logger
}

// Hub is an actor: the client set is only touched by Run.
type Hub struct {
	opts     Options
	log      logx.Logger
	clock    clockwork.Clock
	upgrader websocket.Upgrader

	cmds chan hubCmd
	done chan struct{}
}

type hubCmd interface{ hubCmd() }

type registerCmd struct {
	c     *client
	reply chan error
}

type unregisterCmd struct{ c *client }

type broadcastCmd struct{ msg []byte }

type countCmd struct{ reply chan int }

func (registerCmd) hubCmd()   {}
func (unregisterCmd) hubCmd() {}
func (broadcastCmd) hubCmd()  {}
func (countCmd) hubCmd()      {}

func NewHub(opts Options) *Hub {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger.IsZero() {
		opts.Logger = logx.Nop()
	}
	h := &Hub{
		opts:  opts,
		log:   opts.Logger,
		clock: opts.Clock,
		cmds:  make(chan hubCmd, 256),
		done:  make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(opts.AllowedOrigins, h.log),
	}
	return h
}

// Run owns the client set until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	clients := map[*client]struct{}{}
	defer func() {
		for c := range clients {
			c.stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-h.cmds:
			switch cmd := cmd.(type) {
			case registerCmd:
				clients[cmd.c] = struct{}{}
				// Queued before any later broadcast reaches this client.
				h.greet(cmd.c)
				cmd.reply <- nil
			case unregisterCmd:
				if _, ok := clients[cmd.c]; ok {
					delete(clients, cmd.c)
					go cmd.c.stop()
				}
			case broadcastCmd:
				for c := range clients {
					if !c.offer(cmd.msg) {
						h.log.Warn("dropping slow websocket client")
						delete(clients, c)
						go c.stop()
					}
				}
			case countCmd:
				cmd.reply <- len(clients)
			}
		}
	}
}

func (h *Hub) post(cmd hubCmd) bool {
	select {
	case h.cmds <- cmd:
		return true
	case <-h.done:
		return false
	}
}

// Broadcast sends ev to every connected client.
func (h *Hub) Broadcast(ev eventbus.Event) {
	msg, err := encode(ev)
	if err != nil {
		h.log.Error("encoding websocket event failed", logx.String("event", ev.Type), logx.Err(err))
		return
	}
	h.post(broadcastCmd{msg: msg})
}

// Clients returns the number of connected clients, or -1 once stopped.
func (h *Hub) Clients() int {
	reply := make(chan int, 1)
	if !h.post(countCmd{reply: reply}) {
		return -1
	}
	select {
	case n := <-reply:
		return n
	case <-h.done:
		return -1
	}
}

// ServeHTTP upgrades the request and pumps inbound messages until the
// connection ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", logx.Err(err))
		return
	}
	c := newClient(conn, h.clock)

	reply := make(chan error, 1)
	if !h.post(registerCmd{c: c, reply: reply}) {
		c.stop()
		return
	}
	select {
	case <-reply:
	case <-h.done:
		c.stop()
		return
	}
	h.log.Debug("websocket client connected", logx.String("remote", r.RemoteAddr))

	h.readPump(c)
	h.post(unregisterCmd{c: c})
	h.log.Debug("websocket client disconnected", logx.String("remote", r.RemoteAddr))
}

func (h *Hub) greet(c *client) {
	if h.opts.Greeting == nil {
		return
	}
	for _, ev := range h.opts.Greeting() {
		msg, err := encode(ev)
		if err != nil {
			h.log.Error("encoding websocket greeting failed", logx.String("event", ev.Type), logx.Err(err))
			continue
		}
		c.offer(msg)
	}
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (h *Hub) readPump(c *client) {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.extendRead()

		var in inbound
		if err := json.Unmarshal(raw, &in); err != nil {
			h.log.Debug("ignoring malformed websocket message", logx.Err(err))
			continue
		}
		switch in.Event {
		case EventToggle:
			var on bool
			if err := json.Unmarshal(in.Data, &on); err != nil {
				h.log.Debug("ignoring toggle without boolean data", logx.Err(err))
				continue
			}
			if h.opts.OnToggle != nil {
				h.opts.OnToggle(on)
			}
		default:
			h.log.Debug("ignoring websocket event", logx.String("event", in.Event))
		}
	}
}

func encode(ev eventbus.Event) ([]byte, error) {
	return json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data,omitempty"`
	}{Event: ev.Type, Data: ev.Data})
}

// checkOrigin allows requests without an Origin, same-host origins, and the
// configured list.
func checkOrigin(allowed []string, log logx.Logger) func(r *http.Request) bool {
	set := map[string]bool{}
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			set[strings.ToLower(o)] = true
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] || set[strings.ToLower(origin)] {
			return true
		}
		if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
			return true
		}
		log.Warn("websocket origin rejected", logx.String("origin", origin), logx.String("remote", r.RemoteAddr))
		return false
	}
}
