package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	writeDeadline = 5 * time.Second
	pingInterval  = 30 * time.Second
	pongDeadline  = 60 * time.Second
	sendBuffer    = 16
	maxInbound    = 4 << 10
)

// client owns the write side of one connection. Only run writes to conn.
type client struct {
	conn  *websocket.Conn
	clock clockwork.Clock
	send  chan []byte

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newClient(conn *websocket.Conn, clock clockwork.Clock) *client {
	c := &client{
		conn:  conn,
		clock: clock,
		send:  make(chan []byte, sendBuffer),
		done:  make(chan struct{}),
	}
	conn.SetReadLimit(maxInbound)
	c.extendRead()
	conn.SetPongHandler(func(string) error {
		c.extendRead()
		return nil
	})
	c.wg.Add(1)
	go c.run()
	return c
}

func (c *client) run() {
	defer c.wg.Done()
	ticker := c.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = c.conn.Close()
				return
			}
		case <-ticker.Chan():
			_ = c.conn.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// offer queues msg without blocking. False means the client is too slow.
func (c *client) offer(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) extendRead() {
	_ = c.conn.SetReadDeadline(c.clock.Now().Add(pongDeadline))
}

func (c *client) stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
		_ = c.conn.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.conn.Close()
	})
}
