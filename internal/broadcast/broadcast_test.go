package broadcast

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wabot/internal/eventbus"
)

type recorder struct {
	mu     sync.Mutex
	events []eventbus.Event
	texts  []string
}

func (r *recorder) Broadcast(ev eventbus.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Notify(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

func (r *recorder) snapshot() ([]eventbus.Event, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]eventbus.Event(nil), r.events...), append([]string(nil), r.texts...)
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Len()
}

func TestFanoutRelaysLifecycle(t *testing.T) {
	bus := eventbus.New()
	rec := &recorder{}
	qr := &syncBuffer{}
	f := New(bus, Options{Hub: rec, Notifier: rec, QROut: qr})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = f.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Wait for the subscription before publishing.
	require.Eventually(t, func() bool {
		bus.Publish(eventbus.Event{Type: "probe"})
		evs, _ := rec.snapshot()
		return len(evs) > 0
	}, 2*time.Second, 5*time.Millisecond)

	qrPayload := "2@" + strings.Repeat("x", 60)
	bus.Publish(eventbus.Event{Type: eventbus.TypePairingCode, Data: qrPayload})
	bus.Publish(eventbus.Event{Type: eventbus.TypeConnected, Data: eventbus.Connected{Phone: "15551234567", Status: "connected"}})
	bus.Publish(eventbus.Event{Type: eventbus.TypeDisconnected})

	require.Eventually(t, func() bool {
		_, texts := rec.snapshot()
		return len(texts) == 3
	}, 2*time.Second, 5*time.Millisecond)

	_, texts := rec.snapshot()
	assert.Contains(t, texts[0], "QR code")
	assert.Equal(t, "Connected as 15551234567.", texts[1])
	assert.Contains(t, texts[2], "Disconnected")
	assert.Positive(t, qr.Len())
}

func TestDescribeLinkCode(t *testing.T) {
	assert.Equal(t, "Link code: ABCD-EFGH", describe(eventbus.Event{Type: eventbus.TypePairingCode, Data: "ABCD-EFGH"}))
	assert.Empty(t, describe(eventbus.Event{Type: "probe"}))
}
