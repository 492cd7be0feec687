package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bancapix/server/internal/events"
)

func TestFormatEvent(t *testing.T) {
	text, ok := FormatEvent(events.Event{
		Name:    events.DepositsChanged,
		Payload: events.Change{Action: events.ActionConfirmed, ID: "d1", PayerName: "Ana <Maria>", AmountCents: 123456},
	})
	require.True(t, ok)
	assert.Contains(t, text, "Depósito confirmado")
	assert.Contains(t, text, "Ana &lt;Maria&gt;")
	assert.Contains(t, text, "R$ 1.234,56")

	text, ok = FormatEvent(events.Event{
		Name:    events.PayoutsChanged,
		Payload: events.Change{Action: events.ActionPaid, ID: "p1", PayerName: "Bruno", AmountCents: 5000},
	})
	require.True(t, ok)
	assert.Contains(t, text, "Pagamento realizado")
	assert.Contains(t, text, "R$ 50,00")

	for _, ev := range []events.Event{
		{Name: events.DepositsChanged, Payload: events.Change{Action: events.ActionCreated}},
		{Name: events.PayoutsChanged, Payload: events.Change{Action: events.ActionUnpaid}},
		{Name: events.PayoutsChanged, Payload: events.Change{Action: events.ActionUpdated}},
		{Name: events.LedgerChanged, Payload: events.Change{Action: events.ActionPaid}},
		{Name: events.Heartbeat},
	} {
		_, ok := FormatEvent(ev)
		assert.False(t, ok, ev.Name)
	}
}

type fakeSender struct {
	mu   sync.Mutex
	sent []*telego.SendMessageParams
}

func (f *fakeSender) SendMessage(_ context.Context, p *telego.SendMessageParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, p)
	return &telego.Message{}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestTelegram_Run(t *testing.T) {
	bus := events.NewBus(8)
	defer bus.Close()
	sender := &fakeSender{}
	tg := newTelegram(sender, 42)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tg.Run(ctx, bus)
		close(done)
	}()
	require.Eventually(t, func() bool { return bus.Len() == 1 }, time.Second, 5*time.Millisecond)

	bus.Publish(events.DepositsChanged, events.Change{Action: events.ActionCreated, ID: "d0"})
	bus.Publish(events.DepositsChanged, events.Change{Action: events.ActionConfirmed, ID: "d1", PayerName: "Ana", AmountCents: 1500})
	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 5*time.Millisecond)

	sender.mu.Lock()
	msg := sender.sent[0]
	sender.mu.Unlock()
	assert.Equal(t, int64(42), msg.ChatID.ID)
	assert.Equal(t, telego.ModeHTML, msg.ParseMode)

	cancel()
	<-done
	assert.Zero(t, bus.Len())
}
