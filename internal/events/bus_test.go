package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		require.True(t, ok, "подписка закрыта")
		return ev
	case <-time.After(time.Second):
		t.Fatal("событие не пришло")
		return Event{}
	}
}

func assertEmpty(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case ev := <-s.Events():
		t.Fatalf("лишнее событие %q", ev.Name)
	default:
	}
}

func TestBus_PublishFanOut(t *testing.T) {
	bus := NewBus(4)
	a := bus.Subscribe()
	b := bus.Subscribe()
	defer a.Close()
	defer b.Close()

	bus.Publish(DepositsChanged, Change{Action: ActionConfirmed, ID: "1"})

	for _, s := range []*Subscription{a, b} {
		ev := receive(t, s)
		assert.Equal(t, DepositsChanged, ev.Name)
		assert.Equal(t, Change{Action: ActionConfirmed, ID: "1"}, ev.Payload)
		assertEmpty(t, s)
	}
}

func TestBus_Filter(t *testing.T) {
	bus := NewBus(4)
	s := bus.Subscribe(PayoutsChanged)
	defer s.Close()

	bus.Publish(DepositsChanged, nil)
	bus.Publish(PayoutsChanged, nil)

	assert.Equal(t, PayoutsChanged, receive(t, s).Name)
	assertEmpty(t, s)
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus(1)
	s := bus.Subscribe()
	defer s.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(LedgerChanged, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish заблокировался на медленном подписчике")
	}
	assert.Equal(t, LedgerChanged, receive(t, s).Name)
	assertEmpty(t, s)
}

func TestBus_CloseDeregisters(t *testing.T) {
	bus := NewBus(1)
	s := bus.Subscribe()
	require.Equal(t, 1, bus.Len())

	s.Close()
	s.Close()
	assert.Equal(t, 0, bus.Len())

	_, ok := <-s.Events()
	assert.False(t, ok)

	// Публикация после отписки не паникует
	bus.Publish(DepositsChanged, nil)
}

func TestBus_CloseAll(t *testing.T) {
	bus := NewBus(1)
	s := bus.Subscribe()
	bus.Close()

	_, ok := <-s.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, bus.Len())

	late := bus.Subscribe()
	_, ok = <-late.Events()
	assert.False(t, ok)
	late.Close()
}

func TestBus_RunHeartbeat(t *testing.T) {
	bus := NewBus(4)
	s := bus.Subscribe(Heartbeat)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.RunHeartbeat(ctx, 10*time.Millisecond)

	ev := receive(t, s)
	assert.Equal(t, Heartbeat, ev.Name)
	assert.Nil(t, ev.Payload)
}
