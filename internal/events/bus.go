// Package events — шина уведомлений об изменениях для открытых панелей.
//
// Доставка «не более одного раза» и без очереди: если подписчик не успевает
// читать, событие для него отбрасывается. Клиент после (пере)подключения
// сам перечитывает состояние, событие — лишь сигнал «что-то изменилось».
package events

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

// Имена событий
const (
	DepositsChanged = "deposits-changed"
	PayoutsChanged  = "payouts-changed"
	LedgerChanged   = "ledger-changed"
	Heartbeat       = "heartbeat"
)

// HeartbeatInterval — чтобы прокси не закрывали простаивающие соединения.
const HeartbeatInterval = 25 * time.Second

// Действия в Change.Action
const (
	ActionCreated   = "created"
	ActionConfirmed = "confirmed"
	ActionUpdated   = "updated"
	ActionAdvanced  = "advanced"
	ActionPaid      = "paid"
	ActionUnpaid    = "unpaid"
	ActionReverted  = "reverted"
	ActionDeleted   = "deleted"
	ActionArchived  = "archived"
)

// Event — одно событие шины.
type Event struct {
	Name    string
	Payload any
}

// Change — полезная нагрузка событий *-changed.
// Не является авторитетным состоянием, только подсказкой для перечитывания.
type Change struct {
	Action      string `json:"action"`
	ID          string `json:"id,omitempty"`
	PayerName   string `json:"nome,omitempty"`
	AmountCents int64  `json:"valorCents,omitempty"`
}

// Publisher — то, что нужно сервисам от шины.
type Publisher interface {
	Publish(name string, payload any)
}

var (
	subscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bancapix_events_subscribers",
		Help: "Текущее число подписчиков шины событий",
	})
	droppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bancapix_events_dropped_total",
		Help: "События, отброшенные из-за переполненного буфера подписчика",
	}, []string{"event"})
)

// Bus — публикация/подписка в памяти процесса.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
}

// NewBus создаёт шину; buffer — размер очереди каждого подписчика.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 16
	}
	return &Bus{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscription — подписка. Закрывается через Close (или при Bus.Close).
type Subscription struct {
	bus    *Bus
	ch     chan Event
	filter map[string]struct{}
	once   sync.Once
}

// Subscribe подписывает на события с указанными именами (пусто — на все).
// После закрытия шины возвращает уже закрытую подписку.
func (b *Bus) Subscribe(names ...string) *Subscription {
	s := &Subscription{
		bus: b,
		ch:  make(chan Event, b.buffer),
	}
	if len(names) > 0 {
		s.filter = make(map[string]struct{}, len(names))
		for _, n := range names {
			s.filter[n] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}
	b.subs[s] = struct{}{}
	subscribersGauge.Inc()
	return s
}

// Events — канал событий; закрывается после Close.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close снимает подписку. Повторный вызов безопасен.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.closeLocked()
}

func (s *Subscription) closeLocked() {
	s.once.Do(func() {
		if _, ok := s.bus.subs[s]; ok {
			delete(s.bus.subs, s)
			subscribersGauge.Dec()
		}
		close(s.ch)
	})
}

func (s *Subscription) wants(name string) bool {
	if s.filter == nil {
		return true
	}
	_, ok := s.filter[name]
	return ok
}

// Publish рассылает событие всем подходящим подписчикам, не блокируясь.
func (b *Bus) Publish(name string, payload any) {
	ev := Event{Name: name, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if !s.wants(name) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			droppedTotal.WithLabelValues(name).Inc()
			log.WithFields(log.Fields{
				"component": "events",
				"event":     name,
			}).Debug("Подписчик не успевает, событие отброшено")
		}
	}
}

// Len — число активных подписчиков.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// RunHeartbeat публикует heartbeat каждые interval до отмены ctx.
func (b *Bus) RunHeartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Publish(Heartbeat, nil)
		}
	}
}

// Close закрывает все подписки; дальнейшие Publish ничего не делают.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.closeLocked()
	}
}
