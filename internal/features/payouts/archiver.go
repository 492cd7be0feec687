package payouts

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/bancapix/server/internal/events"
	"github.com/bancapix/server/internal/store"
)

// ArchiveGrace — сколько оплаченная выплата остаётся в списке после paidAt.
const ArchiveGrace = 3 * time.Minute

// archiveTimeout ограничивает удаление по таймеру.
const archiveTimeout = 10 * time.Second

var archivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bancapix_payouts_archived_total",
	Help: "Автоматически удалённые оплаченные выплаты по источнику",
}, []string{"source"})

type timer interface {
	Stop() bool
}

// pending — запланированное удаление одной выплаты.
type pending struct {
	t timer
}

// Archiver удаляет оплаченные выплаты через ArchiveGrace после paidAt.
//
// Таймеры в памяти только ускоряют уборку. Решение об удалении всегда
// принимает хранилище по сохранённому paidAt (ArchivePayout с cutoff),
// поэтому потерянный или опоздавший таймер ничего не ломает: после
// рестарта Recover заново планирует таймеры, а Sweep добирает остальное.
type Archiver struct {
	store store.Store
	bus   events.Publisher
	grace time.Duration

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) timer

	mu      sync.Mutex
	timers  map[string]*pending
	stopped bool

	logger *log.Entry
}

// NewArchiver создаёт архиватор с окном ArchiveGrace.
func NewArchiver(st store.Store, bus events.Publisher) *Archiver {
	return &Archiver{
		store: st,
		bus:   bus,
		grace: ArchiveGrace,
		now:   time.Now,
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
		timers: make(map[string]*pending),
		logger: log.WithField("component", "archiver"),
	}
}

// Schedule планирует удаление выплаты, оплаченной в paidAt.
// Прежний таймер для того же id заменяется.
func (a *Archiver) Schedule(id string, paidAt time.Time) {
	delay := paidAt.Add(a.grace).Sub(a.now())
	if delay < 0 {
		delay = 0
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	if old, ok := a.timers[id]; ok {
		old.t.Stop()
	}
	p := &pending{}
	a.timers[id] = p
	p.t = a.afterFunc(delay, func() { a.fire(id, p) })
}

// Cancel отменяет запланированное удаление. Отсутствие таймера не ошибка.
func (a *Archiver) Cancel(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.timers[id]; ok {
		p.t.Stop()
		delete(a.timers, id)
	}
}

// Pending — число запланированных удалений.
func (a *Archiver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.timers)
}

func (a *Archiver) fire(id string, p *pending) {
	a.mu.Lock()
	if a.timers[id] != p {
		// Таймер отменён или заменён после срабатывания
		a.mu.Unlock()
		return
	}
	delete(a.timers, id)
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	ok, err := a.store.ArchivePayout(ctx, id, a.now().Add(-a.grace))
	if err != nil {
		// Следующий Sweep повторит попытку
		a.logger.WithError(err).WithField("id", id).Warn("Не удалось архивировать выплату")
		return
	}
	if !ok {
		return
	}
	archivedTotal.WithLabelValues("timer").Inc()
	a.logger.WithField("id", id).Info("Выплата архивирована")
	a.bus.Publish(events.PayoutsChanged, events.Change{Action: events.ActionArchived, ID: id})
}

// Sweep удаляет все оплаченные выплаты старше окна и возвращает их число.
func (a *Archiver) Sweep(ctx context.Context) (int, error) {
	ids, err := a.store.ArchivePaidPayouts(ctx, a.now().Add(-a.grace))
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		a.Cancel(id)
		archivedTotal.WithLabelValues("sweep").Inc()
		a.bus.Publish(events.PayoutsChanged, events.Change{Action: events.ActionArchived, ID: id})
	}
	if len(ids) > 0 {
		a.logger.WithField("count", len(ids)).Info("Архивированы оплаченные выплаты")
	}
	return len(ids), nil
}

// Recover заново планирует таймеры для всех оплаченных выплат из хранилища.
func (a *Archiver) Recover(ctx context.Context) (int, error) {
	list, err := a.store.ListPayouts(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range list {
		if p.Status != store.StatusPaid || p.PaidAt == nil {
			continue
		}
		a.Schedule(p.ID, *p.PaidAt)
		n++
	}
	a.logger.WithField("count", n).Info("Таймеры архивации восстановлены")
	return n, nil
}

// Stop останавливает все таймеры; новые после этого не планируются.
func (a *Archiver) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	for id, p := range a.timers {
		p.t.Stop()
		delete(a.timers, id)
	}
}
